package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/scheduling-api/internal/model"
	"github.com/clinicdesk/scheduling-api/internal/repository"
	"github.com/clinicdesk/scheduling-api/pkg/clock"
	apperrors "github.com/clinicdesk/scheduling-api/pkg/errors"
	"github.com/clinicdesk/scheduling-api/pkg/metrics"
)

// fakeAppointmentRepo mimics the storage contract: slot uniqueness and status
// preconditions are enforced atomically under one lock, the way the partial
// unique index and conditional updates behave in Postgres.
type fakeAppointmentRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.Appointment
}

func newFakeAppointmentRepo() *fakeAppointmentRepo {
	return &fakeAppointmentRepo{byID: make(map[uuid.UUID]*model.Appointment)}
}

func (f *fakeAppointmentRepo) slotTaken(a *model.Appointment, excludeID uuid.UUID) bool {
	for _, existing := range f.byID {
		if existing.ID == excludeID || !existing.Blocking() {
			continue
		}
		if existing.ClinicID == a.ClinicID &&
			existing.DoctorID == a.DoctorID &&
			existing.Date.String() == a.Date.String() &&
			existing.Time == a.Time {
			return true
		}
	}
	return false
}

func (f *fakeAppointmentRepo) Create(_ context.Context, a *model.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.slotTaken(a, a.ID) {
		return repository.ErrSlotTaken
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	stored := *a
	f.byID[a.ID] = &stored
	return nil
}

func (f *fakeAppointmentRepo) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *stored
	return &copied, nil
}

func (f *fakeAppointmentRepo) List(_ context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*model.Appointment
	for _, stored := range f.byID {
		if filters.DoctorID != uuid.Nil && stored.DoctorID != filters.DoctorID {
			continue
		}
		if filters.PatientID != uuid.Nil && stored.PatientID != filters.PatientID {
			continue
		}
		status := filters.Status
		if status == model.AppointmentStatusMissed {
			status = model.AppointmentStatusScheduled
		}
		if status != "" && stored.Status != status {
			continue
		}
		copied := *stored
		result = append(result, &copied)
	}
	return result, nil
}

func (f *fakeAppointmentRepo) UpdateStatus(_ context.Context, id uuid.UUID, expected, target model.AppointmentStatus, cancelReason *string) (*model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if stored.Status != expected {
		return nil, repository.ErrStaleStatus
	}
	stored.Status = target
	if cancelReason != nil {
		stored.CancelReason = cancelReason
	}
	stored.UpdatedAt = time.Now()
	copied := *stored
	return &copied, nil
}

func (f *fakeAppointmentRepo) Reschedule(_ context.Context, id uuid.UUID, date model.Date, timeOfDay model.TimeOfDay) (*model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if stored.Status != model.AppointmentStatusScheduled {
		return nil, repository.ErrStaleStatus
	}
	probe := *stored
	probe.Date = date
	probe.Time = timeOfDay
	if f.slotTaken(&probe, id) {
		return nil, repository.ErrSlotTaken
	}
	stored.Date = date
	stored.Time = timeOfDay
	stored.UpdatedAt = time.Now()
	copied := *stored
	return &copied, nil
}

func (f *fakeAppointmentRepo) UpdateMedicalConditions(_ context.Context, id uuid.UUID, conditions []string) (*model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if stored.Status.Terminal() {
		return nil, repository.ErrStaleStatus
	}
	stored.MedicalConditions = conditions
	stored.UpdatedAt = time.Now()
	copied := *stored
	return &copied, nil
}

type fakeOutboxRepo struct {
	mu     sync.Mutex
	events []*model.OutboxEvent
}

func (f *fakeOutboxRepo) Create(_ context.Context, event *model.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutboxRepo) GetPendingEvents(context.Context, int) ([]*model.OutboxEvent, error) {
	return nil, nil
}

func (f *fakeOutboxRepo) MarkProcessed(context.Context, uuid.UUID) error { return nil }

func (f *fakeOutboxRepo) MarkFailed(context.Context, uuid.UUID, string, *time.Time) error {
	return nil
}

func (f *fakeOutboxRepo) DeleteProcessedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeOutboxRepo) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, len(f.events))
	for i, e := range f.events {
		types[i] = e.EventType
	}
	return types
}

// fakeSlotSource serves a fixed slot grid for every date.
type fakeSlotSource struct {
	slots []model.TimeOfDay
	loc   *time.Location
}

func (f *fakeSlotSource) GenerateSlots(context.Context, uuid.UUID, model.Date) ([]model.TimeOfDay, error) {
	return f.slots, nil
}

func (f *fakeSlotSource) GetSettings(context.Context, uuid.UUID) (*model.ScheduleSettings, error) {
	return &model.ScheduleSettings{DoctorName: "Dr. Rao", SlotDurationMinutes: 30}, nil
}

func (f *fakeSlotSource) Location() *time.Location { return f.loc }

func mustTime(t *testing.T, s string) model.TimeOfDay {
	t.Helper()
	tod, err := model.ParseTimeOfDay(s)
	require.NoError(t, err)
	return tod
}

type fixture struct {
	svc    *Service
	repo   *fakeAppointmentRepo
	outbox *fakeOutboxRepo
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	repo := newFakeAppointmentRepo()
	outbox := &fakeOutboxRepo{}
	slots := &fakeSlotSource{
		loc: loc,
		slots: []model.TimeOfDay{
			mustTime(t, "09:00"), mustTime(t, "09:30"), mustTime(t, "10:00"),
			mustTime(t, "10:30"), mustTime(t, "11:00"), mustTime(t, "11:30"),
		},
	}

	svc := NewService(repo, outbox, slots, clock.Fixed(now), metrics.New("test"))
	return &fixture{svc: svc, repo: repo, outbox: outbox}
}

func reserveReq(date, timeOfDay string) *model.CreateAppointmentRequest {
	return &model.CreateAppointmentRequest{
		ClinicID:  uuid.New(),
		DoctorID:  uuid.New(),
		PatientID: uuid.New(),
		Date:      date,
		Time:      timeOfDay,
	}
}

var testNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func TestReserve(t *testing.T) {
	fx := newFixture(t, testNow)

	created, err := fx.svc.Reserve(context.Background(), reserveReq("2026-03-16", "09:30"))
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusScheduled, created.Status)
	assert.Regexp(t, `^APT-[0-9A-F]{8}$`, created.UID)
	assert.Equal(t, "Dr. Rao", created.DoctorName)
	assert.NotNil(t, created.MedicalConditions)
	assert.Equal(t, []string{model.EventAppointmentBooked}, fx.outbox.eventTypes())
}

func TestReserveDuplicateSlot(t *testing.T) {
	fx := newFixture(t, testNow)
	req := reserveReq("2026-03-16", "10:00")

	_, err := fx.svc.Reserve(context.Background(), req)
	require.NoError(t, err)

	second := *req
	second.PatientID = uuid.New()
	_, err = fx.svc.Reserve(context.Background(), &second)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestReserveConcurrentSingleWinner(t *testing.T) {
	fx := newFixture(t, testNow)
	base := reserveReq("2026-03-16", "11:00")

	const contenders = 20
	errs := make([]error, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := *base
			req.PatientID = uuid.New()
			_, errs[i] = fx.svc.Reserve(context.Background(), &req)
		}(i)
	}
	wg.Wait()

	var won, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case apperrors.IsConflict(err):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, contenders-1, conflicted)
}

func TestReserveAfterCancelFreesSlot(t *testing.T) {
	fx := newFixture(t, testNow)
	req := reserveReq("2026-03-16", "09:00")

	created, err := fx.svc.Reserve(context.Background(), req)
	require.NoError(t, err)

	_, err = fx.svc.Cancel(context.Background(), created.ID, nil)
	require.NoError(t, err)

	rebooked := *req
	rebooked.PatientID = uuid.New()
	_, err = fx.svc.Reserve(context.Background(), &rebooked)
	require.NoError(t, err)
}

func TestReserveAfterRescheduleAwayFreesOldSlot(t *testing.T) {
	fx := newFixture(t, testNow)
	req := reserveReq("2026-03-16", "09:00")

	created, err := fx.svc.Reserve(context.Background(), req)
	require.NoError(t, err)

	_, err = fx.svc.Reschedule(context.Background(), created.ID, &model.RescheduleRequest{
		Date: "2026-03-16",
		Time: "10:00",
	})
	require.NoError(t, err)

	// The vacated 09:00 slot is immediately bookable again
	rebooked := *req
	rebooked.PatientID = uuid.New()
	second, err := fx.svc.Reserve(context.Background(), &rebooked)
	require.NoError(t, err)
	assert.Equal(t, "09:00", second.Time.String())

	// And the moved appointment still holds its new slot
	blocked := *req
	blocked.PatientID = uuid.New()
	blocked.Time = "10:00"
	_, err = fx.svc.Reserve(context.Background(), &blocked)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestReserveRejectsUnalignedTime(t *testing.T) {
	fx := newFixture(t, testNow)

	_, err := fx.svc.Reserve(context.Background(), reserveReq("2026-03-16", "09:10"))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestReserveRejectsPastDate(t *testing.T) {
	fx := newFixture(t, testNow)

	_, err := fx.svc.Reserve(context.Background(), reserveReq("2026-03-01", "09:00"))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestReserveRejectsMalformedInput(t *testing.T) {
	fx := newFixture(t, testNow)

	_, err := fx.svc.Reserve(context.Background(), reserveReq("16-03-2026", "09:00"))
	assert.True(t, apperrors.IsValidation(err))

	_, err = fx.svc.Reserve(context.Background(), reserveReq("2026-03-16", "9am"))
	assert.True(t, apperrors.IsValidation(err))
}

func TestTransitionLifecycle(t *testing.T) {
	fx := newFixture(t, testNow)

	created, err := fx.svc.Reserve(context.Background(), reserveReq("2026-03-16", "09:30"))
	require.NoError(t, err)

	// Straight to completed skips the consultation
	_, err = fx.svc.Transition(context.Background(), created.ID, &model.TransitionRequest{
		TargetStatus: model.AppointmentStatusCompleted,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsIllegalTransition(err))

	// Starting requires consent confirmation
	_, err = fx.svc.Transition(context.Background(), created.ID, &model.TransitionRequest{
		TargetStatus: model.AppointmentStatusInProgress,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	inProgress, err := fx.svc.Transition(context.Background(), created.ID, &model.TransitionRequest{
		TargetStatus:     model.AppointmentStatusInProgress,
		ConsentConfirmed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusInProgress, inProgress.Status)

	completed, err := fx.svc.Transition(context.Background(), created.ID, &model.TransitionRequest{
		TargetStatus: model.AppointmentStatusCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, completed.Status)

	// Terminal: no further transitions
	_, err = fx.svc.Cancel(context.Background(), created.ID, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsIllegalTransition(err))
}

func TestCancelRecordsReason(t *testing.T) {
	fx := newFixture(t, testNow)

	created, err := fx.svc.Reserve(context.Background(), reserveReq("2026-03-16", "10:30"))
	require.NoError(t, err)

	reason := "patient request"
	cancelled, err := fx.svc.Cancel(context.Background(), created.ID, &reason)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, reason, *cancelled.CancelReason)
}

func TestCancelFromInProgress(t *testing.T) {
	fx := newFixture(t, testNow)

	created, err := fx.svc.Reserve(context.Background(), reserveReq("2026-03-16", "11:30"))
	require.NoError(t, err)

	_, err = fx.svc.Transition(context.Background(), created.ID, &model.TransitionRequest{
		TargetStatus:     model.AppointmentStatusInProgress,
		ConsentConfirmed: true,
	})
	require.NoError(t, err)

	cancelled, err := fx.svc.Cancel(context.Background(), created.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, cancelled.Status)
}

func TestTransitionUnknownAppointment(t *testing.T) {
	fx := newFixture(t, testNow)

	_, err := fx.svc.Transition(context.Background(), uuid.New(), &model.TransitionRequest{
		TargetStatus: model.AppointmentStatusCancelled,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestTransitionRejectsVirtualTarget(t *testing.T) {
	fx := newFixture(t, testNow)

	created, err := fx.svc.Reserve(context.Background(), reserveReq("2026-03-16", "09:00"))
	require.NoError(t, err)

	_, err = fx.svc.Transition(context.Background(), created.ID, &model.TransitionRequest{
		TargetStatus: model.AppointmentStatusMissed,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestReschedule(t *testing.T) {
	fx := newFixture(t, testNow)

	created, err := fx.svc.Reserve(context.Background(), reserveReq("2026-03-16", "09:00"))
	require.NoError(t, err)
	originalUID := created.UID
	originalCreatedAt := created.CreatedAt

	moved, err := fx.svc.Reschedule(context.Background(), created.ID, &model.RescheduleRequest{
		Date: "2026-03-16",
		Time: "10:00",
	})
	require.NoError(t, err)

	assert.Equal(t, created.ID, moved.ID)
	assert.Equal(t, originalUID, moved.UID)
	assert.Equal(t, originalCreatedAt, moved.CreatedAt)
	assert.Equal(t, "10:00", moved.Time.String())
}

func TestRescheduleFailureLeavesOriginalUntouched(t *testing.T) {
	fx := newFixture(t, testNow)

	created, err := fx.svc.Reserve(context.Background(), reserveReq("2026-03-16", "09:00"))
	require.NoError(t, err)

	// Target time is not on the slot grid: validation fails before any write
	_, err = fx.svc.Reschedule(context.Background(), created.ID, &model.RescheduleRequest{
		Date: "2026-03-16",
		Time: "09:10",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	unchanged, err := fx.svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "09:00", unchanged.Time.String())
	assert.Equal(t, created.Date.String(), unchanged.Date.String())
}

func TestRescheduleToTakenSlot(t *testing.T) {
	fx := newFixture(t, testNow)
	first := reserveReq("2026-03-16", "09:00")

	created, err := fx.svc.Reserve(context.Background(), first)
	require.NoError(t, err)

	blocker := *first
	blocker.PatientID = uuid.New()
	blocker.Time = "09:30"
	_, err = fx.svc.Reserve(context.Background(), &blocker)
	require.NoError(t, err)

	_, err = fx.svc.Reschedule(context.Background(), created.ID, &model.RescheduleRequest{
		Date: "2026-03-16",
		Time: "09:30",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestRescheduleOnlyScheduled(t *testing.T) {
	fx := newFixture(t, testNow)

	created, err := fx.svc.Reserve(context.Background(), reserveReq("2026-03-16", "09:00"))
	require.NoError(t, err)

	_, err = fx.svc.Cancel(context.Background(), created.ID, nil)
	require.NoError(t, err)

	_, err = fx.svc.Reschedule(context.Background(), created.ID, &model.RescheduleRequest{
		Date: "2026-03-16",
		Time: "10:00",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsIllegalTransition(err))
}

func TestMissedIsDerivedNotStored(t *testing.T) {
	fx := newFixture(t, testNow)

	created, err := fx.svc.Reserve(context.Background(), reserveReq("2026-03-16", "09:00"))
	require.NoError(t, err)

	// A week later the scheduled appointment reads as missed
	late := newFixtureAt(t, fx, time.Date(2026, 3, 23, 8, 0, 0, 0, time.UTC))

	got, err := late.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusScheduled, got.Status)
	assert.Equal(t, model.AppointmentStatusMissed, got.Effective)

	missed, err := late.List(context.Background(), &model.AppointmentFilters{
		Status: model.AppointmentStatusMissed,
	})
	require.NoError(t, err)
	require.Len(t, missed, 1)
	assert.Equal(t, created.ID, missed[0].ID)
}

// newFixtureAt rebuilds the service over the same stores with a later clock.
func newFixtureAt(t *testing.T, fx *fixture, now time.Time) *Service {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	slots := &fakeSlotSource{loc: loc}
	return NewService(fx.repo, fx.outbox, slots, clock.Fixed(now), metrics.New("test"))
}

func TestUpdateMedicalConditions(t *testing.T) {
	fx := newFixture(t, testNow)

	created, err := fx.svc.Reserve(context.Background(), reserveReq("2026-03-16", "09:00"))
	require.NoError(t, err)

	updated, err := fx.svc.UpdateMedicalConditions(context.Background(), created.ID, []string{"diabetes", "hypertension"})
	require.NoError(t, err)
	assert.Equal(t, []string{"diabetes", "hypertension"}, []string(updated.MedicalConditions))

	_, err = fx.svc.Cancel(context.Background(), created.ID, nil)
	require.NoError(t, err)

	_, err = fx.svc.UpdateMedicalConditions(context.Background(), created.ID, []string{"asthma"})
	require.Error(t, err)
	assert.True(t, apperrors.IsIllegalTransition(err))
}

func TestLifecycleEventsEmitted(t *testing.T) {
	fx := newFixture(t, testNow)

	created, err := fx.svc.Reserve(context.Background(), reserveReq("2026-03-16", "09:00"))
	require.NoError(t, err)

	_, err = fx.svc.Reschedule(context.Background(), created.ID, &model.RescheduleRequest{
		Date: "2026-03-16",
		Time: "10:00",
	})
	require.NoError(t, err)

	_, err = fx.svc.Cancel(context.Background(), created.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		model.EventAppointmentBooked,
		model.EventAppointmentRescheduled,
		model.EventAppointmentCancelled,
	}, fx.outbox.eventTypes())
}
