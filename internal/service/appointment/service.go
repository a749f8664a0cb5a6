package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/clinicdesk/scheduling-api/internal/model"
	"github.com/clinicdesk/scheduling-api/internal/repository"
	"github.com/clinicdesk/scheduling-api/pkg/clock"
	apperrors "github.com/clinicdesk/scheduling-api/pkg/errors"
	"github.com/clinicdesk/scheduling-api/pkg/metrics"
)

// SlotSource supplies live slot membership and doctor configuration. The
// schedule service satisfies it.
type SlotSource interface {
	GenerateSlots(ctx context.Context, doctorID uuid.UUID, date model.Date) ([]model.TimeOfDay, error)
	GetSettings(ctx context.Context, doctorID uuid.UUID) (*model.ScheduleSettings, error)
	Location() *time.Location
}

type Service struct {
	repo    repository.AppointmentRepository
	outbox  repository.OutboxRepository
	slots   SlotSource
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewService(repo repository.AppointmentRepository, outbox repository.OutboxRepository, slots SlotSource, clk clock.Clock, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		outbox:  outbox,
		slots:   slots,
		clock:   clk,
		metrics: m,
	}
}

// Reserve is the single entry point for creating an appointment. The
// requested time must be a member of the live slot set; the actual exclusion
// guarantee is the storage-level unique index hit by the insert, never a
// read-then-write check here.
func (s *Service) Reserve(ctx context.Context, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	date, err := model.ParseDate(req.Date)
	if err != nil {
		return nil, apperrors.NewValidation("%v", err)
	}
	timeOfDay, err := model.ParseTimeOfDay(req.Time)
	if err != nil {
		return nil, apperrors.NewValidation("%v", err)
	}

	now := s.clock.Now().In(s.slots.Location())
	if date.Before(model.DateOf(now).Time) {
		return nil, apperrors.NewValidation("appointment date %s is in the past", date)
	}

	if err := s.checkSlotAligned(ctx, req.DoctorID, date, timeOfDay); err != nil {
		return nil, err
	}

	appointment := &model.Appointment{
		ID:                uuid.New(),
		UID:               newUID(),
		ClinicID:          req.ClinicID,
		DoctorID:          req.DoctorID,
		PatientID:         req.PatientID,
		Date:              date,
		Time:              timeOfDay,
		Status:            model.AppointmentStatusScheduled,
		Provisional:       req.Provisional,
		PatientNote:       req.PatientNote,
		MedicalConditions: req.MedicalConditions,
		DoctorName:        s.doctorName(ctx, req.DoctorID),
	}
	if appointment.MedicalConditions == nil {
		appointment.MedicalConditions = []string{}
	}

	if err := s.repo.Create(ctx, appointment); err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			s.metrics.ReservationConflicts.Inc()
			return nil, apperrors.NewConflict("slot %s %s is already booked", date, timeOfDay)
		}
		return nil, apperrors.NewUnavailable(err, "failed to reserve slot")
	}

	s.metrics.ReservationsTotal.Inc()
	s.emitEvent(ctx, model.EventAppointmentBooked, appointment)

	log.Info().
		Str("appointment_uid", appointment.UID).
		Str("doctor_id", appointment.DoctorID.String()).
		Str("date", date.String()).
		Str("time", timeOfDay.String()).
		Bool("provisional", appointment.Provisional).
		Msg("slot reserved")

	return s.decorate(appointment), nil
}

// Transition moves the appointment through the lifecycle state machine:
// scheduled → in-progress → completed, with cancellation allowed from any
// non-terminal state. The status precondition is re-validated inside the
// storage update, so two staff members racing on the same appointment cannot
// both win.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, req *model.TransitionRequest) (*model.Appointment, error) {
	target := req.TargetStatus
	if !target.ValidStored() || target == model.AppointmentStatusScheduled {
		return nil, apperrors.NewValidation("invalid target status %q", target)
	}

	current, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("appointment")
	}
	if err != nil {
		return nil, apperrors.NewUnavailable(err, "failed to load appointment")
	}

	if !model.CanTransition(current.Status, target) {
		return nil, apperrors.NewIllegalTransition("cannot transition from %s to %s", current.Status, target)
	}

	// Staff must acknowledge the patient consent step before a
	// consultation starts; the consent flow itself lives outside the
	// engine.
	if target == model.AppointmentStatusInProgress && !req.ConsentConfirmed {
		return nil, apperrors.NewValidation("consent confirmation is required to start the consultation")
	}

	updated, err := s.repo.UpdateStatus(ctx, id, current.Status, target, req.CancelReason)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NewNotFound("appointment")
		case errors.Is(err, repository.ErrStaleStatus):
			return nil, apperrors.NewIllegalTransition("appointment status changed concurrently, no longer %s", current.Status)
		default:
			return nil, apperrors.NewUnavailable(err, "failed to update appointment status")
		}
	}

	if target == model.AppointmentStatusCancelled {
		s.metrics.CancellationsTotal.Inc()
		s.emitEvent(ctx, model.EventAppointmentCancelled, updated)
	} else {
		s.emitEvent(ctx, model.EventAppointmentTransition, updated)
	}

	log.Info().
		Str("appointment_uid", updated.UID).
		Str("from", string(current.Status)).
		Str("to", string(target)).
		Msg("appointment transitioned")

	return s.decorate(updated), nil
}

// Cancel is a status write to cancelled. Cancellation frees the slot purely
// through the uniqueness index's status scoping; no separate release exists.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason *string) (*model.Appointment, error) {
	return s.Transition(ctx, id, &model.TransitionRequest{
		TargetStatus: model.AppointmentStatusCancelled,
		CancelReason: reason,
	})
}

// Reschedule validates the new slot through the same path as Reserve before
// touching the existing row, then updates date/time in place. A failed
// validation leaves the original appointment completely untouched.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, req *model.RescheduleRequest) (*model.Appointment, error) {
	date, err := model.ParseDate(req.Date)
	if err != nil {
		return nil, apperrors.NewValidation("%v", err)
	}
	timeOfDay, err := model.ParseTimeOfDay(req.Time)
	if err != nil {
		return nil, apperrors.NewValidation("%v", err)
	}

	current, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("appointment")
	}
	if err != nil {
		return nil, apperrors.NewUnavailable(err, "failed to load appointment")
	}
	if current.Status != model.AppointmentStatusScheduled {
		return nil, apperrors.NewIllegalTransition("only scheduled appointments can be rescheduled, status is %s", current.Status)
	}

	now := s.clock.Now().In(s.slots.Location())
	if date.Before(model.DateOf(now).Time) {
		return nil, apperrors.NewValidation("appointment date %s is in the past", date)
	}
	if err := s.checkSlotAligned(ctx, current.DoctorID, date, timeOfDay); err != nil {
		return nil, err
	}

	updated, err := s.repo.Reschedule(ctx, id, date, timeOfDay)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSlotTaken):
			s.metrics.ReservationConflicts.Inc()
			return nil, apperrors.NewConflict("slot %s %s is already booked", date, timeOfDay)
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NewNotFound("appointment")
		case errors.Is(err, repository.ErrStaleStatus):
			return nil, apperrors.NewIllegalTransition("appointment is no longer scheduled")
		default:
			return nil, apperrors.NewUnavailable(err, "failed to reschedule appointment")
		}
	}

	s.metrics.ReschedulesTotal.Inc()
	s.emitEvent(ctx, model.EventAppointmentRescheduled, updated)

	log.Info().
		Str("appointment_uid", updated.UID).
		Str("date", date.String()).
		Str("time", timeOfDay.String()).
		Msg("appointment rescheduled")

	return s.decorate(updated), nil
}

// UpdateMedicalConditions replaces the conditions list. Independent of the
// state machine, allowed in any non-terminal state.
func (s *Service) UpdateMedicalConditions(ctx context.Context, id uuid.UUID, conditions []string) (*model.Appointment, error) {
	if conditions == nil {
		conditions = []string{}
	}
	updated, err := s.repo.UpdateMedicalConditions(ctx, id, conditions)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NewNotFound("appointment")
		case errors.Is(err, repository.ErrStaleStatus):
			return nil, apperrors.NewIllegalTransition("cannot update conditions of a completed or cancelled appointment")
		default:
			return nil, apperrors.NewUnavailable(err, "failed to update medical conditions")
		}
	}
	return s.decorate(updated), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	appointment, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("appointment")
	}
	if err != nil {
		return nil, apperrors.NewUnavailable(err, "failed to load appointment")
	}
	return s.decorate(appointment), nil
}

// List returns appointments matching the filters. The virtual missed status
// is computed here at query time; no stored row ever carries it.
func (s *Service) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	appointments, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, apperrors.NewUnavailable(err, "failed to list appointments")
	}

	result := make([]*model.Appointment, 0, len(appointments))
	for _, appointment := range appointments {
		decorated := s.decorate(appointment)
		if filters.Status == model.AppointmentStatusMissed &&
			decorated.Effective != model.AppointmentStatusMissed {
			continue
		}
		result = append(result, decorated)
	}
	return result, nil
}

func (s *Service) checkSlotAligned(ctx context.Context, doctorID uuid.UUID, date model.Date, timeOfDay model.TimeOfDay) error {
	slots, err := s.slots.GenerateSlots(ctx, doctorID, date)
	if err != nil {
		return err
	}
	for _, slot := range slots {
		if slot == timeOfDay {
			return nil
		}
	}
	return apperrors.NewValidation("%s is not an available slot for %s", timeOfDay, date)
}

func (s *Service) decorate(appointment *model.Appointment) *model.Appointment {
	now := s.clock.Now().In(s.slots.Location())
	appointment.Effective = appointment.EffectiveStatus(now, s.slots.Location())
	return appointment
}

func (s *Service) doctorName(ctx context.Context, doctorID uuid.UUID) string {
	settings, err := s.slots.GetSettings(ctx, doctorID)
	if err != nil {
		return ""
	}
	return settings.DoctorName
}

// emitEvent records a lifecycle event for the outbox worker. Event loss is
// logged, never turned into a request failure: the booking write already
// committed.
func (s *Service) emitEvent(ctx context.Context, eventType string, appointment *model.Appointment) {
	payload, err := json.Marshal(map[string]interface{}{
		"appointment_id": appointment.ID,
		"uid":            appointment.UID,
		"clinic_id":      appointment.ClinicID,
		"doctor_id":      appointment.DoctorID,
		"patient_id":     appointment.PatientID,
		"date":           appointment.Date.String(),
		"time":           appointment.Time.String(),
		"status":         appointment.Status,
		"provisional":    appointment.Provisional,
	})
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		return
	}

	event := &model.OutboxEvent{EventType: eventType, Payload: payload}
	if err := s.outbox.Create(ctx, event); err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to enqueue outbox event")
	}
}

func newUID() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "APT-" + strings.ToUpper(raw[:8])
}
