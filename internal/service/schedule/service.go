package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/clinicdesk/scheduling-api/internal/model"
	"github.com/clinicdesk/scheduling-api/internal/repository"
	"github.com/clinicdesk/scheduling-api/pkg/clock"
	apperrors "github.com/clinicdesk/scheduling-api/pkg/errors"
)

// slotCacheTTL bounds staleness of the cached read path. Booking validation
// never reads the cache.
const slotCacheTTL = 5 * time.Second

type Service struct {
	repo  repository.ScheduleRepository
	clock clock.Clock
	loc   *time.Location
	cache *gocache.Cache
}

func NewService(repo repository.ScheduleRepository, clk clock.Clock, loc *time.Location) *Service {
	return &Service{
		repo:  repo,
		clock: clk,
		loc:   loc,
		cache: gocache.New(slotCacheTTL, time.Minute),
	}
}

// Location returns the clinic timezone all wall-clock math is anchored to.
func (s *Service) Location() *time.Location {
	return s.loc
}

// ResolveOpenIntervals resolves the doctor's weekly template plus leave
// overrides into [start, end) intervals for one date. Leave is absolute: a
// matching entry empties the day regardless of the template. A missing or
// malformed template fails open to no availability, since an empty result is
// always a safe, bookable-nothing default.
func (s *Service) ResolveOpenIntervals(ctx context.Context, doctorID uuid.UUID, date model.Date) ([]model.OpenInterval, error) {
	onLeave, err := s.repo.HasLeave(ctx, doctorID, date)
	if err != nil {
		return nil, apperrors.NewUnavailable(err, "failed to resolve availability")
	}
	if onLeave {
		return nil, nil
	}

	availability, err := s.repo.GetWeeklyAvailability(ctx, doctorID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewUnavailable(err, "failed to resolve availability")
	}

	day := availability.Days[model.WeekdayOf(date)]
	var intervals []model.OpenInterval
	for _, window := range []*model.Window{day.Morning, day.Evening} {
		if window == nil || window.Off || !window.Valid() {
			continue
		}
		intervals = append(intervals, model.OpenInterval{Start: window.Start, End: window.End})
	}

	sort.Slice(intervals, func(i, j int) bool { return intervals[i].Start < intervals[j].Start })
	return intervals, nil
}

// GenerateSlots discretizes the open intervals into slot start times. Walks
// each interval in steps of the doctor's slot duration, emitting a boundary
// only while boundary+duration <= end, so no partial slot is ever produced.
// For the current date in the clinic timezone, boundaries not strictly after
// the current wall-clock time are dropped. Results are recomputed per call
// and always reflect live leave/availability state.
func (s *Service) GenerateSlots(ctx context.Context, doctorID uuid.UUID, date model.Date) ([]model.TimeOfDay, error) {
	settings, err := s.repo.GetSettings(ctx, doctorID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewUnavailable(err, "failed to load schedule settings")
	}
	if settings.SlotDurationMinutes <= 0 {
		return nil, apperrors.NewValidation("slot duration must be positive, got %d", settings.SlotDurationMinutes)
	}

	intervals, err := s.ResolveOpenIntervals(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}

	duration := settings.SlotDurationMinutes
	var slots []model.TimeOfDay
	for _, interval := range intervals {
		for t := interval.Start; t.Minutes()+duration <= interval.End.Minutes(); t += model.TimeOfDay(duration) {
			slots = append(slots, t)
		}
	}

	now := s.clock.Now().In(s.loc)
	if model.DateOf(now).Equal(date.Time) {
		cutoff := model.TimeOfDay(now.Hour()*60 + now.Minute())
		filtered := slots[:0]
		for _, t := range slots {
			if t > cutoff {
				filtered = append(filtered, t)
			}
		}
		slots = filtered
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })

	// Overlapping morning/evening windows may emit the same boundary twice;
	// each start time appears once in the result.
	deduped := slots[:0]
	last := model.TimeOfDay(-1)
	for _, t := range slots {
		if t == last {
			continue
		}
		deduped = append(deduped, t)
		last = t
	}
	return deduped, nil
}

// CachedSlots serves the read-only slots endpoint through a short-lived
// cache. Safe because the endpoint is idempotent and documented as cacheable
// for a few seconds; the booking path calls GenerateSlots directly.
func (s *Service) CachedSlots(ctx context.Context, doctorID uuid.UUID, date model.Date) ([]model.TimeOfDay, error) {
	key := fmt.Sprintf("%s|%s", doctorID, date)
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]model.TimeOfDay), nil
	}

	slots, err := s.GenerateSlots(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, slots, gocache.DefaultExpiration)
	return slots, nil
}

// UpsertAvailability replaces the doctor's weekly template after validating
// every window.
func (s *Service) UpsertAvailability(ctx context.Context, doctorID uuid.UUID, days map[model.Weekday]model.DaySchedule) error {
	for weekday, day := range days {
		for name, window := range map[model.WindowName]*model.Window{
			model.WindowMorning: day.Morning,
			model.WindowEvening: day.Evening,
		} {
			if window != nil && !window.Valid() {
				return apperrors.NewValidation("%s %s window: start must be before end", weekday, name)
			}
		}
		if overlapping(day.Morning, day.Evening) {
			return apperrors.NewValidation("%s: morning and evening windows overlap", weekday)
		}
	}

	availability := &model.WeeklyAvailability{DoctorID: doctorID, Days: days}
	if err := s.repo.UpsertWeeklyAvailability(ctx, availability); err != nil {
		return apperrors.NewUnavailable(err, "failed to save weekly availability")
	}
	s.cache.Flush()
	return nil
}

func overlapping(morning, evening *model.Window) bool {
	if morning == nil || evening == nil || morning.Off || evening.Off {
		return false
	}
	return morning.End > evening.Start && evening.End > morning.Start
}

// GetAvailability returns the stored weekly template.
func (s *Service) GetAvailability(ctx context.Context, doctorID uuid.UUID) (*model.WeeklyAvailability, error) {
	availability, err := s.repo.GetWeeklyAvailability(ctx, doctorID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("weekly availability")
	}
	if err != nil {
		return nil, apperrors.NewUnavailable(err, "failed to load weekly availability")
	}
	return availability, nil
}

func (s *Service) CreateLeave(ctx context.Context, doctorID uuid.UUID, date model.Date) (*model.LeaveEntry, error) {
	leave := &model.LeaveEntry{DoctorID: doctorID, Date: date}
	if err := s.repo.CreateLeave(ctx, leave); err != nil {
		return nil, apperrors.NewUnavailable(err, "failed to create leave")
	}
	s.cache.Flush()
	return leave, nil
}

func (s *Service) DeleteLeave(ctx context.Context, doctorID uuid.UUID, date model.Date) error {
	err := s.repo.DeleteLeave(ctx, doctorID, date)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("leave entry")
	}
	if err != nil {
		return apperrors.NewUnavailable(err, "failed to delete leave")
	}
	s.cache.Flush()
	return nil
}

func (s *Service) ListLeaves(ctx context.Context, doctorID uuid.UUID) ([]*model.LeaveEntry, error) {
	leaves, err := s.repo.ListLeaves(ctx, doctorID)
	if err != nil {
		return nil, apperrors.NewUnavailable(err, "failed to list leaves")
	}
	return leaves, nil
}

// GetSettings returns the doctor's slot configuration.
func (s *Service) GetSettings(ctx context.Context, doctorID uuid.UUID) (*model.ScheduleSettings, error) {
	settings, err := s.repo.GetSettings(ctx, doctorID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("schedule settings")
	}
	if err != nil {
		return nil, apperrors.NewUnavailable(err, "failed to load schedule settings")
	}
	return settings, nil
}

// UpsertSettings writes the doctor's slot configuration. A non-positive slot
// duration is a configuration error and is rejected here, at the owning
// component, never silently corrected downstream.
func (s *Service) UpsertSettings(ctx context.Context, settings *model.ScheduleSettings) error {
	if settings.SlotDurationMinutes <= 0 {
		return apperrors.NewValidation("slot duration must be positive, got %d", settings.SlotDurationMinutes)
	}
	if err := s.repo.UpsertSettings(ctx, settings); err != nil {
		return apperrors.NewUnavailable(err, "failed to save schedule settings")
	}
	s.cache.Flush()
	return nil
}
