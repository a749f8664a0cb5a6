package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/scheduling-api/internal/model"
)

// Sentinel errors returned by repositories. Services translate these into the
// application error taxonomy; repositories stay ignorant of HTTP.
var (
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSlotTaken means a storage-level uniqueness constraint rejected the
	// write: another blocking appointment already holds the slot.
	ErrSlotTaken = errors.New("slot already taken")

	// ErrStaleStatus means the row exists but a conditional update's status
	// precondition did not hold at write time.
	ErrStaleStatus = errors.New("status precondition failed")
)

type (
	// AppointmentRepository is the booking ledger's storage. Every write is a
	// single atomic conditional statement; no method is allowed to implement
	// check-then-act across round trips.
	AppointmentRepository interface {
		// Create inserts a new appointment. The partial unique index over
		// (clinic_id, doctor_id, appointment_date, appointment_time) for
		// blocking statuses makes this the reservation point; a violation
		// surfaces as ErrSlotTaken.
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)

		// UpdateStatus transitions id from expected to target in one
		// conditional update. ErrStaleStatus when the row exists but is no
		// longer in expected; ErrNotFound when it does not exist.
		UpdateStatus(ctx context.Context, id uuid.UUID, expected, target model.AppointmentStatus, cancelReason *string) (*model.Appointment, error)

		// Reschedule moves a scheduled appointment to a new date/time in
		// place, preserving uid and audit timestamps. The same unique index
		// that guards Create rejects a conflicting target (ErrSlotTaken).
		Reschedule(ctx context.Context, id uuid.UUID, date model.Date, timeOfDay model.TimeOfDay) (*model.Appointment, error)

		// UpdateMedicalConditions replaces the conditions list; allowed in
		// any non-terminal status.
		UpdateMedicalConditions(ctx context.Context, id uuid.UUID, conditions []string) (*model.Appointment, error)
	}

	// ScheduleRepository stores the weekly templates, leave overrides and
	// per-doctor slot settings consumed by the calendar and generator.
	ScheduleRepository interface {
		GetWeeklyAvailability(ctx context.Context, doctorID uuid.UUID) (*model.WeeklyAvailability, error)
		UpsertWeeklyAvailability(ctx context.Context, availability *model.WeeklyAvailability) error

		HasLeave(ctx context.Context, doctorID uuid.UUID, date model.Date) (bool, error)
		CreateLeave(ctx context.Context, leave *model.LeaveEntry) error
		DeleteLeave(ctx context.Context, doctorID uuid.UUID, date model.Date) error
		ListLeaves(ctx context.Context, doctorID uuid.UUID) ([]*model.LeaveEntry, error)

		GetSettings(ctx context.Context, doctorID uuid.UUID) (*model.ScheduleSettings, error)
		UpsertSettings(ctx context.Context, settings *model.ScheduleSettings) error
	}

	// OutboxRepository stores lifecycle events pending publication.
	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
