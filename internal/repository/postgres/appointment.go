package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/clinicdesk/scheduling-api/internal/model"
	"github.com/clinicdesk/scheduling-api/internal/repository"
)

const appointmentColumns = `
	id, uid, clinic_id, doctor_id, patient_id,
	appointment_date, appointment_time, status, provisional,
	patient_note, medical_conditions, doctor_name, cancel_reason,
	created_at, updated_at
`

// Create is the reservation point. The partial unique index
// appointments_slot_uniq (clinic_id, doctor_id, appointment_date,
// appointment_time) WHERE status IN ('scheduled', 'in-progress') makes the
// insert an atomic conditional reservation; two concurrent inserts for the
// same slot cannot both commit.
func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, uid, clinic_id, doctor_id, patient_id,
			appointment_date, appointment_time, status, provisional,
			patient_note, medical_conditions, doctor_name,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	appointment.CreatedAt = time.Now()
	appointment.UpdatedAt = appointment.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		appointment.ID,
		appointment.UID,
		appointment.ClinicID,
		appointment.DoctorID,
		appointment.PatientID,
		appointment.Date,
		appointment.Time,
		appointment.Status,
		appointment.Provisional,
		appointment.PatientNote,
		appointment.MedicalConditions,
		appointment.DoctorName,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	if err := mapWriteErr(err); err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			return err
		}
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var appointment model.Appointment
	err := r.db.GetContext(ctx, &appointment, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE 1=1`
	args := []interface{}{}
	argCount := 1

	if filters.ClinicID != uuid.Nil {
		query += fmt.Sprintf(" AND clinic_id = $%d", argCount)
		args = append(args, filters.ClinicID)
		argCount++
	}
	if filters.DoctorID != uuid.Nil {
		query += fmt.Sprintf(" AND doctor_id = $%d", argCount)
		args = append(args, filters.DoctorID)
		argCount++
	}
	if filters.PatientID != uuid.Nil {
		query += fmt.Sprintf(" AND patient_id = $%d", argCount)
		args = append(args, filters.PatientID)
		argCount++
	}
	if filters.Status != "" {
		// The missed view is derived from scheduled rows; the caller
		// narrows them afterwards.
		stored := filters.Status
		if stored == model.AppointmentStatusMissed {
			stored = model.AppointmentStatusScheduled
		}
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, stored)
		argCount++
	}
	if filters.From != nil {
		query += fmt.Sprintf(" AND appointment_date >= $%d", argCount)
		args = append(args, *filters.From)
		argCount++
	}
	if filters.To != nil {
		query += fmt.Sprintf(" AND appointment_date <= $%d", argCount)
		args = append(args, *filters.To)
		argCount++
	}

	query += " ORDER BY appointment_date ASC, appointment_time ASC"

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

// UpdateStatus re-validates the expected status inside the update itself so
// concurrent staff actions on the same appointment cannot lose updates.
func (r *appointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expected, target model.AppointmentStatus, cancelReason *string) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET status = $1,
			cancel_reason = COALESCE($2, cancel_reason),
			updated_at = NOW()
		WHERE id = $3 AND status = $4
		RETURNING ` + appointmentColumns

	var appointment model.Appointment
	err := r.db.GetContext(ctx, &appointment, query, target, cancelReason, id, expected)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.classifyMiss(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update appointment status: %w", err)
	}
	return &appointment, nil
}

// Reschedule moves the appointment in place, never delete-and-recreate, so
// uid and created_at survive. The slot uniqueness index applies to updates
// the same way it applies to inserts.
func (r *appointmentRepository) Reschedule(ctx context.Context, id uuid.UUID, date model.Date, timeOfDay model.TimeOfDay) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET appointment_date = $1,
			appointment_time = $2,
			updated_at = NOW()
		WHERE id = $3 AND status = $4
		RETURNING ` + appointmentColumns

	var appointment model.Appointment
	err := r.db.GetContext(ctx, &appointment, query, date, timeOfDay, id, model.AppointmentStatusScheduled)
	if err := mapWriteErr(err); err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			return nil, err
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, r.classifyMiss(ctx, id)
		}
		return nil, fmt.Errorf("failed to reschedule appointment: %w", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) UpdateMedicalConditions(ctx context.Context, id uuid.UUID, conditions []string) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET medical_conditions = $1,
			updated_at = NOW()
		WHERE id = $2 AND status NOT IN ($3, $4)
		RETURNING ` + appointmentColumns

	var appointment model.Appointment
	err := r.db.GetContext(ctx, &appointment, query,
		pq.StringArray(conditions), id,
		model.AppointmentStatusCompleted, model.AppointmentStatusCancelled,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.classifyMiss(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update medical conditions: %w", err)
	}
	return &appointment, nil
}

// classifyMiss distinguishes a missing row from a row whose status no longer
// satisfies the conditional update's predicate.
func (r *appointmentRepository) classifyMiss(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id)
	if err != nil {
		return fmt.Errorf("failed to check appointment existence: %w", err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrStaleStatus
}
