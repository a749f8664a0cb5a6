package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/scheduling-api/internal/model"
	"github.com/clinicdesk/scheduling-api/internal/repository"
)

func (r *scheduleRepository) GetWeeklyAvailability(ctx context.Context, doctorID uuid.UUID) (*model.WeeklyAvailability, error) {
	query := `
		SELECT doctor_id, weekday, window_name, start_time, end_time, is_off
		FROM doctor_availability
		WHERE doctor_id = $1
	`
	var rows []*model.AvailabilityWindow
	if err := r.db.SelectContext(ctx, &rows, query, doctorID); err != nil {
		return nil, fmt.Errorf("failed to get weekly availability: %w", err)
	}
	if len(rows) == 0 {
		return nil, repository.ErrNotFound
	}

	availability := &model.WeeklyAvailability{
		DoctorID: doctorID,
		Days:     make(map[model.Weekday]model.DaySchedule),
	}
	for _, row := range rows {
		day := availability.Days[row.Weekday]
		window := &model.Window{Start: row.Start, End: row.End, Off: row.Off}
		switch row.Window {
		case model.WindowMorning:
			day.Morning = window
		case model.WindowEvening:
			day.Evening = window
		}
		availability.Days[row.Weekday] = day
	}
	return availability, nil
}

// UpsertWeeklyAvailability replaces the doctor's whole template in one
// transaction; partial templates would leave stale windows behind.
func (r *scheduleRepository) UpsertWeeklyAvailability(ctx context.Context, availability *model.WeeklyAvailability) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM doctor_availability WHERE doctor_id = $1`, availability.DoctorID); err != nil {
		return fmt.Errorf("failed to clear weekly availability: %w", err)
	}

	insert := `
		INSERT INTO doctor_availability (
			doctor_id, weekday, window_name, start_time, end_time, is_off
		) VALUES ($1, $2, $3, $4, $5, $6)
	`
	for weekday, day := range availability.Days {
		if day.Morning != nil {
			if _, err := tx.ExecContext(ctx, insert,
				availability.DoctorID, weekday, model.WindowMorning,
				day.Morning.Start, day.Morning.End, day.Morning.Off); err != nil {
				return fmt.Errorf("failed to insert availability window: %w", err)
			}
		}
		if day.Evening != nil {
			if _, err := tx.ExecContext(ctx, insert,
				availability.DoctorID, weekday, model.WindowEvening,
				day.Evening.Start, day.Evening.End, day.Evening.Off); err != nil {
				return fmt.Errorf("failed to insert availability window: %w", err)
			}
		}
	}

	return tx.Commit()
}

func (r *scheduleRepository) HasLeave(ctx context.Context, doctorID uuid.UUID, date model.Date) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM doctor_leaves
			WHERE doctor_id = $1 AND leave_date = $2
		)
	`, doctorID, date)
	if err != nil {
		return false, fmt.Errorf("failed to check leave: %w", err)
	}
	return exists, nil
}

func (r *scheduleRepository) CreateLeave(ctx context.Context, leave *model.LeaveEntry) error {
	leave.ID = uuid.New()
	leave.Day = model.WeekdayOf(leave.Date)
	leave.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO doctor_leaves (id, doctor_id, day, leave_date, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (doctor_id, leave_date) DO NOTHING
	`, leave.ID, leave.DoctorID, leave.Day, leave.Date, leave.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create leave: %w", err)
	}
	return nil
}

func (r *scheduleRepository) DeleteLeave(ctx context.Context, doctorID uuid.UUID, date model.Date) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM doctor_leaves WHERE doctor_id = $1 AND leave_date = $2
	`, doctorID, date)
	if err != nil {
		return fmt.Errorf("failed to delete leave: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *scheduleRepository) ListLeaves(ctx context.Context, doctorID uuid.UUID) ([]*model.LeaveEntry, error) {
	var leaves []*model.LeaveEntry
	err := r.db.SelectContext(ctx, &leaves, `
		SELECT id, doctor_id, day, leave_date, created_at
		FROM doctor_leaves
		WHERE doctor_id = $1
		ORDER BY leave_date ASC
	`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list leaves: %w", err)
	}
	return leaves, nil
}

func (r *scheduleRepository) GetSettings(ctx context.Context, doctorID uuid.UUID) (*model.ScheduleSettings, error) {
	var settings model.ScheduleSettings
	err := r.db.GetContext(ctx, &settings, `
		SELECT doctor_id, doctor_name, slot_duration_minutes, updated_at
		FROM doctor_schedule_settings
		WHERE doctor_id = $1
	`, doctorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule settings: %w", err)
	}
	return &settings, nil
}

func (r *scheduleRepository) UpsertSettings(ctx context.Context, settings *model.ScheduleSettings) error {
	settings.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO doctor_schedule_settings (doctor_id, doctor_name, slot_duration_minutes, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (doctor_id) DO UPDATE
		SET doctor_name = EXCLUDED.doctor_name,
			slot_duration_minutes = EXCLUDED.slot_duration_minutes,
			updated_at = EXCLUDED.updated_at
	`, settings.DoctorID, settings.DoctorName, settings.SlotDurationMinutes, settings.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert schedule settings: %w", err)
	}
	return nil
}
