package postgres

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/clinicdesk/scheduling-api/internal/repository"
)

const pgUniqueViolation = "23505"

type appointmentRepository struct {
	db *sqlx.DB
}

type scheduleRepository struct {
	db *sqlx.DB
}

type outboxRepository struct {
	db *sqlx.DB
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{db: db}
}

func NewScheduleRepository(db *sqlx.DB) repository.ScheduleRepository {
	return &scheduleRepository{db: db}
}

func NewOutboxRepository(db *sqlx.DB) repository.OutboxRepository {
	return &outboxRepository{db: db}
}

// mapWriteErr translates driver errors into repository sentinels so callers
// never inspect pq error codes themselves.
func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return repository.ErrSlotTaken
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}
