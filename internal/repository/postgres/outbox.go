package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/scheduling-api/internal/model"
)

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil || event.Payload == nil {
		return fmt.Errorf("event and payload are required")
	}

	event.ID = uuid.New()
	event.Status = model.OutboxStatusPending
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox_events (id, event_type, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, event.ID, event.EventType, event.Payload, event.Status, event.CreatedAt, event.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

func (r *outboxRepository) GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	var events []*model.OutboxEvent
	err := r.db.SelectContext(ctx, &events, `
		SELECT id, event_type, payload, status, error_message, retry_count, retry_at,
		       created_at, processed_at, updated_at
		FROM outbox_events
		WHERE status = $1
		  AND (retry_at IS NULL OR retry_at <= NOW())
		ORDER BY created_at ASC
		LIMIT $2
	`, model.OutboxStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", err)
	}
	return events, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = $1, processed_at = NOW(), updated_at = NOW()
		WHERE id = $2
	`, model.OutboxStatusProcessed, id)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string, retryAt *time.Time) error {
	// A retry timestamp keeps the event pending; without one it is parked
	// as failed for manual inspection.
	status := model.OutboxStatusFailed
	if retryAt != nil {
		status = model.OutboxStatusPending
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = $1,
			error_message = $2,
			retry_count = retry_count + 1,
			retry_at = $3,
			updated_at = NOW()
		WHERE id = $4
	`, status, errorMessage, retryAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark event failed: %w", err)
	}
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM outbox_events
		WHERE status = $1 AND processed_at < $2
	`, model.OutboxStatusProcessed, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}
	return result.RowsAffected()
}
