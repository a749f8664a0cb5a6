package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clinicdesk/scheduling-api/internal/model"
	"github.com/clinicdesk/scheduling-api/internal/repository"
	"github.com/clinicdesk/scheduling-api/pkg/logger"
	"github.com/clinicdesk/scheduling-api/pkg/messaging"
	"github.com/clinicdesk/scheduling-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// OutboxProcessor drains pending appointment lifecycle events and publishes
// them to the broker. Delivery is at-least-once: an event stays pending with
// a retry_at backoff until RetryAttempts is exhausted, then is marked failed.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *OutboxProcessor {
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

// processedRetention bounds how long published events stay queryable before
// the retention sweep removes them.
const (
	processedRetention = 7 * 24 * time.Hour
	cleanupInterval    = time.Hour
)

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	cleanup := time.NewTicker(cleanupInterval)
	defer cleanup.Stop()

	p.logger.Info("Starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if err := p.processEvents(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		case <-cleanup.C:
			deleted, err := p.repo.DeleteProcessedBefore(ctx, time.Now().Add(-processedRetention))
			if err != nil {
				p.logger.Error(err, "Failed to clean up processed events")
				continue
			}
			if deleted > 0 {
				p.logger.Info("Cleaned up processed events", "deleted", deleted)
			}
		}
	}
}

func (p *OutboxProcessor) processEvents(ctx context.Context) error {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.GetPendingEvents(ctx, p.config.BatchSize)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "error").Inc()
		return fmt.Errorf("failed to get pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "success").Inc()

	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error(err, "Failed to process event",
				"event_id", event.ID.String(),
				"event_type", event.EventType)
			continue
		}
	}

	return nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	if err := p.broker.Publish(ctx, event.EventType, event.Payload); err != nil {
		p.metrics.OutboxEventsFailed.Inc()

		// Keep retrying with a delay until the attempt budget runs out.
		var retryAt *time.Time
		if event.RetryCount+1 < p.config.RetryAttempts {
			at := time.Now().Add(p.config.RetryDelay)
			retryAt = &at
		}
		if updateErr := p.repo.MarkFailed(ctx, event.ID, err.Error(), retryAt); updateErr != nil {
			p.logger.Error(updateErr, "Failed to update event status", "event_id", event.ID.String())
		}
		return err
	}

	p.metrics.OutboxEventsProcessed.Inc()
	if err := p.repo.MarkProcessed(ctx, event.ID); err != nil {
		p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
		return err
	}

	return nil
}
