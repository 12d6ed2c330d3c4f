package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/carelink/hospital-settlement/internal/settlement_service/repository"
)

// EventPublisher delivers one event to the message broker. Implemented by the
// platform NATS client; mocked in tests.
type EventPublisher interface {
	Publish(subject string, data []byte) error
}

// OutboxDispatcher drains pending outbox rows to the broker. Delivery is
// at-least-once: a row is marked sent only after a successful publish, so a
// crash between publish and mark replays the event and consumers dedupe on the
// embedded event id.
type OutboxDispatcher struct {
	outboxRepo repository.OutboxRepository
	publisher  EventPublisher
	interval   time.Duration
	batchSize  int
	logger     *slog.Logger
}

func NewOutboxDispatcher(
	outboxRepo repository.OutboxRepository,
	publisher EventPublisher,
	interval time.Duration,
	batchSize int,
	logger *slog.Logger,
) *OutboxDispatcher {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &OutboxDispatcher{
		outboxRepo: outboxRepo,
		publisher:  publisher,
		interval:   interval,
		batchSize:  batchSize,
		logger:     logger.With("component", "outbox_dispatcher"),
	}
}

// Run polls until ctx is cancelled.
func (d *OutboxDispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.DispatchPending(ctx); err != nil {
				d.logger.ErrorContext(ctx, "outbox dispatch cycle failed", "error", err)
			}
		}
	}
}

// DispatchPending publishes one batch of pending events. Publish failures stop
// the batch; the remaining rows are retried next cycle in insertion order.
func (d *OutboxDispatcher) DispatchPending(ctx context.Context) error {
	events, err := d.outboxRepo.FetchPending(ctx, d.batchSize)
	if err != nil {
		return err
	}
	for _, event := range events {
		if err := d.publisher.Publish(event.Subject, event.Payload); err != nil {
			outboxPublishedCounter.WithLabelValues(event.Subject, "error").Inc()
			d.logger.WarnContext(ctx, "failed to publish outbox event, will retry",
				"event_id", event.EventID, "subject", event.Subject, "error", err)
			return err
		}
		if err := d.outboxRepo.MarkSent(ctx, event.ID); err != nil {
			// Published but not marked: the event will be re-published next
			// cycle, which at-least-once delivery tolerates.
			d.logger.WarnContext(ctx, "failed to mark outbox event sent",
				"event_id", event.EventID, "error", err)
			return err
		}
		outboxPublishedCounter.WithLabelValues(event.Subject, "success").Inc()
	}
	return nil
}
