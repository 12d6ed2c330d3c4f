package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/hospital-settlement/internal/settlement_service/domain"
	"github.com/carelink/hospital-settlement/internal/settlement_service/repository"
)

type pgOutboxRepository struct {
	db     repository.Querier
	logger *slog.Logger
}

// NewPgOutboxRepository creates the outbox store. Insert takes a Querier so an
// event row commits atomically with the status transition that produced it;
// FetchPending and MarkSent run on the repository's own pool from the
// dispatcher loop.
func NewPgOutboxRepository(db repository.Querier, logger *slog.Logger) repository.OutboxRepository {
	return &pgOutboxRepository{db: db, logger: logger.With("component", "outbox_repository_pg")}
}

func (r *pgOutboxRepository) Insert(ctx context.Context, q repository.Querier, event *domain.OutboxEvent) error {
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	event.CreatedAt = time.Now().UTC()
	_, err := q.Exec(ctx, `
		INSERT INTO outbox_events (event_id, subject, payload, created_at)
		VALUES ($1, $2, $3, $4)`,
		event.EventID, event.Subject, event.Payload, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting outbox event %s: %w", event.Subject, err)
	}
	return nil
}

func (r *pgOutboxRepository) FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, event_id, subject, payload, created_at, sent_at
		FROM outbox_events
		WHERE sent_at IS NULL
		ORDER BY id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching pending outbox events: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		if err := rows.Scan(&e.ID, &e.EventID, &e.Subject, &e.Payload, &e.CreatedAt, &e.SentAt); err != nil {
			return nil, fmt.Errorf("scanning outbox event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *pgOutboxRepository) MarkSent(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `UPDATE outbox_events SET sent_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("marking outbox event %d sent: %w", id, err)
	}
	return nil
}
