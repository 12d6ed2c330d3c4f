package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/carelink/hospital-settlement/internal/settlement_service/repository"
)

type pgSequenceRepository struct {
	db     repository.Querier
	logger *slog.Logger
}

// NewPgSequenceRepository creates the counter store behind the sequence
// generator. It holds its own Querier (normally the pool): counter increments
// must commit independently of any business transaction, since a rolled-back
// charge must not reuse its allocated number.
func NewPgSequenceRepository(db repository.Querier, logger *slog.Logger) repository.SequenceRepository {
	return &pgSequenceRepository{db: db, logger: logger.With("component", "sequence_repository_pg")}
}

// NextValue increments and returns the counter for (kind, day) in one atomic
// statement. Never read-then-write in application code: the upsert is the
// whole concurrency story.
func (r *pgSequenceRepository) NextValue(ctx context.Context, kind string, day time.Time) (int64, error) {
	seqDate := day.UTC().Format("2006-01-02")
	var value int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO sequences (kind, seq_date, counter)
		VALUES ($1, $2, 1)
		ON CONFLICT (kind, seq_date)
		DO UPDATE SET counter = sequences.counter + 1
		RETURNING counter`,
		kind, seqDate,
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("incrementing sequence %s/%s: %w", kind, seqDate, err)
	}
	return value, nil
}
