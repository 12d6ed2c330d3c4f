package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/hospital-settlement/internal/settlement_service/repository"
)

// PgTxManager runs functions inside one pgx transaction. Required for
// atomicity across the charge header, its details, source marking, prescription
// status, inventory and outbox tables.
type PgTxManager struct {
	db *pgxpool.Pool
}

func NewPgTxManager(db *pgxpool.Pool) repository.TxManager {
	return &PgTxManager{db: db}
}

func (tm *PgTxManager) WithinTx(ctx context.Context, fn func(q repository.Querier) error) error {
	return pgx.BeginFunc(ctx, tm.db, func(tx pgx.Tx) error {
		return fn(tx)
	})
}
