package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/carelink/hospital-settlement/internal/settlement_service/domain"
	"github.com/carelink/hospital-settlement/internal/settlement_service/repository"
)

type pgInventoryRepository struct {
	logger *slog.Logger
}

func NewPgInventoryRepository(logger *slog.Logger) repository.InventoryRepository {
	return &pgInventoryRepository{logger: logger.With("component", "inventory_repository_pg")}
}

func (r *pgInventoryRepository) GetMedicine(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.Medicine, error) {
	m := &domain.Medicine{}
	err := q.QueryRow(ctx, `
		SELECT id, name, stock, unit_price, updated_at FROM medicines WHERE id = $1`, id,
	).Scan(&m.ID, &m.Name, &m.Stock, &m.UnitPrice, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("querying medicine %s: %w", id, err)
	}
	return m, nil
}

// AdjustStock applies the delta in one conditional update. The predicate
// refuses any adjustment that would drive stock negative, so a false return
// means either missing medicine or insufficient stock; the caller re-reads to
// tell them apart.
func (r *pgInventoryRepository) AdjustStock(ctx context.Context, q repository.Querier, medicineID uuid.UUID, delta int32) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE medicines SET stock = stock + $1, updated_at = $2
		WHERE id = $3 AND stock + $1 >= 0`,
		delta, time.Now().UTC(), medicineID,
	)
	if err != nil {
		return false, fmt.Errorf("adjusting stock for medicine %s by %d: %w", medicineID, delta, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgInventoryRepository) RecordAdjustment(ctx context.Context, q repository.Querier, adj *domain.InventoryAdjustment) error {
	if adj.ID == uuid.Nil {
		adj.ID = uuid.New()
	}
	adj.CreatedAt = time.Now().UTC()
	_, err := q.Exec(ctx, `
		INSERT INTO inventory_adjustments (id, medicine_id, delta, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		adj.ID, adj.MedicineID, adj.Delta, adj.Reason, adj.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording inventory adjustment for medicine %s: %w", adj.MedicineID, err)
	}
	return nil
}
