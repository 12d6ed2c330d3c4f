package postgres

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/hospital-settlement/internal/settlement_service/domain"
	"github.com/carelink/hospital-settlement/internal/settlement_service/repository"
)

func setupInventoryTest(t *testing.T) (repository.InventoryRepository, pgxmock.PgxPoolIface) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := NewPgInventoryRepository(logger)
	return repo, mockPool
}

func TestPgInventoryRepository_AdjustStock(t *testing.T) {
	repo, mockPool := setupInventoryTest(t)
	defer mockPool.Close()

	medicineID := uuid.New()

	t.Run("Restock", func(t *testing.T) {
		mockPool.ExpectExec(`UPDATE medicines SET stock = stock \+ \$1`).
			WithArgs(int32(20), pgxmock.AnyArg(), medicineID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		ok, err := repo.AdjustStock(context.Background(), mockPool, medicineID, 20)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("RefusedWhenStockWouldGoNegative", func(t *testing.T) {
		mockPool.ExpectExec(`UPDATE medicines SET stock = stock \+ \$1`).
			WithArgs(int32(-500), pgxmock.AnyArg(), medicineID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		ok, err := repo.AdjustStock(context.Background(), mockPool, medicineID, -500)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgInventoryRepository_GetMedicine(t *testing.T) {
	repo, mockPool := setupInventoryTest(t)
	defer mockPool.Close()

	medicineID := uuid.New()

	t.Run("Found", func(t *testing.T) {
		rows := mockPool.NewRows([]string{"id", "name", "stock", "unit_price", "updated_at"}).
			AddRow(medicineID, "Ibuprofen 200mg", int32(480), int64(120), time.Now().UTC())
		mockPool.ExpectQuery(`SELECT (.+) FROM medicines WHERE id = \$1`).
			WithArgs(medicineID).WillReturnRows(rows)

		m, err := repo.GetMedicine(context.Background(), mockPool, medicineID)
		require.NoError(t, err)
		assert.Equal(t, "Ibuprofen 200mg", m.Name)
		assert.Equal(t, int32(480), m.Stock)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mockPool.ExpectQuery(`SELECT (.+) FROM medicines WHERE id = \$1`).
			WithArgs(medicineID).WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetMedicine(context.Background(), mockPool, medicineID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgInventoryRepository_RecordAdjustment(t *testing.T) {
	repo, mockPool := setupInventoryTest(t)
	defer mockPool.Close()

	adj := &domain.InventoryAdjustment{
		MedicineID: uuid.New(),
		Delta:      20,
		Reason:     "refund of charge CHG20250107000001",
	}
	mockPool.ExpectExec(`INSERT INTO inventory_adjustments`).
		WithArgs(pgxmock.AnyArg(), adj.MedicineID, adj.Delta, adj.Reason, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.RecordAdjustment(context.Background(), mockPool, adj)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, adj.ID)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
