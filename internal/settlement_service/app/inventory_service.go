package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/hospital-settlement/internal/settlement_service/domain"
	"github.com/carelink/hospital-settlement/internal/settlement_service/repository"
)

const (
	inventoryMaxAttempts  = 3
	inventoryRetryBackoff = 50 * time.Millisecond
)

// InventoryService adjusts medicine stock and records each delta. Callers pass
// their own Querier so adjustments join the surrounding transaction; a refund
// that fails here rolls back entirely.
type InventoryService struct {
	repo   repository.InventoryRepository
	logger *slog.Logger
}

func NewInventoryService(repo repository.InventoryRepository, logger *slog.Logger) *InventoryService {
	return &InventoryService{
		repo:   repo,
		logger: logger.With("service", "inventory"),
	}
}

// Adjust applies delta to the medicine's stock and writes the audit record.
// The stock update is one conditional statement that never drives stock below
// zero.
func (s *InventoryService) Adjust(ctx context.Context, q repository.Querier, medicineID uuid.UUID, delta int32, reason string) (*domain.InventoryAdjustment, error) {
	if delta == 0 {
		return nil, domain.NewValidationError("delta", "stock delta must not be zero")
	}
	direction := "restock"
	if delta < 0 {
		direction = "consume"
	}

	// Retries help on the standalone pool path; inside a caller transaction a
	// failed statement has already aborted it and the remaining attempts fail
	// fast.
	var ok bool
	var err error
	for attempt := 1; attempt <= inventoryMaxAttempts; attempt++ {
		ok, err = s.repo.AdjustStock(ctx, q, medicineID, delta)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
		s.logger.WarnContext(ctx, "stock adjustment failed, retrying",
			"medicine_id", medicineID, "attempt", attempt, "error", err)
		select {
		case <-time.After(inventoryRetryBackoff):
		case <-ctx.Done():
		}
	}
	if err != nil {
		inventoryAdjustmentsCounter.WithLabelValues(direction, "error").Inc()
		return nil, fmt.Errorf("%w: inventory store: %v", domain.ErrTransient, err)
	}
	if !ok {
		// The conditional update rejects both a missing medicine and a
		// decrement below zero; re-read to tell them apart.
		if _, err := s.repo.GetMedicine(ctx, q, medicineID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				inventoryAdjustmentsCounter.WithLabelValues(direction, "not_found").Inc()
				return nil, fmt.Errorf("medicine %s: %w", medicineID, domain.ErrNotFound)
			}
			return nil, err
		}
		inventoryAdjustmentsCounter.WithLabelValues(direction, "insufficient").Inc()
		return nil, fmt.Errorf("medicine %s: %w", medicineID, domain.ErrInsufficientStock)
	}

	adj := &domain.InventoryAdjustment{
		MedicineID: medicineID,
		Delta:      delta,
		Reason:     reason,
	}
	if err := s.repo.RecordAdjustment(ctx, q, adj); err != nil {
		inventoryAdjustmentsCounter.WithLabelValues(direction, "error").Inc()
		return nil, err
	}

	inventoryAdjustmentsCounter.WithLabelValues(direction, "success").Inc()
	s.logger.InfoContext(ctx, "stock adjusted",
		"medicine_id", medicineID, "delta", delta, "reason", reason)
	return adj, nil
}
