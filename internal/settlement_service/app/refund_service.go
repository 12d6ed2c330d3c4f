package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/carelink/hospital-settlement/internal/settlement_service/domain"
	"github.com/carelink/hospital-settlement/internal/settlement_service/repository"
)

// RefundService transitions charges from PAID to REFUNDED and, when asked,
// restores medicine stock for undispensed prescription lines. The status flip
// and every inventory write commit or roll back together: no refund with lost
// stock, no "refunded but stock silently wrong".
type RefundService struct {
	db         repository.Querier
	tx         repository.TxManager
	chargeRepo repository.ChargeRepository
	rxRepo     repository.PrescriptionRepository
	inventory  *InventoryService
	outboxRepo repository.OutboxRepository
	// refundWindow bounds how long after payment a refund is allowed; zero
	// disables the check.
	refundWindow time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

func NewRefundService(
	db repository.Querier,
	tx repository.TxManager,
	chargeRepo repository.ChargeRepository,
	rxRepo repository.PrescriptionRepository,
	inventory *InventoryService,
	outboxRepo repository.OutboxRepository,
	refundWindow time.Duration,
	logger *slog.Logger,
) *RefundService {
	return &RefundService{
		db:           db,
		tx:           tx,
		chargeRepo:   chargeRepo,
		rxRepo:       rxRepo,
		inventory:    inventory,
		outboxRepo:   outboxRepo,
		refundWindow: refundWindow,
		logger:       logger.With("service", "refund"),
		now:          time.Now,
	}
}

// ProcessRefund refunds a PAID charge. Unlike payment, a retried refund of an
// already-REFUNDED charge is an explicit invalid-state error, never a silent
// replay. Restoration quantities come from the originally recorded charge
// detail lines, not from current stock.
func (s *RefundService) ProcessRefund(ctx context.Context, chargeNo, reason string, restoreInventory bool) (*domain.Charge, error) {
	start := time.Now()
	defer func() {
		chargeTransitionDurationHist.WithLabelValues("refund").Observe(time.Since(start).Seconds())
	}()

	if reason == "" {
		chargeTransitionsCounter.WithLabelValues("refund", "validation").Inc()
		return nil, domain.NewValidationError("reason", "refund reason is required")
	}

	charge, err := s.chargeRepo.GetByChargeNo(ctx, s.db, chargeNo)
	if err != nil {
		chargeTransitionsCounter.WithLabelValues("refund", "error").Inc()
		return nil, err
	}
	if charge.Status != domain.ChargeStatusPaid {
		chargeTransitionsCounter.WithLabelValues("refund", "invalid_state").Inc()
		return nil, fmt.Errorf("%w: cannot refund charge %s in status %s",
			domain.ErrInvalidStateTransition, chargeNo, charge.Status)
	}
	if s.refundWindow > 0 && charge.PaidAt != nil && s.now().Sub(*charge.PaidAt) > s.refundWindow {
		chargeTransitionsCounter.WithLabelValues("refund", "validation").Inc()
		return nil, domain.NewValidationError("refund_window",
			fmt.Sprintf("charge %s was paid more than %s ago", chargeNo, s.refundWindow))
	}

	refundedAt := s.now().UTC()
	txErr := s.tx.WithinTx(ctx, func(q repository.Querier) error {
		ok, err := s.chargeRepo.MarkRefunded(ctx, q, chargeNo, reason, refundedAt)
		if err != nil {
			return err
		}
		if !ok {
			// Lost the conditional update: the charge left PAID concurrently.
			return fmt.Errorf("%w: charge %s is no longer refundable", domain.ErrInvalidStateTransition, chargeNo)
		}

		if restoreInventory {
			for _, line := range charge.PrescriptionLines() {
				if line.MedicineID == nil || line.Quantity <= 0 {
					continue
				}
				reason := fmt.Sprintf("refund of charge %s", chargeNo)
				if _, err := s.inventory.Adjust(ctx, q, *line.MedicineID, line.Quantity, reason); err != nil {
					return fmt.Errorf("restoring stock for line %s: %w", line.ItemRef, err)
				}
			}
			// Returned prescriptions leave the dispensable pool.
			rxIDs, err := s.rxRepo.ListIDsByChargeNo(ctx, q, chargeNo)
			if err != nil {
				return err
			}
			for _, id := range rxIDs {
				if _, err := s.rxRepo.UpdateStatus(ctx, q, id,
					domain.PrescriptionStatusDispensable, domain.PrescriptionStatusReturned); err != nil {
					return err
				}
			}
		}

		payload, err := json.Marshal(domain.ChargeRefundedEvent{
			ChargeNo:          chargeNo,
			PatientID:         charge.PatientID,
			Reason:            reason,
			RefundedAmount:    charge.ActualAmount,
			InventoryRestored: restoreInventory,
			RefundedAt:        refundedAt,
		})
		if err != nil {
			return fmt.Errorf("marshalling charge refunded event: %w", err)
		}
		return s.outboxRepo.Insert(ctx, q, &domain.OutboxEvent{
			Subject: domain.SubjectChargeRefunded,
			Payload: payload,
		})
	})
	if txErr != nil {
		chargeTransitionsCounter.WithLabelValues("refund", outcomeLabel(txErr)).Inc()
		return nil, txErr
	}

	chargeTransitionsCounter.WithLabelValues("refund", "success").Inc()
	s.logger.InfoContext(ctx, "charge refunded",
		"charge_no", chargeNo,
		"refunded_amount", charge.ActualAmount,
		"inventory_restored", restoreInventory,
		"reason", reason)
	return s.chargeRepo.GetByChargeNo(ctx, s.db, chargeNo)
}
