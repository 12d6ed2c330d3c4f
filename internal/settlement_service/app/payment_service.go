package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/carelink/hospital-settlement/internal/settlement_service/domain"
	"github.com/carelink/hospital-settlement/internal/settlement_service/repository"
)

// errTransitionLost is internal: the conditional update found the charge no
// longer PENDING, meaning someone else transitioned it between our read and
// our write. The caller re-reads and re-decides.
var errTransitionLost = errors.New("charge transition lost")

// PaymentService transitions charges from PENDING to PAID with exactly-once
// semantics keyed on the external transaction reference.
type PaymentService struct {
	db         repository.Querier
	tx         repository.TxManager
	chargeRepo repository.ChargeRepository
	rxRepo     repository.PrescriptionRepository
	outboxRepo repository.OutboxRepository
	logger     *slog.Logger
	now        func() time.Time
}

func NewPaymentService(
	db repository.Querier,
	tx repository.TxManager,
	chargeRepo repository.ChargeRepository,
	rxRepo repository.PrescriptionRepository,
	outboxRepo repository.OutboxRepository,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		db:         db,
		tx:         tx,
		chargeRepo: chargeRepo,
		rxRepo:     rxRepo,
		outboxRepo: outboxRepo,
		logger:     logger.With("service", "payment"),
		now:        time.Now,
	}
}

// ProcessPayment settles a charge. Duplicate callbacks with the same
// transactionNo replay the original result; a different transactionNo against
// an already-PAID charge is a conflict. The PENDING->PAID flip is one
// conditional update, and the prescription unlock plus the charge.paid outbox
// event commit in the same transaction, so a payment is never recorded without
// its downstream unlock.
func (s *PaymentService) ProcessPayment(ctx context.Context, chargeNo string, method domain.PaymentMethod, transactionNo string) (*domain.Charge, error) {
	start := time.Now()
	defer func() {
		chargeTransitionDurationHist.WithLabelValues("payment").Observe(time.Since(start).Seconds())
	}()

	if transactionNo == "" {
		chargeTransitionsCounter.WithLabelValues("payment", "validation").Inc()
		return nil, domain.NewValidationError("transaction_no", "transaction reference is required")
	}
	if method == "" {
		chargeTransitionsCounter.WithLabelValues("payment", "validation").Inc()
		return nil, domain.NewValidationError("payment_method", "payment method is required")
	}

	// Two passes at most: if the conditional update is lost, the charge is no
	// longer PENDING and the second read resolves to replay, conflict or
	// invalid-state.
	for attempt := 0; attempt < 2; attempt++ {
		charge, err := s.chargeRepo.GetByChargeNo(ctx, s.db, chargeNo)
		if err != nil {
			chargeTransitionsCounter.WithLabelValues("payment", "error").Inc()
			return nil, err
		}

		switch charge.Status {
		case domain.ChargeStatusPaid:
			if charge.TransactionNo != nil && *charge.TransactionNo == transactionNo {
				chargeTransitionsCounter.WithLabelValues("payment", "replay").Inc()
				s.logger.InfoContext(ctx, "duplicate payment callback replayed",
					"charge_no", chargeNo, "transaction_no", transactionNo)
				return charge, nil
			}
			chargeTransitionsCounter.WithLabelValues("payment", "conflict").Inc()
			return nil, fmt.Errorf("%w: charge %s already paid with a different transaction reference",
				domain.ErrConflict, chargeNo)

		case domain.ChargeStatusRefunded, domain.ChargeStatusCancelled:
			chargeTransitionsCounter.WithLabelValues("payment", "invalid_state").Inc()
			return nil, fmt.Errorf("%w: cannot pay charge %s in status %s",
				domain.ErrInvalidStateTransition, chargeNo, charge.Status)

		case domain.ChargeStatusPending:
			err := s.settle(ctx, charge, method, transactionNo)
			if errors.Is(err, errTransitionLost) {
				continue
			}
			if err != nil {
				chargeTransitionsCounter.WithLabelValues("payment", outcomeLabel(err)).Inc()
				return nil, err
			}
			chargeTransitionsCounter.WithLabelValues("payment", "success").Inc()
			s.logger.InfoContext(ctx, "charge paid",
				"charge_no", chargeNo, "transaction_no", transactionNo,
				"payment_method", method, "actual_amount", charge.ActualAmount)
			return s.chargeRepo.GetByChargeNo(ctx, s.db, chargeNo)

		default:
			chargeTransitionsCounter.WithLabelValues("payment", "invalid_state").Inc()
			return nil, fmt.Errorf("%w: charge %s has unknown status %d",
				domain.ErrInvalidStateTransition, chargeNo, charge.Status)
		}
	}

	// Both passes lost the race; the final state decides, so read once more.
	charge, err := s.chargeRepo.GetByChargeNo(ctx, s.db, chargeNo)
	if err != nil {
		return nil, err
	}
	if charge.Status == domain.ChargeStatusPaid && charge.TransactionNo != nil && *charge.TransactionNo == transactionNo {
		chargeTransitionsCounter.WithLabelValues("payment", "replay").Inc()
		return charge, nil
	}
	chargeTransitionsCounter.WithLabelValues("payment", "conflict").Inc()
	return nil, fmt.Errorf("%w: charge %s transitioned concurrently", domain.ErrConflict, chargeNo)
}

// settle performs the atomic PENDING->PAID transition with its downstream effects.
func (s *PaymentService) settle(ctx context.Context, charge *domain.Charge, method domain.PaymentMethod, transactionNo string) error {
	paidAt := s.now().UTC()
	return s.tx.WithinTx(ctx, func(q repository.Querier) error {
		ok, err := s.chargeRepo.MarkPaid(ctx, q, charge.ChargeNo, method, transactionNo, paidAt)
		if err != nil {
			return err
		}
		if !ok {
			return errTransitionLost
		}

		// Unlock dispensing for every attached prescription. The aggregator
		// only attaches AUDITED prescriptions, so a failed conditional update
		// here is corruption and must roll the payment back.
		rxIDs, err := s.rxRepo.ListIDsByChargeNo(ctx, q, charge.ChargeNo)
		if err != nil {
			return err
		}
		for _, id := range rxIDs {
			unlocked, err := s.rxRepo.UpdateStatus(ctx, q, id,
				domain.PrescriptionStatusAudited, domain.PrescriptionStatusDispensable)
			if err != nil {
				return err
			}
			if !unlocked {
				return fmt.Errorf("%w: prescription %s not in %s while its charge was pending",
					domain.ErrConflict, id, domain.PrescriptionStatusAudited)
			}
		}

		payload, err := json.Marshal(domain.ChargePaidEvent{
			ChargeNo:        charge.ChargeNo,
			PatientID:       charge.PatientID,
			TransactionNo:   transactionNo,
			ActualAmount:    charge.ActualAmount,
			PrescriptionIDs: rxIDs,
			PaidAt:          paidAt,
		})
		if err != nil {
			return fmt.Errorf("marshalling charge paid event: %w", err)
		}
		return s.outboxRepo.Insert(ctx, q, &domain.OutboxEvent{
			Subject: domain.SubjectChargePaid,
			Payload: payload,
		})
	})
}
