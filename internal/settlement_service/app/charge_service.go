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

// DiscountPolicy derives the actual (payable) amount from a charge total.
// Implementations must keep the result within [0, total].
type DiscountPolicy interface {
	ActualAmount(total int64) int64
}

// PercentDiscountPolicy knocks a fixed percentage off the total. Percent 0 is
// the pass-through default.
type PercentDiscountPolicy struct {
	Percent int
}

func (p PercentDiscountPolicy) ActualAmount(total int64) int64 {
	if p.Percent <= 0 {
		return total
	}
	pct := p.Percent
	if pct > 100 {
		pct = 100
	}
	return total - total*int64(pct)/100
}

// ChargeService aggregates billable sources into immutable charges and handles
// the read side plus cancellation. Payment and refund live in their own
// services.
type ChargeService struct {
	db         repository.Querier
	tx         repository.TxManager
	chargeRepo repository.ChargeRepository
	regRepo    repository.RegistrationRepository
	rxRepo     repository.PrescriptionRepository
	sequences  *SequenceService
	discount   DiscountPolicy
	logger     *slog.Logger
}

func NewChargeService(
	db repository.Querier,
	tx repository.TxManager,
	chargeRepo repository.ChargeRepository,
	regRepo repository.RegistrationRepository,
	rxRepo repository.PrescriptionRepository,
	sequences *SequenceService,
	discount DiscountPolicy,
	logger *slog.Logger,
) *ChargeService {
	return &ChargeService{
		db:         db,
		tx:         tx,
		chargeRepo: chargeRepo,
		regRepo:    regRepo,
		rxRepo:     rxRepo,
		sequences:  sequences,
		discount:   discount,
		logger:     logger.With("service", "charge"),
	}
}

// CreateCharge builds a PENDING charge from one or more billable sources.
// Header, details and the billed mark on every source commit as one unit.
// declaredTotal, when present, must agree with the recomputed sum; a mismatch
// is rejected rather than silently corrected.
func (s *ChargeService) CreateCharge(ctx context.Context, patientID uuid.UUID, sources []domain.SourceRef, declaredTotal *int64) (*domain.Charge, error) {
	start := time.Now()
	defer func() {
		chargeTransitionDurationHist.WithLabelValues("create").Observe(time.Since(start).Seconds())
	}()

	if err := validateSourceRefs(sources); err != nil {
		chargeTransitionsCounter.WithLabelValues("create", "error").Inc()
		return nil, err
	}

	chargeNo, err := s.sequences.Next(ctx, SequenceKindCharge)
	if err != nil {
		chargeTransitionsCounter.WithLabelValues("create", "error").Inc()
		return nil, err
	}

	charge := &domain.Charge{
		ChargeNo:  chargeNo,
		PatientID: patientID,
		Status:    domain.ChargeStatusPending,
	}

	txErr := s.tx.WithinTx(ctx, func(q repository.Querier) error {
		for _, src := range sources {
			details, err := s.collectSource(ctx, q, patientID, chargeNo, src)
			if err != nil {
				return err
			}
			charge.Details = append(charge.Details, details...)
		}

		for _, d := range charge.Details {
			if d.ItemAmount <= 0 {
				return domain.NewValidationError("item_amount",
					fmt.Sprintf("line %q must have a positive amount", d.ItemName))
			}
		}

		charge.TotalAmount = charge.SumDetails()
		if declaredTotal != nil && *declaredTotal != charge.TotalAmount {
			return domain.NewValidationError("total_amount",
				fmt.Sprintf("declared total %d disagrees with recomputed total %d", *declaredTotal, charge.TotalAmount))
		}

		charge.ActualAmount = s.discount.ActualAmount(charge.TotalAmount)
		if charge.ActualAmount < 0 || charge.ActualAmount > charge.TotalAmount {
			return domain.NewValidationError("actual_amount",
				fmt.Sprintf("actual amount %d out of [0, %d]", charge.ActualAmount, charge.TotalAmount))
		}

		charge.ChargeType = domain.DeriveChargeType(charge.Details)
		return s.chargeRepo.Create(ctx, q, charge)
	})
	if txErr != nil {
		chargeTransitionsCounter.WithLabelValues("create", outcomeLabel(txErr)).Inc()
		return nil, txErr
	}

	chargeTransitionsCounter.WithLabelValues("create", "success").Inc()
	s.logger.InfoContext(ctx, "charge created",
		"charge_no", charge.ChargeNo,
		"patient_id", patientID,
		"charge_type", charge.ChargeType,
		"total_amount", charge.TotalAmount,
		"actual_amount", charge.ActualAmount,
		"lines", len(charge.Details))
	return charge, nil
}

// collectSource loads one billable source, verifies it can be billed, marks it
// attached to the new charge and returns its detail lines.
func (s *ChargeService) collectSource(ctx context.Context, q repository.Querier, patientID uuid.UUID, chargeNo string, src domain.SourceRef) ([]domain.ChargeDetail, error) {
	switch src.Type {
	case domain.ChargeItemRegistration:
		reg, err := s.regRepo.GetByID(ctx, q, src.ID)
		if err != nil {
			return nil, fmt.Errorf("registration %s: %w", src.ID, err)
		}
		if reg.PatientID != patientID {
			return nil, fmt.Errorf("%w: registration %s belongs to another patient", domain.ErrConflict, src.ID)
		}
		if !reg.Billable {
			return nil, fmt.Errorf("%w: registration %s is not in a billable state", domain.ErrConflict, src.ID)
		}
		if reg.ChargeNo != nil {
			return nil, fmt.Errorf("%w: registration %s already billed on charge %s", domain.ErrConflict, src.ID, *reg.ChargeNo)
		}
		ok, err := s.regRepo.MarkBilled(ctx, q, src.ID, chargeNo)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: registration %s was billed concurrently", domain.ErrConflict, src.ID)
		}
		return []domain.ChargeDetail{{
			ItemType:   domain.ChargeItemRegistration,
			ItemRef:    reg.ID,
			ItemName:   "Registration fee",
			ItemAmount: reg.Fee,
		}}, nil

	case domain.ChargeItemPrescription:
		rx, err := s.rxRepo.GetByID(ctx, q, src.ID)
		if err != nil {
			return nil, fmt.Errorf("prescription %s: %w", src.ID, err)
		}
		if rx.PatientID != patientID {
			return nil, fmt.Errorf("%w: prescription %s belongs to another patient", domain.ErrConflict, src.ID)
		}
		if rx.Status != domain.PrescriptionStatusAudited {
			return nil, fmt.Errorf("%w: prescription %s is %s, expected %s",
				domain.ErrConflict, src.ID, rx.Status, domain.PrescriptionStatusAudited)
		}
		if rx.ChargeNo != nil {
			return nil, fmt.Errorf("%w: prescription %s already billed on charge %s", domain.ErrConflict, src.ID, *rx.ChargeNo)
		}
		if len(rx.Details) == 0 {
			return nil, domain.NewValidationError("prescription",
				fmt.Sprintf("prescription %s has no medicine lines", src.ID))
		}
		ok, err := s.rxRepo.MarkBilled(ctx, q, src.ID, chargeNo)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: prescription %s was billed concurrently", domain.ErrConflict, src.ID)
		}
		details := make([]domain.ChargeDetail, 0, len(rx.Details))
		for _, line := range rx.Details {
			medicineID := line.MedicineID
			details = append(details, domain.ChargeDetail{
				ItemType:   domain.ChargeItemPrescription,
				ItemRef:    line.ID,
				ItemName:   line.MedicineName,
				ItemAmount: line.Amount(),
				MedicineID: &medicineID,
				Quantity:   line.Quantity,
			})
		}
		return details, nil

	default:
		return nil, domain.NewValidationError("type", fmt.Sprintf("unknown source type %q", src.Type))
	}
}

// CancelCharge voids a still-PENDING charge and releases its sources for
// re-billing. Paid charges must go through the refund processor instead.
func (s *ChargeService) CancelCharge(ctx context.Context, chargeNo string) (*domain.Charge, error) {
	txErr := s.tx.WithinTx(ctx, func(q repository.Querier) error {
		ok, err := s.chargeRepo.MarkCancelled(ctx, q, chargeNo)
		if err != nil {
			return err
		}
		if !ok {
			existing, err := s.chargeRepo.GetByChargeNo(ctx, q, chargeNo)
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: cannot cancel charge %s in status %s",
				domain.ErrInvalidStateTransition, chargeNo, existing.Status)
		}
		if err := s.regRepo.ClearBilled(ctx, q, chargeNo); err != nil {
			return err
		}
		return s.rxRepo.ClearBilled(ctx, q, chargeNo)
	})
	if txErr != nil {
		chargeTransitionsCounter.WithLabelValues("cancel", outcomeLabel(txErr)).Inc()
		return nil, txErr
	}

	chargeTransitionsCounter.WithLabelValues("cancel", "success").Inc()
	s.logger.InfoContext(ctx, "charge cancelled", "charge_no", chargeNo)
	return s.chargeRepo.GetByChargeNo(ctx, s.db, chargeNo)
}

// GetCharge returns one charge with its detail lines.
func (s *ChargeService) GetCharge(ctx context.Context, chargeNo string) (*domain.Charge, error) {
	return s.chargeRepo.GetByChargeNo(ctx, s.db, chargeNo)
}

// NormalizePaging clamps list paging to the supported bounds: limit falls back
// to 20 outside (0, 100], offset floors at zero.
func NormalizePaging(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListCharges pages through a patient's charges, newest first.
func (s *ChargeService) ListCharges(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]domain.Charge, int, error) {
	limit, offset = NormalizePaging(limit, offset)
	return s.chargeRepo.ListByPatient(ctx, s.db, patientID, limit, offset)
}

func validateSourceRefs(sources []domain.SourceRef) error {
	if len(sources) == 0 {
		return domain.NewValidationError("sources", "at least one billable source is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(sources))
	for _, src := range sources {
		if src.ID == uuid.Nil {
			return domain.NewValidationError("sources", "source id must not be empty")
		}
		if _, dup := seen[src.ID]; dup {
			return domain.NewValidationError("sources", fmt.Sprintf("duplicate source %s", src.ID))
		}
		seen[src.ID] = struct{}{}
	}
	return nil
}

// outcomeLabel maps an error to the metric outcome tag.
func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return "invalid_state"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	default:
		return "error"
	}
}
