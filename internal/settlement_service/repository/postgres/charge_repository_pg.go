package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carelink/hospital-settlement/internal/settlement_service/domain"
	"github.com/carelink/hospital-settlement/internal/settlement_service/repository"
)

type pgChargeRepository struct {
	logger *slog.Logger
}

// NewPgChargeRepository creates a new ChargeRepository for PostgreSQL. Every
// method takes a Querier so writes can join the caller's transaction.
func NewPgChargeRepository(logger *slog.Logger) repository.ChargeRepository {
	return &pgChargeRepository{logger: logger.With("component", "charge_repository_pg")}
}

const chargeColumns = `charge_no, patient_id, charge_type, total_amount, actual_amount, status,
	       payment_method, transaction_no, refund_reason, paid_at, refunded_at, created_at, updated_at`

func (r *pgChargeRepository) Create(ctx context.Context, q repository.Querier, charge *domain.Charge) error {
	now := time.Now().UTC()
	charge.CreatedAt = now
	charge.UpdatedAt = now

	_, err := q.Exec(ctx, `
		INSERT INTO charges (charge_no, patient_id, charge_type, total_amount, actual_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		charge.ChargeNo, charge.PatientID, charge.ChargeType, charge.TotalAmount,
		charge.ActualAmount, charge.Status, charge.CreatedAt, charge.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting charge %s: %w", charge.ChargeNo, err)
	}

	for i := range charge.Details {
		d := &charge.Details[i]
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		d.ChargeNo = charge.ChargeNo
		d.CreatedAt = now
		_, err := q.Exec(ctx, `
			INSERT INTO charge_details (id, charge_no, item_type, item_ref, item_name, item_amount, medicine_id, quantity, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			d.ID, d.ChargeNo, d.ItemType, d.ItemRef, d.ItemName, d.ItemAmount, d.MedicineID, d.Quantity, d.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting charge detail for %s: %w", charge.ChargeNo, err)
		}
	}
	return nil
}

func (r *pgChargeRepository) GetByChargeNo(ctx context.Context, q repository.Querier, chargeNo string) (*domain.Charge, error) {
	charge := &domain.Charge{}
	err := q.QueryRow(ctx, `
		SELECT `+chargeColumns+`
		FROM charges WHERE charge_no = $1`, chargeNo,
	).Scan(
		&charge.ChargeNo, &charge.PatientID, &charge.ChargeType, &charge.TotalAmount,
		&charge.ActualAmount, &charge.Status, &charge.PaymentMethod, &charge.TransactionNo,
		&charge.RefundReason, &charge.PaidAt, &charge.RefundedAt, &charge.CreatedAt, &charge.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("querying charge %s: %w", chargeNo, err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, charge_no, item_type, item_ref, item_name, item_amount, medicine_id, quantity, created_at
		FROM charge_details WHERE charge_no = $1 ORDER BY created_at, id`, chargeNo)
	if err != nil {
		return nil, fmt.Errorf("querying charge details for %s: %w", chargeNo, err)
	}
	defer rows.Close()

	for rows.Next() {
		var d domain.ChargeDetail
		if err := rows.Scan(&d.ID, &d.ChargeNo, &d.ItemType, &d.ItemRef, &d.ItemName, &d.ItemAmount, &d.MedicineID, &d.Quantity, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning charge detail: %w", err)
		}
		charge.Details = append(charge.Details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return charge, nil
}

func (r *pgChargeRepository) ListByPatient(ctx context.Context, q repository.Querier, patientID uuid.UUID, limit, offset int) ([]domain.Charge, int, error) {
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM charges WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting charges for patient %s: %w", patientID, err)
	}

	rows, err := q.Query(ctx, `
		SELECT `+chargeColumns+`
		FROM charges
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing charges for patient %s: %w", patientID, err)
	}
	defer rows.Close()

	var charges []domain.Charge
	for rows.Next() {
		var c domain.Charge
		err := rows.Scan(
			&c.ChargeNo, &c.PatientID, &c.ChargeType, &c.TotalAmount,
			&c.ActualAmount, &c.Status, &c.PaymentMethod, &c.TransactionNo,
			&c.RefundReason, &c.PaidAt, &c.RefundedAt, &c.CreatedAt, &c.UpdatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning charge: %w", err)
		}
		charges = append(charges, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return charges, total, nil
}

// MarkPaid is the concurrency guard for payment: the status predicate makes
// two racing callers resolve to exactly one winner.
func (r *pgChargeRepository) MarkPaid(ctx context.Context, q repository.Querier, chargeNo string, method domain.PaymentMethod, transactionNo string, paidAt time.Time) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE charges
		SET status = $1, payment_method = $2, transaction_no = $3, paid_at = $4, updated_at = $4
		WHERE charge_no = $5 AND status = $6`,
		domain.ChargeStatusPaid, method, transactionNo, paidAt, chargeNo, domain.ChargeStatusPending,
	)
	if err != nil {
		// Unique index on transaction_no: the reference was already used by
		// another charge.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, fmt.Errorf("transaction reference %s already recorded: %w", transactionNo, domain.ErrConflict)
		}
		return false, fmt.Errorf("marking charge %s paid: %w", chargeNo, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgChargeRepository) MarkRefunded(ctx context.Context, q repository.Querier, chargeNo string, reason string, refundedAt time.Time) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE charges
		SET status = $1, refund_reason = $2, refunded_at = $3, updated_at = $3
		WHERE charge_no = $4 AND status = $5`,
		domain.ChargeStatusRefunded, reason, refundedAt, chargeNo, domain.ChargeStatusPaid,
	)
	if err != nil {
		return false, fmt.Errorf("marking charge %s refunded: %w", chargeNo, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgChargeRepository) MarkCancelled(ctx context.Context, q repository.Querier, chargeNo string) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE charges
		SET status = $1, updated_at = $2
		WHERE charge_no = $3 AND status = $4`,
		domain.ChargeStatusCancelled, time.Now().UTC(), chargeNo, domain.ChargeStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("marking charge %s cancelled: %w", chargeNo, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgChargeRepository) DailyStatistics(ctx context.Context, q repository.Querier, from, to time.Time) (*domain.DailySettlementReport, error) {
	report := &domain.DailySettlementReport{Date: from}
	err := q.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = $1),
		       COUNT(*) FILTER (WHERE status = $2),
		       COUNT(*) FILTER (WHERE status = $3),
		       COUNT(*) FILTER (WHERE status = $4),
		       COALESCE(SUM(actual_amount) FILTER (WHERE status = $2), 0),
		       COALESCE(SUM(actual_amount) FILTER (WHERE status = $3), 0)
		FROM charges
		WHERE created_at >= $5 AND created_at < $6`,
		domain.ChargeStatusPending, domain.ChargeStatusPaid, domain.ChargeStatusRefunded,
		domain.ChargeStatusCancelled, from, to,
	).Scan(
		&report.TotalCount, &report.PendingCount, &report.PaidCount, &report.RefundedCount,
		&report.CancelledCount, &report.PaidAmount, &report.RefundedAmount,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating daily statistics: %w", err)
	}
	return report, nil
}
