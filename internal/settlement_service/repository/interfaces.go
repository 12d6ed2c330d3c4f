package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carelink/hospital-settlement/internal/settlement_service/domain"
)

// Querier is the common surface of pgxpool.Pool and pgx.Tx, so repository
// methods can run inside or outside a caller-owned transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// TxManager runs a function inside one database transaction. The transaction
// commits only if fn returns nil; any error rolls back every write fn made.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(q Querier) error) error
}

// ChargeRepository persists the Charge aggregate. Header and details are
// written together; status transitions are conditional single-row updates
// whose boolean result tells the caller whether it won the transition.
type ChargeRepository interface {
	Create(ctx context.Context, q Querier, charge *domain.Charge) error
	GetByChargeNo(ctx context.Context, q Querier, chargeNo string) (*domain.Charge, error)
	ListByPatient(ctx context.Context, q Querier, patientID uuid.UUID, limit, offset int) ([]domain.Charge, int, error)
	// MarkPaid flips PENDING -> PAID if and only if the charge is still PENDING.
	MarkPaid(ctx context.Context, q Querier, chargeNo string, method domain.PaymentMethod, transactionNo string, paidAt time.Time) (bool, error)
	// MarkRefunded flips PAID -> REFUNDED if and only if the charge is still PAID.
	MarkRefunded(ctx context.Context, q Querier, chargeNo string, reason string, refundedAt time.Time) (bool, error)
	// MarkCancelled flips PENDING -> CANCELLED if and only if the charge is still PENDING.
	MarkCancelled(ctx context.Context, q Querier, chargeNo string) (bool, error)
	DailyStatistics(ctx context.Context, q Querier, from, to time.Time) (*domain.DailySettlementReport, error)
}

// RegistrationRepository reads registration sources and marks them billed.
type RegistrationRepository interface {
	GetByID(ctx context.Context, q Querier, id uuid.UUID) (*domain.Registration, error)
	// MarkBilled attaches a registration to a charge if not already attached.
	MarkBilled(ctx context.Context, q Querier, id uuid.UUID, chargeNo string) (bool, error)
	// ClearBilled detaches all registrations from a cancelled charge.
	ClearBilled(ctx context.Context, q Querier, chargeNo string) error
}

// PrescriptionRepository reads prescription sources and advances their status
// on payment (unlock dispensing) and refund (mark returned).
type PrescriptionRepository interface {
	GetByID(ctx context.Context, q Querier, id uuid.UUID) (*domain.Prescription, error)
	MarkBilled(ctx context.Context, q Querier, id uuid.UUID, chargeNo string) (bool, error)
	ClearBilled(ctx context.Context, q Querier, chargeNo string) error
	// UpdateStatus advances a prescription from one status to another; the
	// conditional predicate is the concurrency guard.
	UpdateStatus(ctx context.Context, q Querier, id uuid.UUID, from, to domain.PrescriptionStatus) (bool, error)
	ListIDsByChargeNo(ctx context.Context, q Querier, chargeNo string) ([]uuid.UUID, error)
}

// InventoryRepository adjusts medicine stock and records the delta. AdjustStock
// is a single conditional update that refuses to drive stock negative.
type InventoryRepository interface {
	GetMedicine(ctx context.Context, q Querier, id uuid.UUID) (*domain.Medicine, error)
	AdjustStock(ctx context.Context, q Querier, medicineID uuid.UUID, delta int32) (bool, error)
	RecordAdjustment(ctx context.Context, q Querier, adj *domain.InventoryAdjustment) error
}

// SequenceRepository issues the next counter value for a business identifier
// kind. The read-increment must be one atomic statement at the storage layer.
type SequenceRepository interface {
	NextValue(ctx context.Context, kind string, day time.Time) (int64, error)
}

// OutboxRepository stores pending downstream events. Insert joins the caller's
// transaction; FetchPending and MarkSent run on the pool from the dispatcher.
type OutboxRepository interface {
	Insert(ctx context.Context, q Querier, event *domain.OutboxEvent) error
	FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkSent(ctx context.Context, id int64) error
}
