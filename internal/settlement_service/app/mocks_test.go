package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/carelink/hospital-settlement/internal/settlement_service/domain"
	"github.com/carelink/hospital-settlement/internal/settlement_service/repository"
)

// fakeTxManager runs the transactional function directly. A returned error
// stands in for a rolled-back transaction.
type fakeTxManager struct {
	beginErr error
}

func (f *fakeTxManager) WithinTx(ctx context.Context, fn func(q repository.Querier) error) error {
	if f.beginErr != nil {
		return f.beginErr
	}
	return fn(nil)
}

type MockChargeRepository struct {
	mock.Mock
}

func (m *MockChargeRepository) Create(ctx context.Context, q repository.Querier, charge *domain.Charge) error {
	args := m.Called(ctx, q, charge)
	return args.Error(0)
}

func (m *MockChargeRepository) GetByChargeNo(ctx context.Context, q repository.Querier, chargeNo string) (*domain.Charge, error) {
	args := m.Called(ctx, q, chargeNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Charge), args.Error(1)
}

func (m *MockChargeRepository) ListByPatient(ctx context.Context, q repository.Querier, patientID uuid.UUID, limit, offset int) ([]domain.Charge, int, error) {
	args := m.Called(ctx, q, patientID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Charge), args.Int(1), args.Error(2)
}

func (m *MockChargeRepository) MarkPaid(ctx context.Context, q repository.Querier, chargeNo string, method domain.PaymentMethod, transactionNo string, paidAt time.Time) (bool, error) {
	args := m.Called(ctx, q, chargeNo, method, transactionNo, paidAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockChargeRepository) MarkRefunded(ctx context.Context, q repository.Querier, chargeNo string, reason string, refundedAt time.Time) (bool, error) {
	args := m.Called(ctx, q, chargeNo, reason, refundedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockChargeRepository) MarkCancelled(ctx context.Context, q repository.Querier, chargeNo string) (bool, error) {
	args := m.Called(ctx, q, chargeNo)
	return args.Bool(0), args.Error(1)
}

func (m *MockChargeRepository) DailyStatistics(ctx context.Context, q repository.Querier, from, to time.Time) (*domain.DailySettlementReport, error) {
	args := m.Called(ctx, q, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DailySettlementReport), args.Error(1)
}

type MockRegistrationRepository struct {
	mock.Mock
}

func (m *MockRegistrationRepository) GetByID(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.Registration, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Registration), args.Error(1)
}

func (m *MockRegistrationRepository) MarkBilled(ctx context.Context, q repository.Querier, id uuid.UUID, chargeNo string) (bool, error) {
	args := m.Called(ctx, q, id, chargeNo)
	return args.Bool(0), args.Error(1)
}

func (m *MockRegistrationRepository) ClearBilled(ctx context.Context, q repository.Querier, chargeNo string) error {
	args := m.Called(ctx, q, chargeNo)
	return args.Error(0)
}

type MockPrescriptionRepository struct {
	mock.Mock
}

func (m *MockPrescriptionRepository) GetByID(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.Prescription, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Prescription), args.Error(1)
}

func (m *MockPrescriptionRepository) MarkBilled(ctx context.Context, q repository.Querier, id uuid.UUID, chargeNo string) (bool, error) {
	args := m.Called(ctx, q, id, chargeNo)
	return args.Bool(0), args.Error(1)
}

func (m *MockPrescriptionRepository) ClearBilled(ctx context.Context, q repository.Querier, chargeNo string) error {
	args := m.Called(ctx, q, chargeNo)
	return args.Error(0)
}

func (m *MockPrescriptionRepository) UpdateStatus(ctx context.Context, q repository.Querier, id uuid.UUID, from, to domain.PrescriptionStatus) (bool, error) {
	args := m.Called(ctx, q, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockPrescriptionRepository) ListIDsByChargeNo(ctx context.Context, q repository.Querier, chargeNo string) ([]uuid.UUID, error) {
	args := m.Called(ctx, q, chargeNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

type MockInventoryRepository struct {
	mock.Mock
}

func (m *MockInventoryRepository) GetMedicine(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.Medicine, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Medicine), args.Error(1)
}

func (m *MockInventoryRepository) AdjustStock(ctx context.Context, q repository.Querier, medicineID uuid.UUID, delta int32) (bool, error) {
	args := m.Called(ctx, q, medicineID, delta)
	return args.Bool(0), args.Error(1)
}

func (m *MockInventoryRepository) RecordAdjustment(ctx context.Context, q repository.Querier, adj *domain.InventoryAdjustment) error {
	args := m.Called(ctx, q, adj)
	return args.Error(0)
}

type MockSequenceRepository struct {
	mock.Mock
}

func (m *MockSequenceRepository) NextValue(ctx context.Context, kind string, day time.Time) (int64, error) {
	args := m.Called(ctx, kind, day)
	return args.Get(0).(int64), args.Error(1)
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Insert(ctx context.Context, q repository.Querier, event *domain.OutboxEvent) error {
	args := m.Called(ctx, q, event)
	return args.Error(0)
}

func (m *MockOutboxRepository) FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkSent(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(subject string, data []byte) error {
	args := m.Called(subject, data)
	return args.Error(0)
}
