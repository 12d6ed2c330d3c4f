package paymentgateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/carelink/hospital-settlement/internal/settlement_service/domain"
)

// MockPaymentProvider synchronously approves any request and returns a
// synthetic transaction reference. It remembers the reference issued per
// RequestID so a duplicate callback replays the original reference, which is
// exactly the provider behaviour the payment processor's idempotency guards
// exist for.
type MockPaymentProvider struct {
	logger                   *slog.Logger
	SimulateAuthorizeFailure bool

	mu     sync.Mutex
	issued map[string]string // RequestID -> transaction reference
}

func NewMockPaymentProvider(logger *slog.Logger, authorizeFail bool) *MockPaymentProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockPaymentProvider{
		logger:                   logger.With("adapter", "mock_payment_provider"),
		SimulateAuthorizeFailure: authorizeFail,
		issued:                   make(map[string]string),
	}
}

func (m *MockPaymentProvider) Authorize(ctx context.Context, req domain.AuthorizeRequest) (*domain.AuthorizeResponse, error) {
	if req.Amount < 0 {
		return nil, errors.New("mock provider: amount must not be negative")
	}
	if m.SimulateAuthorizeFailure {
		m.logger.WarnContext(ctx, "mock provider simulated authorization failure", "charge_no", req.ChargeNo)
		return &domain.AuthorizeResponse{
			Approved: false,
			Message:  "mock provider declined",
		}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if req.RequestID != "" {
		if txn, ok := m.issued[req.RequestID]; ok {
			m.logger.InfoContext(ctx, "mock provider replayed duplicate callback",
				"request_id", req.RequestID, "transaction_no", txn)
			return &domain.AuthorizeResponse{TransactionNo: txn, Approved: true, Message: "replayed"}, nil
		}
	}

	txn := "MOCKPAY-" + uuid.NewString()
	if req.RequestID != "" {
		m.issued[req.RequestID] = txn
	}
	m.logger.InfoContext(ctx, "mock provider authorized payment",
		"charge_no", req.ChargeNo, "amount", req.Amount, "transaction_no", txn)
	return &domain.AuthorizeResponse{TransactionNo: txn, Approved: true, Message: "approved"}, nil
}
