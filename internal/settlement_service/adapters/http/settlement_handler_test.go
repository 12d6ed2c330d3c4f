package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carelink/hospital-settlement/internal/settlement_service/app"
	"github.com/carelink/hospital-settlement/internal/settlement_service/domain"
)

type mockChargeOps struct{ mock.Mock }

func (m *mockChargeOps) CreateCharge(ctx context.Context, patientID uuid.UUID, sources []domain.SourceRef, declaredTotal *int64) (*domain.Charge, error) {
	args := m.Called(ctx, patientID, sources, declaredTotal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Charge), args.Error(1)
}

func (m *mockChargeOps) CancelCharge(ctx context.Context, chargeNo string) (*domain.Charge, error) {
	args := m.Called(ctx, chargeNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Charge), args.Error(1)
}

func (m *mockChargeOps) GetCharge(ctx context.Context, chargeNo string) (*domain.Charge, error) {
	args := m.Called(ctx, chargeNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Charge), args.Error(1)
}

func (m *mockChargeOps) ListCharges(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]domain.Charge, int, error) {
	args := m.Called(ctx, patientID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Charge), args.Int(1), args.Error(2)
}

type mockPaymentOps struct{ mock.Mock }

func (m *mockPaymentOps) ProcessPayment(ctx context.Context, chargeNo string, method domain.PaymentMethod, transactionNo string) (*domain.Charge, error) {
	args := m.Called(ctx, chargeNo, method, transactionNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Charge), args.Error(1)
}

type mockRefundOps struct{ mock.Mock }

func (m *mockRefundOps) ProcessRefund(ctx context.Context, chargeNo, reason string, restoreInventory bool) (*domain.Charge, error) {
	args := m.Called(ctx, chargeNo, reason, restoreInventory)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Charge), args.Error(1)
}

type mockReportOps struct{ mock.Mock }

func (m *mockReportOps) DailyStatistics(ctx context.Context, day time.Time) (*domain.DailySettlementReport, error) {
	args := m.Called(ctx, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DailySettlementReport), args.Error(1)
}

type mockProvider struct{ mock.Mock }

func (m *mockProvider) Authorize(ctx context.Context, req domain.AuthorizeRequest) (*domain.AuthorizeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AuthorizeResponse), args.Error(1)
}

type stubHealth struct{ report app.HealthReport }

func (s stubHealth) Report() app.HealthReport { return s.report }

type handlerFixture struct {
	charges  *mockChargeOps
	payments *mockPaymentOps
	refunds  *mockRefundOps
	reports  *mockReportOps
	provider *mockProvider
	health   stubHealth
	router   chi.Router
}

func newHandlerFixture(t *testing.T, health app.HealthReport) *handlerFixture {
	t.Helper()
	f := &handlerFixture{
		charges:  new(mockChargeOps),
		payments: new(mockPaymentOps),
		refunds:  new(mockRefundOps),
		reports:  new(mockReportOps),
		provider: new(mockProvider),
		health:   stubHealth{report: health},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewSettlementHandler(f.charges, f.payments, f.refunds, f.reports,
		f.provider, f.health, logger, validator.New())

	f.router = chi.NewRouter()
	f.router.Get("/healthz", handler.Healthz)
	f.router.Route("/api/v1", handler.RegisterRoutes)
	return f
}

func (f *handlerFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func sampleCharge(status domain.ChargeStatus) *domain.Charge {
	return &domain.Charge{
		ChargeNo:     "CHG20250107000001",
		PatientID:    uuid.New(),
		ChargeType:   domain.ChargeTypeMixed,
		TotalAmount:  8600,
		ActualAmount: 8600,
		Status:       status,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestCreateCharge_Handler(t *testing.T) {
	t.Run("Created", func(t *testing.T) {
		f := newHandlerFixture(t, app.HealthReport{Status: app.HealthUp})
		patientID := uuid.New()
		regID := uuid.New()
		charge := sampleCharge(domain.ChargeStatusPending)
		charge.PatientID = patientID

		f.charges.On("CreateCharge", mock.Anything, patientID,
			[]domain.SourceRef{{Type: domain.ChargeItemRegistration, ID: regID}},
			(*int64)(nil)).Return(charge, nil).Once()

		rec := f.do(t, http.MethodPost, "/api/v1/charges", CreateChargeRequestDTO{
			PatientID: patientID.String(),
			Sources:   []SourceRefDTO{{Type: "REGISTRATION", ID: regID.String()}},
		})

		require.Equal(t, http.StatusCreated, rec.Code)
		var resp ChargeResponseDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, charge.ChargeNo, resp.ChargeNo)
		assert.Equal(t, "PENDING", resp.Status)
		f.charges.AssertExpectations(t)
	})

	t.Run("RejectsMissingSources", func(t *testing.T) {
		f := newHandlerFixture(t, app.HealthReport{Status: app.HealthUp})
		rec := f.do(t, http.MethodPost, "/api/v1/charges", CreateChargeRequestDTO{
			PatientID: uuid.NewString(),
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		f.charges.AssertNotCalled(t, "CreateCharge", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("RejectsUnknownSourceType", func(t *testing.T) {
		f := newHandlerFixture(t, app.HealthReport{Status: app.HealthUp})
		rec := f.do(t, http.MethodPost, "/api/v1/charges", CreateChargeRequestDTO{
			PatientID: uuid.NewString(),
			Sources:   []SourceRefDTO{{Type: "LAB_ORDER", ID: uuid.NewString()}},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ConflictOnBilledSource", func(t *testing.T) {
		f := newHandlerFixture(t, app.HealthReport{Status: app.HealthUp})
		f.charges.On("CreateCharge", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: registration already billed", domain.ErrConflict)).Once()

		rec := f.do(t, http.MethodPost, "/api/v1/charges", CreateChargeRequestDTO{
			PatientID: uuid.NewString(),
			Sources:   []SourceRefDTO{{Type: "REGISTRATION", ID: uuid.NewString()}},
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), `"kind":"conflict"`)
	})
}

func TestProcessPayment_Handler(t *testing.T) {
	t.Run("WithGatewayReference", func(t *testing.T) {
		f := newHandlerFixture(t, app.HealthReport{Status: app.HealthUp})
		paid := sampleCharge(domain.ChargeStatusPaid)

		f.payments.On("ProcessPayment", mock.Anything, "CHG20250107000001",
			domain.PaymentMethodCard, "TXN-1").Return(paid, nil).Once()

		rec := f.do(t, http.MethodPost, "/api/v1/charges/CHG20250107000001/payment",
			ProcessPaymentRequestDTO{PaymentMethod: "CARD", TransactionNo: "TXN-1"})
		require.Equal(t, http.StatusOK, rec.Code)
		f.provider.AssertNotCalled(t, "Authorize", mock.Anything, mock.Anything)
	})

	t.Run("AuthorizesThroughProviderWhenNoReference", func(t *testing.T) {
		f := newHandlerFixture(t, app.HealthReport{Status: app.HealthUp})
		pending := sampleCharge(domain.ChargeStatusPending)
		paid := sampleCharge(domain.ChargeStatusPaid)

		f.charges.On("GetCharge", mock.Anything, "CHG20250107000001").Return(pending, nil).Once()
		f.provider.On("Authorize", mock.Anything, mock.MatchedBy(func(req domain.AuthorizeRequest) bool {
			return req.ChargeNo == "CHG20250107000001" && req.Amount == pending.ActualAmount
		})).Return(&domain.AuthorizeResponse{TransactionNo: "MOCKPAY-1", Approved: true}, nil).Once()
		f.payments.On("ProcessPayment", mock.Anything, "CHG20250107000001",
			domain.PaymentMethodCard, "MOCKPAY-1").Return(paid, nil).Once()

		rec := f.do(t, http.MethodPost, "/api/v1/charges/CHG20250107000001/payment",
			ProcessPaymentRequestDTO{PaymentMethod: "CARD"})
		require.Equal(t, http.StatusOK, rec.Code)
		f.provider.AssertExpectations(t)
	})

	t.Run("DeclinedAuthorization", func(t *testing.T) {
		f := newHandlerFixture(t, app.HealthReport{Status: app.HealthUp})
		pending := sampleCharge(domain.ChargeStatusPending)

		f.charges.On("GetCharge", mock.Anything, "CHG20250107000001").Return(pending, nil).Once()
		f.provider.On("Authorize", mock.Anything, mock.Anything).
			Return(&domain.AuthorizeResponse{Approved: false, Message: "declined"}, nil).Once()

		rec := f.do(t, http.MethodPost, "/api/v1/charges/CHG20250107000001/payment",
			ProcessPaymentRequestDTO{PaymentMethod: "CARD"})
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
		f.payments.AssertNotCalled(t, "ProcessPayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("ProviderUnavailable", func(t *testing.T) {
		f := newHandlerFixture(t, app.HealthReport{Status: app.HealthUp})
		pending := sampleCharge(domain.ChargeStatusPending)

		f.charges.On("GetCharge", mock.Anything, "CHG20250107000001").Return(pending, nil).Once()
		f.provider.On("Authorize", mock.Anything, mock.Anything).
			Return(nil, errors.New("timeout")).Once()

		rec := f.do(t, http.MethodPost, "/api/v1/charges/CHG20250107000001/payment",
			ProcessPaymentRequestDTO{PaymentMethod: "CARD"})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("RejectsUnknownMethod", func(t *testing.T) {
		f := newHandlerFixture(t, app.HealthReport{Status: app.HealthUp})
		rec := f.do(t, http.MethodPost, "/api/v1/charges/CHG20250107000001/payment",
			ProcessPaymentRequestDTO{PaymentMethod: "BARTER", TransactionNo: "TXN-1"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ReplayedPaymentIsOK", func(t *testing.T) {
		f := newHandlerFixture(t, app.HealthReport{Status: app.HealthUp})
		paid := sampleCharge(domain.ChargeStatusPaid)

		f.payments.On("ProcessPayment", mock.Anything, "CHG20250107000001",
			domain.PaymentMethodCard, "TXN-1").Return(paid, nil).Twice()

		for i := 0; i < 2; i++ {
			rec := f.do(t, http.MethodPost, "/api/v1/charges/CHG20250107000001/payment",
				ProcessPaymentRequestDTO{PaymentMethod: "CARD", TransactionNo: "TXN-1"})
			require.Equal(t, http.StatusOK, rec.Code)
		}
	})
}

func TestProcessRefund_Handler(t *testing.T) {
	t.Run("Refunded", func(t *testing.T) {
		f := newHandlerFixture(t, app.HealthReport{Status: app.HealthUp})
		refunded := sampleCharge(domain.ChargeStatusRefunded)

		f.refunds.On("ProcessRefund", mock.Anything, "CHG20250107000001",
			"duplicate billing", true).Return(refunded, nil).Once()

		rec := f.do(t, http.MethodPost, "/api/v1/charges/CHG20250107000001/refund",
			ProcessRefundRequestDTO{Reason: "duplicate billing", RestoreInventory: true})
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("SecondRefundConflicts", func(t *testing.T) {
		f := newHandlerFixture(t, app.HealthReport{Status: app.HealthUp})
		f.refunds.On("ProcessRefund", mock.Anything, "CHG20250107000001", "again", false).
			Return(nil, fmt.Errorf("%w: already refunded", domain.ErrInvalidStateTransition)).Once()

		rec := f.do(t, http.MethodPost, "/api/v1/charges/CHG20250107000001/refund",
			ProcessRefundRequestDTO{Reason: "again"})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), `"kind":"invalid_state_transition"`)
	})

	t.Run("MissingReason", func(t *testing.T) {
		f := newHandlerFixture(t, app.HealthReport{Status: app.HealthUp})
		rec := f.do(t, http.MethodPost, "/api/v1/charges/CHG20250107000001/refund",
			ProcessRefundRequestDTO{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetCharge_Handler(t *testing.T) {
	t.Run("NotFound", func(t *testing.T) {
		f := newHandlerFixture(t, app.HealthReport{Status: app.HealthUp})
		f.charges.On("GetCharge", mock.Anything, "CHG99999999999999").
			Return(nil, domain.ErrNotFound).Once()

		rec := f.do(t, http.MethodGet, "/api/v1/charges/CHG99999999999999", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), `"kind":"not_found"`)
	})
}

func TestListCharges_Handler(t *testing.T) {
	t.Run("RequiresPatientID", func(t *testing.T) {
		f := newHandlerFixture(t, app.HealthReport{Status: app.HealthUp})
		rec := f.do(t, http.MethodGet, "/api/v1/charges", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ReturnsPage", func(t *testing.T) {
		f := newHandlerFixture(t, app.HealthReport{Status: app.HealthUp})
		patientID := uuid.New()
		f.charges.On("ListCharges", mock.Anything, patientID, 10, 0).
			Return([]domain.Charge{*sampleCharge(domain.ChargeStatusPaid)}, 1, nil).Once()

		rec := f.do(t, http.MethodGet, "/api/v1/charges?patient_id="+patientID.String()+"&limit=10", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp ListChargesResponseDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Total)
		require.Len(t, resp.Charges, 1)
		assert.Equal(t, 10, resp.Limit)
		assert.Equal(t, 0, resp.Offset)
	})

	t.Run("EchoesAppliedPaging", func(t *testing.T) {
		f := newHandlerFixture(t, app.HealthReport{Status: app.HealthUp})
		patientID := uuid.New()
		// Out-of-range paging falls back to the defaults before the query
		// runs; the response reports the page that was actually served.
		f.charges.On("ListCharges", mock.Anything, patientID, 20, 0).
			Return([]domain.Charge{}, 0, nil).Once()

		rec := f.do(t, http.MethodGet, "/api/v1/charges?patient_id="+patientID.String()+"&limit=500&offset=-3", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp ListChargesResponseDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 20, resp.Limit)
		assert.Equal(t, 0, resp.Offset)
	})
}

func TestDailyStatistics_Handler(t *testing.T) {
	t.Run("BadDate", func(t *testing.T) {
		f := newHandlerFixture(t, app.HealthReport{Status: app.HealthUp})
		rec := f.do(t, http.MethodGet, "/api/v1/reports/daily?date=07-01-2025", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ReturnsReport", func(t *testing.T) {
		f := newHandlerFixture(t, app.HealthReport{Status: app.HealthUp})
		day := time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC)
		f.reports.On("DailyStatistics", mock.Anything, day).
			Return(&domain.DailySettlementReport{Date: day, TotalCount: 3}, nil).Once()

		rec := f.do(t, http.MethodGet, "/api/v1/reports/daily?date=2025-01-07", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"total_count":3`)
	})
}

func TestHealthz_Handler(t *testing.T) {
	t.Run("UpServes200", func(t *testing.T) {
		f := newHandlerFixture(t, app.HealthReport{Status: app.HealthUp, LatencyMS: 12})
		rec := f.do(t, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"UP"`)
	})

	t.Run("DegradedStillServes200", func(t *testing.T) {
		f := newHandlerFixture(t, app.HealthReport{Status: app.HealthDegraded, LatencyMS: 230})
		rec := f.do(t, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("DownServes503", func(t *testing.T) {
		f := newHandlerFixture(t, app.HealthReport{Status: app.HealthDown, Error: "sequence store unavailable"})
		rec := f.do(t, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
