package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/carelink/hospital-settlement/internal/settlement_service/app"
	"github.com/carelink/hospital-settlement/internal/settlement_service/domain"
)

// ChargeOperations is the aggregator surface the handler needs.
type ChargeOperations interface {
	CreateCharge(ctx context.Context, patientID uuid.UUID, sources []domain.SourceRef, declaredTotal *int64) (*domain.Charge, error)
	CancelCharge(ctx context.Context, chargeNo string) (*domain.Charge, error)
	GetCharge(ctx context.Context, chargeNo string) (*domain.Charge, error)
	ListCharges(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]domain.Charge, int, error)
}

// PaymentOperations is the payment processor surface.
type PaymentOperations interface {
	ProcessPayment(ctx context.Context, chargeNo string, method domain.PaymentMethod, transactionNo string) (*domain.Charge, error)
}

// RefundOperations is the refund processor surface.
type RefundOperations interface {
	ProcessRefund(ctx context.Context, chargeNo, reason string, restoreInventory bool) (*domain.Charge, error)
}

// ReportOperations is the settlement report engine surface.
type ReportOperations interface {
	DailyStatistics(ctx context.Context, day time.Time) (*domain.DailySettlementReport, error)
}

// HealthReporter exposes the latest sequence health probe.
type HealthReporter interface {
	Report() app.HealthReport
}

// SettlementHandler exposes the settlement API consumed by the external
// controller layer.
type SettlementHandler struct {
	charges  ChargeOperations
	payments PaymentOperations
	refunds  RefundOperations
	reports  ReportOperations
	provider domain.PaymentProvider
	health   HealthReporter
	logger   *slog.Logger
	validate *validator.Validate
}

func NewSettlementHandler(
	charges ChargeOperations,
	payments PaymentOperations,
	refunds RefundOperations,
	reports ReportOperations,
	provider domain.PaymentProvider,
	health HealthReporter,
	logger *slog.Logger,
	validate *validator.Validate,
) *SettlementHandler {
	return &SettlementHandler{
		charges:  charges,
		payments: payments,
		refunds:  refunds,
		reports:  reports,
		provider: provider,
		health:   health,
		logger:   logger.With("component", "settlement_handler"),
		validate: validate,
	}
}

// RegisterRoutes sets up the settlement API routes.
func (h *SettlementHandler) RegisterRoutes(r chi.Router) {
	r.Post("/charges", h.CreateCharge)
	r.Get("/charges", h.ListCharges)
	r.Get("/charges/{chargeNo}", h.GetCharge)
	r.Post("/charges/{chargeNo}/payment", h.ProcessPayment)
	r.Post("/charges/{chargeNo}/refund", h.ProcessRefund)
	r.Post("/charges/{chargeNo}/cancel", h.CancelCharge)
	r.Get("/reports/daily", h.DailyStatistics)
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Default().Error("Failed to write JSON response", "error", err)
		}
	}
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func respondWithError(w http.ResponseWriter, code int, kind, message string) {
	respondWithJSON(w, code, map[string]errorBody{"error": {Kind: kind, Message: message}})
}

// respondWithDomainError maps the error taxonomy to HTTP. Every failure
// carries a stable kind plus the human-readable message.
func respondWithDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidStateTransition):
		respondWithError(w, http.StatusConflict, "invalid_state_transition", err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		respondWithError(w, http.StatusConflict, "insufficient_stock", err.Error())
	case errors.Is(err, domain.ErrConflict):
		respondWithError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrValidation):
		respondWithError(w, http.StatusUnprocessableEntity, "validation_failure", err.Error())
	case errors.Is(err, domain.ErrTransient):
		respondWithError(w, http.StatusServiceUnavailable, "transient", err.Error())
	default:
		respondWithError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func (h *SettlementHandler) CreateCharge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req CreateChargeRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.StructCtx(ctx, req); err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "validation failed: "+err.Error())
		return
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "invalid patient_id")
		return
	}
	sources, err := parseSourceRefs(req.Sources)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "invalid source id: "+err.Error())
		return
	}

	charge, err := h.charges.CreateCharge(ctx, patientID, sources, req.DeclaredTotal)
	if err != nil {
		logger.WarnContext(ctx, "create charge failed", "error", err)
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, toChargeResponse(charge))
}

func (h *SettlementHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chargeNo := chi.URLParam(r, "chargeNo")
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx), "charge_no", chargeNo)

	var req ProcessPaymentRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.StructCtx(ctx, req); err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "validation failed: "+err.Error())
		return
	}

	transactionNo := req.TransactionNo
	if transactionNo == "" {
		// No gateway reference supplied: run the payment through the provider.
		charge, err := h.charges.GetCharge(ctx, chargeNo)
		if err != nil {
			respondWithDomainError(w, err)
			return
		}
		requestID := req.RequestID
		if requestID == "" {
			requestID = chargeNo
		}
		auth, err := h.provider.Authorize(ctx, domain.AuthorizeRequest{
			RequestID: requestID,
			ChargeNo:  chargeNo,
			Amount:    charge.ActualAmount,
			Method:    domain.PaymentMethod(req.PaymentMethod),
		})
		if err != nil {
			logger.ErrorContext(ctx, "payment provider authorization failed", "error", err)
			respondWithError(w, http.StatusBadGateway, "provider", "payment provider unavailable")
			return
		}
		if !auth.Approved {
			respondWithError(w, http.StatusPaymentRequired, "declined", auth.Message)
			return
		}
		transactionNo = auth.TransactionNo
	}

	charge, err := h.payments.ProcessPayment(ctx, chargeNo, domain.PaymentMethod(req.PaymentMethod), transactionNo)
	if err != nil {
		logger.WarnContext(ctx, "process payment failed", "error", err)
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toChargeResponse(charge))
}

func (h *SettlementHandler) ProcessRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chargeNo := chi.URLParam(r, "chargeNo")
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx), "charge_no", chargeNo)

	var req ProcessRefundRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.StructCtx(ctx, req); err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "validation failed: "+err.Error())
		return
	}

	charge, err := h.refunds.ProcessRefund(ctx, chargeNo, req.Reason, req.RestoreInventory)
	if err != nil {
		logger.WarnContext(ctx, "process refund failed", "error", err)
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toChargeResponse(charge))
}

func (h *SettlementHandler) CancelCharge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chargeNo := chi.URLParam(r, "chargeNo")

	charge, err := h.charges.CancelCharge(ctx, chargeNo)
	if err != nil {
		h.logger.WarnContext(ctx, "cancel charge failed", "charge_no", chargeNo, "error", err)
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toChargeResponse(charge))
}

func (h *SettlementHandler) GetCharge(w http.ResponseWriter, r *http.Request) {
	charge, err := h.charges.GetCharge(r.Context(), chi.URLParam(r, "chargeNo"))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toChargeResponse(charge))
}

func (h *SettlementHandler) ListCharges(w http.ResponseWriter, r *http.Request) {
	patientID, err := uuid.Parse(r.URL.Query().Get("patient_id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "patient_id query parameter is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	// Echo the page the backend actually served, not the raw query values.
	limit, offset = app.NormalizePaging(limit, offset)

	charges, total, err := h.charges.ListCharges(r.Context(), patientID, limit, offset)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	resp := ListChargesResponseDTO{Total: total, Limit: limit, Offset: offset}
	for i := range charges {
		resp.Charges = append(resp.Charges, toChargeResponse(&charges[i]))
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *SettlementHandler) DailyStatistics(w http.ResponseWriter, r *http.Request) {
	dateStr := r.URL.Query().Get("date")
	day, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "date query parameter must be YYYY-MM-DD")
		return
	}
	report, err := h.reports.DailyStatistics(r.Context(), day)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, report)
}

// Healthz reports the sequence generator probe status. DOWN maps to 503 so
// load balancers stop routing; DEGRADED still serves.
func (h *SettlementHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	report := h.health.Report()
	code := http.StatusOK
	if report.Status == app.HealthDown {
		code = http.StatusServiceUnavailable
	}
	respondWithJSON(w, code, report)
}
