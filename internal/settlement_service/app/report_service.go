package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/carelink/hospital-settlement/internal/settlement_service/domain"
	"github.com/carelink/hospital-settlement/internal/settlement_service/repository"
)

// ReportService is the read-only settlement report engine. It aggregates
// whatever the write path has committed; no invariant enforcement of its own.
type ReportService struct {
	db         repository.Querier
	chargeRepo repository.ChargeRepository
	logger     *slog.Logger
}

func NewReportService(db repository.Querier, chargeRepo repository.ChargeRepository, logger *slog.Logger) *ReportService {
	return &ReportService{
		db:         db,
		chargeRepo: chargeRepo,
		logger:     logger.With("service", "report"),
	}
}

// DailyStatistics aggregates charges created on the given calendar day (UTC):
// counts by status, paid amount, refunded amount.
func (s *ReportService) DailyStatistics(ctx context.Context, day time.Time) (*domain.DailySettlementReport, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	return s.chargeRepo.DailyStatistics(ctx, s.db, from, to)
}
