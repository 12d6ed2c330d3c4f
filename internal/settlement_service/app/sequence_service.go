package app

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/carelink/hospital-settlement/internal/settlement_service/domain"
	"github.com/carelink/hospital-settlement/internal/settlement_service/repository"
)

// Sequence kinds issued by this service.
const (
	SequenceKindCharge  = "CHG"
	SequenceKindReceipt = "RCP"
	// sequenceKindProbe is reserved for the health prober so probe traffic
	// never consumes numbers from a business kind.
	sequenceKindProbe = "PRB"
)

const (
	sequenceMaxAttempts  = 3
	sequenceRetryBackoff = 50 * time.Millisecond
)

// sequenceFormat: 3-letter kind prefix, 8-digit date, 6-digit counter.
// The suffix is exactly 14 digits; the health prober validates this and the
// format must not change without a migration plan for existing records.
var sequenceFormat = regexp.MustCompile(`^[A-Z]{3}\d{14}$`)

// SequenceService issues globally unique, monotonically-formatted business
// identifiers. Uniqueness comes entirely from the storage-layer atomic
// increment; this service never synthesizes fallback numbers.
type SequenceService struct {
	repo   repository.SequenceRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewSequenceService(repo repository.SequenceRepository, logger *slog.Logger) *SequenceService {
	return &SequenceService{
		repo:   repo,
		logger: logger.With("service", "sequence"),
		now:    time.Now,
	}
}

// Next returns the next identifier for kind, e.g. "CHG20250107000042".
// Transient store failures are retried a bounded number of times, then
// surfaced as domain.ErrTransient so callers fail fast instead of inventing
// their own numbers.
func (s *SequenceService) Next(ctx context.Context, kind string) (string, error) {
	start := time.Now()
	day := s.now().UTC()

	var value int64
	var err error
	for attempt := 1; attempt <= sequenceMaxAttempts; attempt++ {
		value, err = s.repo.NextValue(ctx, kind, day)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
		s.logger.WarnContext(ctx, "sequence store increment failed, retrying",
			"kind", kind, "attempt", attempt, "error", err)
		select {
		case <-time.After(sequenceRetryBackoff):
		case <-ctx.Done():
		}
	}

	sequenceLatencyHist.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		sequenceCallsCounter.WithLabelValues(kind, "error").Inc()
		s.logger.ErrorContext(ctx, "sequence store unavailable", "kind", kind, "error", err)
		return "", fmt.Errorf("%w: sequence store: %v", domain.ErrTransient, err)
	}

	seq := fmt.Sprintf("%s%s%06d", kind, day.Format("20060102"), value)
	sequenceCallsCounter.WithLabelValues(kind, "success").Inc()
	return seq, nil
}

// ValidSequenceNo reports whether a generated identifier matches the fixed
// prefix + 14-digit format contract.
func ValidSequenceNo(seq string) bool {
	return sequenceFormat.MatchString(seq)
}
