package app

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// HealthStatus classifies the sequence path end-to-end.
type HealthStatus string

const (
	HealthUp       HealthStatus = "UP"
	HealthDegraded HealthStatus = "DEGRADED"
	HealthDown     HealthStatus = "DOWN"
)

const (
	healthUpThreshold       = 100 * time.Millisecond
	healthDegradedThreshold = 500 * time.Millisecond
)

// HealthReport is the probe result exposed at /healthz.
type HealthReport struct {
	Status    HealthStatus `json:"status"`
	LatencyMS int64        `json:"latency_ms"`
	CheckedAt time.Time    `json:"checked_at"`
	Error     string       `json:"error,omitempty"`
}

// HealthProber periodically exercises the sequence generator and validates the
// returned identifier format. It reports UP under 100ms, DEGRADED under 500ms,
// and DOWN on anything slower, on error, or on a format mismatch.
type HealthProber struct {
	sequences *SequenceService
	interval  time.Duration
	logger    *slog.Logger

	mu   sync.RWMutex
	last HealthReport
}

func NewHealthProber(sequences *SequenceService, interval time.Duration, logger *slog.Logger) *HealthProber {
	return &HealthProber{
		sequences: sequences,
		interval:  interval,
		logger:    logger.With("component", "health_prober"),
		last: HealthReport{
			Status:    HealthDown,
			CheckedAt: time.Time{}, // Zero until the first probe completes.
		},
	}
}

// Run probes until ctx is cancelled. An immediate first probe avoids reporting
// DOWN for a full interval after startup.
func (p *HealthProber) Run(ctx context.Context) error {
	p.probe(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

// Probe runs one probe cycle and returns the report. Exposed for on-demand checks.
func (p *HealthProber) Probe(ctx context.Context) HealthReport {
	p.probe(ctx)
	return p.Report()
}

// Report returns the most recent probe result.
func (p *HealthProber) Report() HealthReport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

func (p *HealthProber) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, healthDegradedThreshold*2)
	defer cancel()

	start := time.Now()
	seq, err := p.sequences.Next(probeCtx, sequenceKindProbe)
	latency := time.Since(start)

	report := HealthReport{
		LatencyMS: latency.Milliseconds(),
		CheckedAt: time.Now().UTC(),
	}
	switch {
	case err != nil:
		report.Status = HealthDown
		report.Error = err.Error()
	case !ValidSequenceNo(seq):
		report.Status = HealthDown
		report.Error = "sequence format mismatch: " + seq
	case latency < healthUpThreshold:
		report.Status = HealthUp
	case latency < healthDegradedThreshold:
		report.Status = HealthDegraded
	default:
		report.Status = HealthDown
	}

	if report.Status != HealthUp {
		p.logger.WarnContext(ctx, "sequence health probe not UP",
			"status", report.Status, "latency_ms", report.LatencyMS, "error", report.Error)
	}

	p.mu.Lock()
	p.last = report
	p.mu.Unlock()
}
