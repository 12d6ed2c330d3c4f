package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestHealthProbe_Up(t *testing.T) {
	seqRepo := new(MockSequenceRepository)
	seqRepo.On("NextValue", mock.Anything, sequenceKindProbe, mock.Anything).
		Return(int64(1), nil)

	prober := NewHealthProber(NewSequenceService(seqRepo, testLogger()), time.Minute, testLogger())
	report := prober.Probe(context.Background())

	assert.Equal(t, HealthUp, report.Status)
	assert.Empty(t, report.Error)
	assert.False(t, report.CheckedAt.IsZero())
}

func TestHealthProbe_DownOnStoreError(t *testing.T) {
	seqRepo := new(MockSequenceRepository)
	seqRepo.On("NextValue", mock.Anything, sequenceKindProbe, mock.Anything).
		Return(int64(0), errors.New("store down"))

	prober := NewHealthProber(NewSequenceService(seqRepo, testLogger()), time.Minute, testLogger())
	report := prober.Probe(context.Background())

	assert.Equal(t, HealthDown, report.Status)
	assert.Contains(t, report.Error, "store down")
}

func TestHealthProbe_DownOnFormatMismatch(t *testing.T) {
	seqRepo := new(MockSequenceRepository)
	// A counter past six digits widens the suffix to 15 digits, which the
	// format contract rejects.
	seqRepo.On("NextValue", mock.Anything, sequenceKindProbe, mock.Anything).
		Return(int64(1000000), nil)

	prober := NewHealthProber(NewSequenceService(seqRepo, testLogger()), time.Minute, testLogger())
	report := prober.Probe(context.Background())

	assert.Equal(t, HealthDown, report.Status)
	assert.Contains(t, report.Error, "format mismatch")
}

func TestHealthReport_DownBeforeFirstProbe(t *testing.T) {
	prober := NewHealthProber(NewSequenceService(new(MockSequenceRepository), testLogger()), time.Minute, testLogger())
	report := prober.Report()

	assert.Equal(t, HealthDown, report.Status)
	assert.True(t, report.CheckedAt.IsZero())
}
