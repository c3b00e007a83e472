package admission_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redditpulse/scraper/internal/admission"
)

func TestLocalAdmission_AcquireRespectsRate(t *testing.T) {
	t.Parallel()

	l := admission.NewLocal(10, 1, 20)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, l.Acquire(ctx))
	d := l.WaitDuration()
	assert.Greater(t, d, time.Duration(0))
}

func TestLocalAdmission_RecordOutcome_HighErrorRateHalvesRate(t *testing.T) {
	t.Parallel()

	l := admission.NewLocal(10, 1, 20)
	for i := 0; i < 100; i++ {
		l.RecordOutcome(admission.OutcomeError)
	}
	assert.Less(t, l.Rate(), 10.0)
	assert.GreaterOrEqual(t, l.Rate(), 1.0)
}

func TestLocalAdmission_RecordOutcome_LowErrorRateIncreasesRate(t *testing.T) {
	t.Parallel()

	l := admission.NewLocal(10, 1, 20)
	for i := 0; i < 100; i++ {
		l.RecordOutcome(admission.OutcomeOK)
	}
	assert.Greater(t, l.Rate(), 10.0)
	assert.LessOrEqual(t, l.Rate(), 20.0)
}

func TestLocalAdmission_RateStaysWithinBounds(t *testing.T) {
	t.Parallel()

	l := admission.NewLocal(10, 5, 12)
	for i := 0; i < 500; i++ {
		l.RecordOutcome(admission.OutcomeOK)
	}
	assert.LessOrEqual(t, l.Rate(), 12.0)

	for i := 0; i < 500; i++ {
		l.RecordOutcome(admission.OutcomeError)
	}
	assert.GreaterOrEqual(t, l.Rate(), 5.0)
}

func TestLocalAdmission_AcquireCancelledContextDoesNotConsumeToken(t *testing.T) {
	t.Parallel()

	l := admission.NewLocal(0.1, 0.1, 1)
	// A new limiter holds one token of burst; spend it so the next slot
	// is about 10s away.
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx)
	assert.Error(t, err)
	// Had the failed Acquire taken a token, the next slot would be ~20s away.
	assert.LessOrEqual(t, l.WaitDuration(), 10*time.Second)
}
