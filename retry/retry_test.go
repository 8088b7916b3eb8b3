package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bool64/stats"
	"github.com/kianwoon/promptops-sub000/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("upstream unavailable")

// silentOrchestrator returns an orchestrator that records computed delays
// instead of sleeping.
func silentOrchestrator(cfg Config, delays *[]time.Duration) *Orchestrator {
	o := New(cfg)
	o.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)

		return nil
	}

	return o
}

func TestDo_exhaustion(t *testing.T) {
	var delays []time.Duration

	st := stats.TrackerMock{}
	o := silentOrchestrator(Config{Stats: &st}, &delays)

	calls := 0

	_, err := Do(context.Background(), o, Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}, "fetch",
		func(ctx context.Context) (int, error) {
			calls++

			return 0, errFlaky
		})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errFlaky), "caller receives the last error")
	assert.Equal(t, 3, calls, "operation invoked exactly MaxAttempts times")
	assert.Len(t, delays, 2, "no backoff after the final attempt")
	assert.Equal(t, 1, st.Int(MetricExhausted))
}

func TestDo_terminalFastPath(t *testing.T) {
	var delays []time.Duration

	o := silentOrchestrator(Config{}, &delays)

	calls := 0

	_, err := Do(context.Background(), o, Policy{MaxAttempts: 5}, "fetch",
		func(ctx context.Context) (string, error) {
			calls++

			return "", ErrUnauthenticated
		})

	assert.True(t, errors.Is(err, ErrUnauthenticated))
	assert.Equal(t, 1, calls, "terminal error is not retried")
	assert.Empty(t, delays)
}

func TestDo_successAfterFailures(t *testing.T) {
	var delays []time.Duration

	rec := &telemetry.Recorder{}
	o := silentOrchestrator(Config{Telemetry: rec}, &delays)

	calls := 0

	val, err := Do(context.Background(), o, Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}, "fetch",
		func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errFlaky
			}

			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 3, calls)

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventPerformance, events[0].Name)
	assert.Equal(t, 3, events[0].Payload["attempts"])
}

func TestDo_exhaustionTelemetry(t *testing.T) {
	var delays []time.Duration

	rec := &telemetry.Recorder{}
	o := silentOrchestrator(Config{Telemetry: rec}, &delays)

	_, err := Do(context.Background(), o, Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}, "fetch",
		func(ctx context.Context) (int, error) {
			return 0, errFlaky
		})

	require.Error(t, err)
	assert.Equal(t, 1, rec.Count(EventExhausted))
}

func TestPolicy_Backoff(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 10 * time.Second}

	// Un-jittered delays before attempts 2..5.
	assert.Equal(t, 1*time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 8*time.Second, p.Backoff(4))

	// Capped at MaxDelay further on.
	assert.Equal(t, 10*time.Second, p.Backoff(5))
	assert.Equal(t, 10*time.Second, p.Backoff(20))
}

func TestPolicy_Backoff_maxBelowBase(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: 4 * time.Second, MaxDelay: time.Second}

	assert.Equal(t, 4*time.Second, p.Backoff(1), "max delay raised to base delay")
	assert.Equal(t, 4*time.Second, p.Backoff(2))
}

func TestDo_jitterBounds(t *testing.T) {
	for _, r := range []float64{0, 0.25, 0.5, 0.999} {
		r := r

		var delays []time.Duration

		o := silentOrchestrator(Config{Rand: func() float64 { return r }}, &delays)

		_, err := Do(context.Background(), o, Policy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Jitter: true}, "fetch",
			func(ctx context.Context) (int, error) {
				return 0, errFlaky
			})

		require.Error(t, err)
		require.Len(t, delays, 1)
		assert.GreaterOrEqual(t, delays[0], 500*time.Millisecond)
		assert.LessOrEqual(t, delays[0], time.Second)
	}
}

func TestDo_contextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New()

	calls := 0

	_, err := Do(ctx, o, Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, "fetch",
		func(ctx context.Context) (int, error) {
			calls++

			return 0, errFlaky
		})

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls, "cancellation aborts before the next attempt")
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(ErrUnauthenticated))
	assert.True(t, IsTerminal(ErrPermissionDenied))
	assert.True(t, IsTerminal(ErrInvalidRequest))
	assert.True(t, IsTerminal(FromStatus(http.StatusUnauthorized, "bad token")))
	assert.False(t, IsTerminal(errFlaky))
	assert.False(t, IsTerminal(FromStatus(http.StatusServiceUnavailable, "down")))
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, RetryableStatus(code), code)
	}

	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		assert.False(t, RetryableStatus(code), code)
	}
}
