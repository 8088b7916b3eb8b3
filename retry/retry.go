package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"github.com/kianwoon/promptops-sub000/telemetry"
)

// SentinelError is an error.
type SentinelError string

// Error implements error.
func (e SentinelError) Error() string {
	return string(e)
}

// Terminal client error kinds, never retried.
const (
	// ErrUnauthenticated indicates missing or invalid credentials.
	ErrUnauthenticated = SentinelError("unauthenticated")

	// ErrPermissionDenied indicates insufficient permissions.
	ErrPermissionDenied = SentinelError("permission denied")

	// ErrInvalidRequest indicates a request the server rejected as malformed.
	ErrInvalidRequest = SentinelError("invalid request")
)

// Metric names reported to stats.Tracker.
const (
	MetricRetry     = "retry_attempt"
	MetricTerminal  = "retry_terminal_error"
	MetricExhausted = "retry_exhausted"
)

// Telemetry event names.
const (
	EventPerformance = "operation_performance"
	EventExhausted   = "operation_retries_exhausted"
)

// IsTerminal reports whether an error must not be retried.
//
// Authentication, authorization and validation failures are terminal, they
// are surfaced to the caller immediately.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrInvalidRequest)
}

// RetryableStatus reports whether an HTTP status class warrants a retry.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// FromStatus converts an HTTP status into an error of the matching kind.
func FromStatus(code int, msg string) error {
	switch code {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: http %d %s", ErrUnauthenticated, code, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w: http %d %s", ErrPermissionDenied, code, msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: http %d %s", ErrInvalidRequest, code, msg)
	default:
		return fmt.Errorf("http %d %s", code, msg)
	}
}

// Policy bounds a retry sequence.
type Policy struct {
	// MaxAttempts is total invocation count including the first, default 3.
	MaxAttempts int

	// BaseDelay is the backoff before the second attempt, default 1s.
	BaseDelay time.Duration

	// MaxDelay caps the backoff, default 30s. Raised to BaseDelay if lower.
	MaxDelay time.Duration

	// Jitter scales each delay by a uniform factor in [0.5, 1.0].
	// The 0.5 floor keeps a minimum spacing between concurrent retriers,
	// the 1.0 ceiling keeps worst-case latency capped at MaxDelay.
	Jitter bool
}

// DefaultPolicy returns the policy used when a zero Policy is passed.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultPolicy().MaxAttempts
	}

	if p.BaseDelay == 0 {
		p.BaseDelay = DefaultPolicy().BaseDelay
	}

	if p.MaxDelay == 0 {
		p.MaxDelay = DefaultPolicy().MaxDelay
	}

	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}

	return p
}

// Backoff returns the un-jittered delay after a failed attempt,
// min(BaseDelay * 2^(attempt-1), MaxDelay).
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.normalized()

	if attempt < 1 {
		attempt = 1
	}

	d := p.BaseDelay << uint(attempt-1)
	if d <= 0 || d > p.MaxDelay {
		d = p.MaxDelay
	}

	return d
}

// Config controls retry orchestrator instance.
type Config struct {
	// Name is orchestrator instance name, used in stats and logging.
	Name string

	// Logger is an instance of contextualized logger, can be nil.
	Logger ctxd.Logger

	// Stats is metrics collector, can be nil.
	Stats stats.Tracker

	// Telemetry receives performance and exhaustion events, can be nil.
	Telemetry telemetry.Tracker

	// Terminal overrides the non-retry predicate, default IsTerminal.
	Terminal func(error) bool

	// Rand is a uniform [0, 1) source for jitter, default math/rand.
	Rand func() float64
}

// Orchestrator wraps fallible operations with bounded retries and
// exponential backoff.
//
// Please use New to create instance.
type Orchestrator struct {
	config   Config
	log      ctxd.Logger
	stat     stats.Tracker
	track    telemetry.Tracker
	terminal func(error) bool
	random   func() float64
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates a retry orchestrator with optional configuration.
func New(cfg ...Config) *Orchestrator {
	config := Config{}

	if len(cfg) >= 1 {
		config = cfg[0]
	}

	o := &Orchestrator{
		config:   config,
		log:      config.Logger,
		stat:     config.Stats,
		track:    config.Telemetry,
		terminal: config.Terminal,
		random:   config.Rand,
		sleep:    sleepContext,
	}

	if o.terminal == nil {
		o.terminal = IsTerminal
	}

	if o.random == nil {
		o.random = rand.Float64
	}

	return o
}

// Do invokes an operation under a retry policy.
//
// A terminal error returns immediately after a single invocation. Retryable
// failures back off exponentially with optional jitter before the next
// attempt; the backoff suspends only the calling goroutine. When attempts
// are exhausted, the last error is returned wrapped with attempt context.
//
// The backoff wait honors ctx cancellation; a canceled context aborts the
// sequence with ctx.Err().
func Do[T any](ctx context.Context, o *Orchestrator, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if o == nil {
		o = New()
	}

	p = p.normalized()
	start := time.Now()

	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		val, err := op(ctx)
		if err == nil {
			if o.track != nil {
				o.track.Track(ctx, EventPerformance, map[string]interface{}{
					"operation":  name,
					"attempts":   attempt,
					"durationMs": time.Since(start).Milliseconds(),
				})
			}

			return val, nil
		}

		lastErr = err

		if o.terminal(err) {
			if o.log != nil {
				o.log.Debug(ctx, "terminal error, not retrying",
					"name", o.config.Name,
					"operation", name,
					"error", err)
			}

			if o.stat != nil {
				o.stat.Add(ctx, MetricTerminal, 1, "operation", name)
			}

			return zero, err
		}

		if attempt == p.MaxAttempts {
			break
		}

		delay := p.Backoff(attempt)
		if p.Jitter {
			delay = time.Duration(float64(delay) * (0.5 + 0.5*o.random()))
		}

		if o.log != nil {
			o.log.Debug(ctx, "retrying operation",
				"name", o.config.Name,
				"operation", name,
				"attempt", attempt,
				"delay", delay.String(),
				"error", err)
		}

		if o.stat != nil {
			o.stat.Add(ctx, MetricRetry, 1, "operation", name)
		}

		if err := o.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	if o.stat != nil {
		o.stat.Add(ctx, MetricExhausted, 1, "operation", name)
	}

	if o.track != nil {
		o.track.Track(ctx, EventExhausted, map[string]interface{}{
			"operation":  name,
			"attempts":   p.MaxAttempts,
			"durationMs": time.Since(start).Milliseconds(),
			"error":      lastErr.Error(),
		})
	}

	return zero, ctxd.WrapError(ctx, lastErr, "retries exhausted",
		"operation", name,
		"attempts", p.MaxAttempts)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
