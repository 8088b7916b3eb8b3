package experiment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"github.com/google/uuid"
	"github.com/kianwoon/promptops-sub000/cache"
	"github.com/kianwoon/promptops-sub000/retry"
	"github.com/kianwoon/promptops-sub000/telemetry"
)

// Telemetry event names.
const (
	EventAssignment       = "experiment_assignment"
	EventAssignmentFailed = "experiment_assignment_failed"
)

// Metric names reported to stats.Tracker.
const (
	MetricAllocation        = "experiment_allocation"
	MetricConsistentReplay  = "experiment_consistent_replay"
	MetricAssignmentFailure = "experiment_assignment_failure"
)

// Config controls assignment engine instance.
type Config struct {
	// Name is engine instance name, used in stats and logging.
	Name string

	// Logger is an instance of contextualized logger, can be nil.
	Logger ctxd.Logger

	// Stats is metrics collector, can be nil.
	Stats stats.Tracker

	// Telemetry receives assignment events, can be nil.
	Telemetry telemetry.Tracker

	// Provider fetches experiment definitions.
	Provider Provider

	// Cache persists assignments and active experiment lists, can be nil.
	Cache *cache.Manager

	// Retrier wraps provider calls, created with defaults if nil.
	Retrier *retry.Orchestrator

	// RetryPolicy bounds provider call retries, default retry.DefaultPolicy.
	RetryPolicy retry.Policy

	// AssignmentTTL is cached assignment lifetime, default 1h.
	AssignmentTTL time.Duration

	// ExperimentsTTL is cached active-experiment list lifetime, default 5m.
	ExperimentsTTL time.Duration

	// DisableConsistency turns off assignment replay from the session store
	// and the cache; every allocation recomputes from the hash alone.
	DisableConsistency bool

	// MaxSessions bounds the in-process session store, default 10000.
	MaxSessions int

	// Now is a time source, default time.Now.
	Now func() time.Time

	// NewID mints assignment ids, default uuid.NewString.
	NewID func() string
}

// Engine deterministically assigns caller sessions to experiment variants.
//
// The in/out traffic decision and the variant choice are both functions of
// one digest of (experiment, session, user, device), so re-running an
// allocation with the same inputs yields the same variant regardless of
// calendar time.
//
// Please use New to create instance.
type Engine struct {
	config   Config
	sessions *sessionStore

	log     ctxd.Logger
	stat    stats.Tracker
	track   telemetry.Tracker
	cache   *cache.Manager
	retrier *retry.Orchestrator
	policy  retry.Policy
	now     func() time.Time
	newID   func() string
}

// New creates an assignment engine.
func New(cfg Config) *Engine {
	if cfg.AssignmentTTL == 0 {
		cfg.AssignmentTTL = time.Hour
	}

	if cfg.ExperimentsTTL == 0 {
		cfg.ExperimentsTTL = 5 * time.Minute
	}

	if cfg.MaxSessions == 0 {
		cfg.MaxSessions = 10000
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	if cfg.Retrier == nil {
		cfg.Retrier = retry.New(retry.Config{
			Name:      cfg.Name,
			Logger:    cfg.Logger,
			Stats:     cfg.Stats,
			Telemetry: cfg.Telemetry,
		})
	}

	return &Engine{
		config:   cfg,
		sessions: newSessionStore(cfg.MaxSessions, cfg.Now),
		log:      cfg.Logger,
		stat:     cfg.Stats,
		track:    cfg.Telemetry,
		cache:    cfg.Cache,
		retrier:  cfg.Retrier,
		policy:   cfg.RetryPolicy,
		now:      cfg.Now,
		newID:    cfg.NewID,
	}
}

// AssignmentKey digests allocation inputs into a 16 hex character key.
//
// It is a pure function: identical inputs always produce identical keys,
// and any changed field changes the key.
func AssignmentKey(experimentID string, c Context) string {
	userID := c.UserID
	if userID == "" {
		userID = "anonymous"
	}

	deviceID := c.DeviceID
	if deviceID == "" {
		deviceID = "unknown"
	}

	sum := sha256.Sum256([]byte(experimentID + ":" + c.SessionID + ":" + userID + ":" + deviceID))

	return hex.EncodeToString(sum[:])[:16]
}

// hashPercentage maps the first 8 hex characters of an assignment key onto
// a percentage.
func hashPercentage(key string) float64 {
	bucket, err := strconv.ParseUint(key[:8], 16, 32)
	if err != nil {
		// Keys come from AssignmentKey and are always hex.
		return 0
	}

	return float64(bucket) / float64(0xFFFFFFFF) * 100
}

func assignmentCacheKey(experimentID, sessionID string) string {
	return "assignment:" + experimentID + ":" + sessionID
}

func experimentsCacheKey(promptID, projectID string) string {
	return "experiments:" + promptID + ":" + projectID
}

// GetAssignment resolves the variant assignment for a caller session.
//
// A missing, not running or unfetchable experiment yields a nil assignment,
// never an error: assignment failure must not block the operation it
// augments. The failure is reported to telemetry instead.
func (e *Engine) GetAssignment(ctx context.Context, experimentID string, c Context) *Assignment {
	if c.SessionID == "" {
		e.assignmentFailed(ctx, experimentID, c, "missing session id")

		return nil
	}

	exp, err := retry.Do(ctx, e.retrier, e.policy, "experiment_fetch",
		func(ctx context.Context) (*Experiment, error) {
			return e.config.Provider.Experiment(ctx, experimentID)
		})
	if err != nil {
		e.assignmentFailed(ctx, experimentID, c, err.Error())

		return nil
	}

	if !exp.Running() {
		e.assignmentFailed(ctx, experimentID, c, "experiment not running")

		return nil
	}

	return e.Allocate(ctx, exp, c)
}

// Allocate deterministically assigns a caller to a variant of an experiment.
//
// With consistency enabled, a previous assignment found in the session store
// or the cache is returned unchanged.
func (e *Engine) Allocate(ctx context.Context, exp *Experiment, c Context) *Assignment {
	if exp == nil {
		return nil
	}

	if !e.config.DisableConsistency {
		if a, ok := e.previous(ctx, exp.ID, c.SessionID); ok {
			if e.stat != nil {
				e.stat.Add(ctx, MetricConsistentReplay, 1, "name", e.config.Name, "experiment", exp.ID)
			}

			return a
		}
	}

	key := AssignmentKey(exp.ID, c)
	pct := hashPercentage(key)

	var (
		variant Variant
		reason  Reason
	)

	if pct > exp.TrafficPercentage {
		variant, reason = exp.Control, ReasonControlFallback
	} else {
		variant, reason = pickWeighted(exp, pct)
	}

	if reason == ReasonFallback && e.log != nil {
		e.log.Warn(ctx, "degenerate variant weights, falling back to control",
			"name", e.config.Name,
			"experiment", exp.ID)
	}

	a := &Assignment{
		ID:            e.newID(),
		ExperimentID:  exp.ID,
		SessionID:     c.SessionID,
		VariantID:     variant.ID,
		VariantName:   variant.Name,
		VariantConfig: variant.Config,
		AssignedAt:    e.now(),
		Reason:        reason,
		Consistent:    !e.config.DisableConsistency,
	}

	e.persist(ctx, a)

	if e.stat != nil {
		e.stat.Add(ctx, MetricAllocation, 1,
			"name", e.config.Name,
			"experiment", exp.ID,
			"reason", string(reason))
	}

	if e.track != nil {
		e.track.Track(ctx, EventAssignment, map[string]interface{}{
			"assignmentId": a.ID,
			"experimentId": a.ExperimentID,
			"sessionId":    a.SessionID,
			"variantId":    a.VariantID,
			"variantName":  a.VariantName,
			"reason":       string(a.Reason),
			"isConsistent": a.Consistent,
		})
	}

	return a
}

// previous looks up an existing assignment, session store first so that a
// rapid sequence of calls within one process never disagrees even across
// cache TTL boundaries.
func (e *Engine) previous(ctx context.Context, experimentID, sessionID string) (*Assignment, bool) {
	if a, ok := e.sessions.get(sessionID, experimentID); ok {
		return a, true
	}

	if e.cache == nil {
		return nil, false
	}

	a, ok := cache.Get[*Assignment](ctx, e.cache, assignmentCacheKey(experimentID, sessionID))
	if !ok || a == nil {
		return nil, false
	}

	// Rehydrate the session store so the next lookup is local.
	e.sessions.put(a)

	return a, true
}

func (e *Engine) persist(ctx context.Context, a *Assignment) {
	if e.cache != nil {
		key := assignmentCacheKey(a.ExperimentID, a.SessionID)

		if err := e.cache.Set(cache.WithTTL(ctx, e.config.AssignmentTTL), key, a); err != nil && e.log != nil {
			e.log.Warn(ctx, "failed to cache assignment",
				"name", e.config.Name,
				"experiment", a.ExperimentID,
				"error", err)
		}
	}

	if !e.config.DisableConsistency {
		e.sessions.put(a)
	}
}

// pickWeighted walks [control, treatments...] accumulating weights until the
// running sum reaches the target derived from the hash percentage.
func pickWeighted(exp *Experiment, pct float64) (Variant, Reason) {
	variants := make([]Variant, 0, len(exp.Treatments)+1)
	variants = append(variants, exp.Control)
	variants = append(variants, exp.Treatments...)

	total := 0.0

	for _, v := range variants {
		if v.Weight > 0 {
			total += v.Weight
		}
	}

	if total <= 0 {
		return exp.Control, ReasonFallback
	}

	target := pct / 100 * total
	acc := 0.0

	for _, v := range variants {
		if v.Weight <= 0 {
			continue
		}

		acc += v.Weight
		if acc >= target {
			return v, ReasonWeighted
		}
	}

	// Floating point accumulation fell short of the target.
	return exp.Control, ReasonFallback
}

// GetActiveExperiments returns running experiments attached to a prompt,
// cached with ExperimentsTTL. Empty projectID means any project.
//
// Unlike assignment resolution, a fetch failure here is surfaced: listing is
// an explicit query, not an augmentation of another operation.
func (e *Engine) GetActiveExperiments(ctx context.Context, promptID, projectID string) ([]Experiment, error) {
	key := experimentsCacheKey(promptID, projectID)

	if e.cache != nil {
		if exps, ok := cache.Get[[]Experiment](ctx, e.cache, key); ok {
			return exps, nil
		}
	}

	exps, err := retry.Do(ctx, e.retrier, e.policy, "experiments_list",
		func(ctx context.Context) ([]Experiment, error) {
			return e.config.Provider.ActiveExperiments(ctx, promptID, projectID)
		})
	if err != nil {
		return nil, err
	}

	running := make([]Experiment, 0, len(exps))

	for i := range exps {
		exp := exps[i]
		if exp.Running() {
			running = append(running, exp)
		}
	}

	if e.cache != nil {
		if err := e.cache.Set(cache.WithTTL(ctx, e.config.ExperimentsTTL), key, running); err != nil && e.log != nil {
			e.log.Warn(ctx, "failed to cache active experiments",
				"name", e.config.Name,
				"prompt", promptID,
				"error", err)
		}
	}

	return running, nil
}

// ClearSessionAssignments drops the in-process assignments of one session.
func (e *Engine) ClearSessionAssignments(sessionID string) {
	e.sessions.clear(sessionID)
}

// SessionCount returns the number of sessions held in process.
func (e *Engine) SessionCount() int {
	return e.sessions.len()
}

func (e *Engine) assignmentFailed(ctx context.Context, experimentID string, c Context, cause string) {
	if e.log != nil {
		e.log.Warn(ctx, "assignment unavailable",
			"name", e.config.Name,
			"experiment", experimentID,
			"session", c.SessionID,
			"cause", cause)
	}

	if e.stat != nil {
		e.stat.Add(ctx, MetricAssignmentFailure, 1, "name", e.config.Name, "experiment", experimentID)
	}

	if e.track != nil {
		e.track.Track(ctx, EventAssignmentFailed, map[string]interface{}{
			"experimentId": experimentID,
			"sessionId":    c.SessionID,
			"cause":        cause,
		})
	}
}
