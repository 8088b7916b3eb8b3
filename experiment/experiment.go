package experiment

import (
	"time"
)

// Status is an experiment lifecycle state.
type Status string

// Experiment lifecycle states.
const (
	StatusDraft     = Status("draft")
	StatusRunning   = Status("running")
	StatusPaused    = Status("paused")
	StatusCompleted = Status("completed")
)

// Variant is one arm of an experiment.
type Variant struct {
	ID     string                 `json:"id"`
	Name   string                 `json:"name"`
	Weight float64                `json:"weight"`
	Config map[string]interface{} `json:"config,omitempty"`
}

// Experiment defines an A/B test over a prompt.
//
// TrafficPercentage is the share of callers eligible for treatment variants,
// the remainder always lands on Control.
type Experiment struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	PromptID          string    `json:"promptId"`
	ProjectID         string    `json:"projectId,omitempty"`
	Status            Status    `json:"status"`
	TrafficPercentage float64   `json:"trafficPercentage"`
	Control           Variant   `json:"controlVariant"`
	Treatments        []Variant `json:"treatmentVariants"`
}

// Running reports whether the experiment accepts allocations.
func (e *Experiment) Running() bool {
	return e != nil && e.Status == StatusRunning
}

// Context identifies a caller for allocation purposes.
//
// SessionID is required and must be stable for the caller session. UserID
// and DeviceID refine the allocation hash when present.
type Context struct {
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId,omitempty"`
	DeviceID  string    `json:"deviceId,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Reason explains how a variant was chosen.
type Reason string

// Assignment reasons.
const (
	// ReasonWeighted marks a caller inside the traffic slice assigned by
	// weighted selection.
	ReasonWeighted = Reason("weighted_allocation")

	// ReasonControlFallback marks a caller outside the traffic slice.
	ReasonControlFallback = Reason("control_fallback")

	// ReasonFallback marks the degenerate-weights safety net.
	ReasonFallback = Reason("fallback")
)

// Assignment binds a caller session to one variant of one experiment.
//
// For a fixed (experiment, session) pair the assignment is expected to be
// returned unchanged for the life of its TTL and of the in-process session
// record.
type Assignment struct {
	ID            string                 `json:"id"`
	ExperimentID  string                 `json:"experimentId"`
	SessionID     string                 `json:"sessionId"`
	VariantID     string                 `json:"variantId"`
	VariantName   string                 `json:"variantName"`
	VariantConfig map[string]interface{} `json:"variantConfig,omitempty"`
	AssignedAt    time.Time              `json:"assignedAt"`
	Reason        Reason                 `json:"assignmentReason"`
	Consistent    bool                   `json:"isConsistent"`
}
