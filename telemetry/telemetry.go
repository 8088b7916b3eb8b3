// Package telemetry defines the fire-and-forget event sink contract consumed
// by the client core. Event delivery, buffering and flushing belong to the
// sink implementation; callers never observe a delivery failure.
package telemetry

import (
	"context"
	"sync"
)

// Tracker receives client events.
//
// Implementations must not block the caller and must not panic; an event that
// cannot be delivered is dropped.
type Tracker interface {
	Track(ctx context.Context, event string, payload map[string]interface{})
}

// NoOp is a Tracker stub.
type NoOp struct{}

var _ Tracker = NoOp{}

// Track discards the event.
func (NoOp) Track(ctx context.Context, event string, payload map[string]interface{}) {}

// Event is a recorded telemetry event.
type Event struct {
	Name    string
	Payload map[string]interface{}
}

// Recorder is a Tracker that collects events in memory, for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

var _ Tracker = &Recorder{}

// Track stores the event.
func (r *Recorder) Track(ctx context.Context, event string, payload map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, Event{Name: event, Payload: payload})
}

// Events returns a copy of recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]Event, len(r.events))
	copy(res, r.events)

	return res
}

// Count returns the number of recorded events with a given name.
func (r *Recorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0

	for _, e := range r.events {
		if e.Name == name {
			n++
		}
	}

	return n
}
