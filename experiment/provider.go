package experiment

import "context"

// Provider fetches experiment definitions from the prompt management API.
//
// Implementations live in the transport layer; the engine only requires
// these two reads and wraps them with retries itself.
type Provider interface {
	// Experiment returns a definition by id.
	Experiment(ctx context.Context, id string) (*Experiment, error)

	// ActiveExperiments returns experiments attached to a prompt.
	// Empty projectID means any project.
	ActiveExperiments(ctx context.Context, promptID, projectID string) ([]Experiment, error)
}
