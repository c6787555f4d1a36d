// Package persistence stores tour configurations and runtime progress.
//
// Authoring entities (configurations, steps, actions, branches) are owned by
// the configuration; progress and branch choices are runtime entities owned
// by the (client, configuration) pair and are overwrite-only, never required
// referentially by the authoring side.
package persistence

import (
	"context"
	"errors"

	"github.com/jkallio/tourguide/pkg/api"
)

var (
	// ErrConfigurationNotFound is returned when a configuration is not found.
	ErrConfigurationNotFound = errors.New("configuration not found")

	// ErrStepNotFound is returned when a step is not found.
	ErrStepNotFound = errors.New("step not found")
)

// ConfigurationStore handles storage of tour definitions.
type ConfigurationStore interface {
	SaveConfiguration(ctx context.Context, cfg *api.Configuration) error
	GetConfiguration(ctx context.Context, id string) (*api.Configuration, error)
	ListConfigurations(ctx context.Context) ([]*api.Configuration, error)
	DeleteConfiguration(ctx context.Context, id string) error

	// DeleteStep removes one step and cascades to its actions and
	// branches. Remaining steps keep their relative order.
	DeleteStep(ctx context.Context, configID, stepID string) error

	// ReorderSteps renumbers the configuration's steps to match the
	// given ID order, atomically. Every existing step must appear
	// exactly once.
	ReorderSteps(ctx context.Context, configID string, orderedStepIDs []string) error
}

// ProgressStore handles per-client step status.
type ProgressStore interface {
	// SaveProgress upserts one entry. Last write wins, no history.
	SaveProgress(ctx context.Context, entry api.ProgressEntry) error

	// LoadProgress returns the non-pending entries for the pair.
	LoadProgress(ctx context.Context, clientID, configID string) (api.ProgressMap, error)

	// ReplaceProgress swaps the pair's cached entries wholesale. Used
	// when server state wins over the local cache on load.
	ReplaceProgress(ctx context.Context, clientID, configID string, entries api.ProgressMap) error

	// ResetProgress deletes entries for the given steps, or all entries
	// for the pair when stepIDs is empty.
	ResetProgress(ctx context.Context, clientID, configID string, stepIDs []string) error
}

// ChoiceStore records resolved branch choices for replay.
type ChoiceStore interface {
	SaveChoice(ctx context.Context, choice api.BranchChoice) error
	LoadChoices(ctx context.Context, clientID, configID string) (map[string]api.BranchChoice, error)
	// DeleteChoices removes choices for the given steps, or all for the
	// pair when stepIDs is empty.
	DeleteChoices(ctx context.Context, clientID, configID string, stepIDs []string) error
}

// EventStore is an append-only history store for tour lifecycle events.
type EventStore interface {
	AppendEvent(ctx context.Context, ev api.TourEvent) error
	ListEvents(ctx context.Context, clientID, configID string) ([]api.TourEvent, error)
}

// NoopEventStore discards all events.
type NoopEventStore struct{}

func (NoopEventStore) AppendEvent(ctx context.Context, ev api.TourEvent) error { return nil }
func (NoopEventStore) ListEvents(ctx context.Context, clientID, configID string) ([]api.TourEvent, error) {
	return nil, nil
}

// Persistence bundles the store interfaces so the engine can depend on a
// single abstraction.
type Persistence struct {
	Configurations ConfigurationStore
	Progress       ProgressStore
	Choices        ChoiceStore
	Events         EventStore
}
