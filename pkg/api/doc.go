// Package api contains the core building blocks used by the tourguide
// runtime engine. It provides the data model for tours (steps, actions,
// branches, progress), the error taxonomy, and the Observer interface used
// to watch engine behavior.
//
// Most users interact with the higher-level tourguide package, which
// re-exports selected types and helpers from this package. The api package
// is intended for custom integrations or contributors extending the engine
// itself.
//
// # Data Model
//
// A Configuration is one published tour: an ordered list of Steps plus a
// global Theme. Each Step optionally targets a DOM element and carries an
// ordered list of Actions (automated DOM interactions) and, for branch
// points, a prioritized list of Branches (conditional edges to other steps).
//
// Progress is tracked per (client, configuration, step) as pending,
// completed or skipped; branch decisions are recorded as BranchChoice
// entries so a client's branch resolution replays identically on reload.
//
// # Errors
//
// Failures are partitioned by blast radius: an ElementNotFoundError is
// tolerated per action, ErrProgressSyncFailed is retried silently, and only
// ErrConfigFetchFailed is fatal to widget initialization. See the error
// declarations for the exact propagation rules.
//
// # Observability
//
// The Observer interface reports tour, step, action and branch lifecycle
// events. Ready-made implementations cover structured logging (log/slog)
// and basic in-memory counters; NewCompositeObserver combines observers
// and isolates them from each other's panics.
package api
