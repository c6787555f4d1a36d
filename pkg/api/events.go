package api

import "time"

// EventType identifies a tour history event.
type EventType string

const (
	EventTourStarted   EventType = "tour.started"
	EventTourCompleted EventType = "tour.completed"
	EventTourReset     EventType = "tour.reset"

	EventStepChanged   EventType = "step.changed"
	EventStepCompleted EventType = "step.completed"
	EventStepSkipped   EventType = "step.skipped"

	EventActionFailed   EventType = "action.failed"
	EventBranchResolved EventType = "branch.resolved"
)

// TourEvent is a minimal append-only history record for audit/debugging.
// It is intentionally small and stable; richer history can be layered later.
type TourEvent struct {
	ClientID        string
	ConfigurationID string
	At              time.Time
	Type            EventType

	// Optional context.
	StepID    string
	StepIndex int

	// Small, human-oriented details (e.g. selector, error string).
	// Keep this low-volume: do NOT dump large payloads here.
	Detail string
}
