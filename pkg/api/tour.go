package api

import (
	"sort"
	"time"
)

// TourState represents the lifecycle state of a running tour instance.
type TourState string

const (
	StateIdle      TourState = "IDLE"
	StateRunning   TourState = "RUNNING"
	StatePaused    TourState = "PAUSED"
	StateCompleted TourState = "COMPLETED"
)

// ProgressStatus is the persisted per-step status for one client.
type ProgressStatus string

const (
	StatusPending   ProgressStatus = "pending"
	StatusCompleted ProgressStatus = "completed"
	StatusSkipped   ProgressStatus = "skipped"
)

// TargetType says whether a step is anchored to a page element or rendered
// as a standalone modal.
type TargetType string

const (
	TargetPage  TargetType = "page"
	TargetModal TargetType = "modal"
)

// ActionType identifies the automated DOM interaction an Action performs.
type ActionType string

const (
	ActionClick     ActionType = "click"
	ActionInput     ActionType = "input"
	ActionScroll    ActionType = "scroll"
	ActionWait      ActionType = "wait"
	ActionHighlight ActionType = "highlight"
	ActionOpenModal ActionType = "open_modal"
	ActionRedirect  ActionType = "redirect"
)

// ConditionType identifies how a Branch condition is evaluated.
type ConditionType string

const (
	ConditionClick    ConditionType = "click"
	ConditionSelector ConditionType = "selector"
	ConditionCustom   ConditionType = "custom"
)

// Configuration is one published tour: ordered steps plus a global theme.
type Configuration struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Theme Theme  `json:"theme"`
	Steps []Step `json:"steps"`
}

// Step is one unit of a tour, optionally tied to a DOM target.
//
// Order is unique per configuration and mutable via reorder. An empty
// DefaultNextStepID means "fall through to order+1" when no branch matches.
type Step struct {
	ID           string `json:"id"`
	Order        int    `json:"order"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Instructions string `json:"instructions,omitempty"`
	Tips         string `json:"tips,omitempty"`
	Image        string `json:"image,omitempty"`

	TargetType     TargetType `json:"target_type"`
	TargetSelector string     `json:"target_selector,omitempty"`

	IsRequired        bool   `json:"is_required"`
	IsBranchPoint     bool   `json:"is_branch_point"`
	DefaultNextStepID string `json:"default_next_step_id,omitempty"`
	ShowNextButton    bool   `json:"show_next_button"`

	// Theme, when non-nil, overrides the configuration theme for this
	// step only (merged field by field, never replaced wholesale).
	Theme *ThemeOverride `json:"theme_override,omitempty"`

	Actions  []Action `json:"actions,omitempty"`
	Branches []Branch `json:"branches,omitempty"`
}

// Action is one automated DOM interaction executed as part of a step.
// Actions execute strictly in ascending Order within their step.
type Action struct {
	ID     string     `json:"id"`
	StepID string     `json:"step_id"`
	Order  int        `json:"order"`
	Type   ActionType `json:"action_type"`

	// Pre-conditions applicable to any action type.
	WaitForElement  bool `json:"wait_for_element"`
	ScrollToElement bool `json:"scroll_to_element"`

	Selector string `json:"selector,omitempty"`

	// input
	Value     string `json:"value,omitempty"`
	InputType string `json:"input_type,omitempty"`

	// wait / inter-action delay
	DelayMs int `json:"delay_ms,omitempty"`

	// scroll
	ScrollBehavior string `json:"scroll_behavior,omitempty"` // smooth | auto
	ScrollPosition string `json:"scroll_position,omitempty"` // start | center | end

	// highlight
	HighlightColor      string    `json:"highlight_color,omitempty"`
	HighlightDurationMs int       `json:"highlight_duration_ms,omitempty"`
	HighlightAnimation  Animation `json:"highlight_animation,omitempty"`

	// redirect
	RedirectURL         string `json:"redirect_url,omitempty"`
	RedirectType        string `json:"redirect_type,omitempty"` // push | replace | full
	RedirectDelayMs     int    `json:"redirect_delay_ms,omitempty"`
	RedirectWaitForLoad bool   `json:"redirect_wait_for_load,omitempty"`
}

// Branch is a conditional edge from a branch-point step to another step.
// An empty NextStepID means the branch is a no-op: the step stays pending.
type Branch struct {
	ID             string        `json:"id"`
	StepID         string        `json:"step_id"`
	ConditionType  ConditionType `json:"condition_type"`
	ConditionValue string        `json:"condition_value,omitempty"`
	ConditionLabel string        `json:"condition_label"`
	NextStepID     string        `json:"next_step_id,omitempty"`
	Order          int           `json:"branch_order"`
}

// ProgressEntry is the persisted completion/skip status of one step for one
// client. Later writes overwrite earlier ones; there is no history.
type ProgressEntry struct {
	ClientID        string         `json:"client_id"`
	ConfigurationID string         `json:"configuration_id"`
	StepID          string         `json:"step_id"`
	Status          ProgressStatus `json:"status"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	SkippedAt       *time.Time     `json:"skipped_at,omitempty"`
}

// ProgressMap holds the non-pending entries for one (client, configuration)
// pair, keyed by step ID. Absent steps are pending.
type ProgressMap map[string]ProgressEntry

// BranchChoice records which branch a client took at a branch point, so the
// resolution replays idempotently on reload.
type BranchChoice struct {
	ClientID        string    `json:"client_id"`
	ConfigurationID string    `json:"configuration_id"`
	StepID          string    `json:"step_id"`
	BranchID        string    `json:"branch_id"`
	ChosenAt        time.Time `json:"chosen_at"`
}

// Summary is the aggregate progress of a tour for one client.
// Percentage is completed/total rounded to the nearest integer.
type Summary struct {
	Completed  int `json:"completed"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// StepVisibility is the projection of one step's reachability given the
// branch choices recorded so far.
type StepVisibility struct {
	StepID string `json:"step_id"`
	Index  int    `json:"index"`

	// Visible means the step is reachable without further branch choices.
	Visible bool `json:"visible"`

	// Locked means the step exists but sits behind an unresolved branch
	// point. LockedBehind names that branch-point step.
	Locked       bool   `json:"locked"`
	LockedBehind string `json:"locked_behind,omitempty"`
}

// StepByID returns the step with the given ID, if any.
func (c *Configuration) StepByID(id string) (Step, bool) {
	for _, s := range c.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// StepIndex returns the slice index of the step with the given ID, or -1.
func (c *Configuration) StepIndex(id string) int {
	for i, s := range c.Steps {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// SortSteps orders steps by ordinal position and each step's actions and
// branches by their own order fields. Stores return rows pre-sorted; this
// exists for configurations assembled by hand or decoded from JSON/YAML.
func (c *Configuration) SortSteps() {
	sort.SliceStable(c.Steps, func(i, j int) bool { return c.Steps[i].Order < c.Steps[j].Order })
	for i := range c.Steps {
		step := &c.Steps[i]
		sort.SliceStable(step.Actions, func(a, b int) bool { return step.Actions[a].Order < step.Actions[b].Order })
		sort.SliceStable(step.Branches, func(a, b int) bool { return step.Branches[a].Order < step.Branches[b].Order })
	}
}
