package tourguide

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jkallio/tourguide/pkg/api"
)

// TourBuilder provides a fluent API for defining tours:
//
//	cfg, err := tourguide.NewBuilder("onboarding", "Onboarding").
//	    ModalStep("welcome", "Welcome!", "Let us show you around.").
//	    PageStep("open-menu", "Open the menu", "#menu").
//	    Required().
//	    WithAction(tourguide.Action{Type: tourguide.ActionHighlight, Selector: "#menu"}).
//	    Build()
//
// Step modifiers (Required, DefaultNext, WithAction, WithBranch, ...) apply
// to the most recently added step.
type TourBuilder struct {
	cfg  api.Configuration
	errs []error
}

// NewBuilder creates a tour builder. An empty id gets a generated UUID.
func NewBuilder(id, name string) *TourBuilder {
	if id == "" {
		id = uuid.NewString()
	}
	return &TourBuilder{
		cfg: api.Configuration{
			ID:    id,
			Name:  name,
			Theme: api.DefaultTheme(),
			Steps: make([]api.Step, 0),
		},
	}
}

// Theme replaces the tour-wide theme.
func (b *TourBuilder) Theme(t Theme) *TourBuilder {
	b.cfg.Theme = t
	return b
}

// PageStep appends a step anchored to a page element.
func (b *TourBuilder) PageStep(id, title, selector string) *TourBuilder {
	return b.addStep(api.Step{
		ID:             id,
		Title:          title,
		TargetType:     api.TargetPage,
		TargetSelector: selector,
		ShowNextButton: true,
	})
}

// ModalStep appends a standalone modal step with no DOM target.
func (b *TourBuilder) ModalStep(id, title, description string) *TourBuilder {
	return b.addStep(api.Step{
		ID:             id,
		Title:          title,
		Description:    description,
		TargetType:     api.TargetModal,
		ShowNextButton: true,
	})
}

func (b *TourBuilder) addStep(s api.Step) *TourBuilder {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.Order = len(b.cfg.Steps) + 1
	b.cfg.Steps = append(b.cfg.Steps, s)
	return b
}

// Description sets the current step's description.
func (b *TourBuilder) Description(text string) *TourBuilder {
	return b.mutate("Description", func(s *api.Step) { s.Description = text })
}

// Instructions sets the current step's instruction text.
func (b *TourBuilder) Instructions(text string) *TourBuilder {
	return b.mutate("Instructions", func(s *api.Step) { s.Instructions = text })
}

// Required marks the current step as not skippable.
func (b *TourBuilder) Required() *TourBuilder {
	return b.mutate("Required", func(s *api.Step) { s.IsRequired = true })
}

// HideNextButton removes the Next button from the current step's UI; the
// step then advances through actions or branch conditions only.
func (b *TourBuilder) HideNextButton() *TourBuilder {
	return b.mutate("HideNextButton", func(s *api.Step) { s.ShowNextButton = false })
}

// DefaultNext sets the current step's default successor.
func (b *TourBuilder) DefaultNext(stepID string) *TourBuilder {
	return b.mutate("DefaultNext", func(s *api.Step) { s.DefaultNextStepID = stepID })
}

// StepTheme overrides the tour theme for the current step.
func (b *TourBuilder) StepTheme(o ThemeOverride) *TourBuilder {
	return b.mutate("StepTheme", func(s *api.Step) { s.Theme = &o })
}

// WithAction appends an action to the current step. Actions run in the
// order they are added.
func (b *TourBuilder) WithAction(a Action) *TourBuilder {
	return b.mutate("WithAction", func(s *api.Step) {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.StepID = s.ID
		a.Order = len(s.Actions) + 1
		s.Actions = append(s.Actions, a)
	})
}

// WithBranch appends a branch rule to the current step and marks it a
// branch point. Rules are evaluated in the order they are added.
func (b *TourBuilder) WithBranch(br Branch) *TourBuilder {
	return b.mutate("WithBranch", func(s *api.Step) {
		if br.ID == "" {
			br.ID = uuid.NewString()
		}
		br.StepID = s.ID
		br.Order = len(s.Branches) + 1
		s.IsBranchPoint = true
		s.Branches = append(s.Branches, br)
	})
}

func (b *TourBuilder) mutate(op string, fn func(*api.Step)) *TourBuilder {
	if len(b.cfg.Steps) == 0 {
		b.errs = append(b.errs, fmt.Errorf("%s called before any step was added", op))
		return b
	}
	fn(&b.cfg.Steps[len(b.cfg.Steps)-1])
	return b
}

// Build validates the definition and returns it.
func (b *TourBuilder) Build() (*Configuration, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if err := ValidateConfiguration(&b.cfg); err != nil {
		return nil, err
	}
	cfg := b.cfg
	return &cfg, nil
}

// MustBuild is like Build but panics on error. Useful for initialization
// in main().
func (b *TourBuilder) MustBuild() *Configuration {
	cfg, err := b.Build()
	if err != nil {
		panic(err)
	}
	return cfg
}

// ValidateConfiguration checks a tour definition for structural problems:
// missing steps, duplicate IDs, page steps without selectors, branch points
// without rules, and branch or default-next targets that don't exist.
func ValidateConfiguration(cfg *Configuration) error {
	if cfg.ID == "" {
		return fmt.Errorf("configuration has no id")
	}
	if len(cfg.Steps) == 0 {
		return fmt.Errorf("configuration %q has no steps", cfg.ID)
	}

	ids := make(map[string]bool, len(cfg.Steps))
	for _, s := range cfg.Steps {
		if s.ID == "" {
			return fmt.Errorf("configuration %q contains a step without an id", cfg.ID)
		}
		if ids[s.ID] {
			return fmt.Errorf("duplicate step id %q", s.ID)
		}
		ids[s.ID] = true
	}

	for _, s := range cfg.Steps {
		if s.TargetType == api.TargetPage && s.TargetSelector == "" {
			return fmt.Errorf("step %q targets the page but has no selector", s.ID)
		}
		if s.DefaultNextStepID != "" && !ids[s.DefaultNextStepID] {
			return fmt.Errorf("step %q default next %q does not exist", s.ID, s.DefaultNextStepID)
		}
		if s.IsBranchPoint && len(s.Branches) == 0 {
			return fmt.Errorf("step %q is a branch point with no branches", s.ID)
		}
		for _, br := range s.Branches {
			if br.NextStepID != "" && !ids[br.NextStepID] {
				return fmt.Errorf("branch %q of step %q targets unknown step %q", br.ID, s.ID, br.NextStepID)
			}
			switch br.ConditionType {
			case api.ConditionClick, api.ConditionSelector, api.ConditionCustom:
			default:
				return fmt.Errorf("branch %q of step %q has unknown condition type %q", br.ID, s.ID, br.ConditionType)
			}
		}
		for _, a := range s.Actions {
			switch a.Type {
			case api.ActionClick, api.ActionInput, api.ActionScroll, api.ActionWait,
				api.ActionHighlight, api.ActionOpenModal, api.ActionRedirect:
			default:
				return fmt.Errorf("action %q of step %q has unknown type %q", a.ID, s.ID, a.Type)
			}
		}
	}
	return nil
}

// LoadConfigurationYAML reads a tour definition in YAML form. Field names
// follow the JSON wire shapes (snake_case). The definition is validated
// before being returned.
func LoadConfigurationYAML(r io.Reader) (*Configuration, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	// Decode via the JSON field names so YAML and the HTTP API share one
	// schema.
	var tree any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("parse tour yaml: %w", err)
	}
	jsonBytes, err := json.Marshal(normalizeYAML(tree))
	if err != nil {
		return nil, fmt.Errorf("convert tour yaml: %w", err)
	}

	var cfg Configuration
	if err := json.Unmarshal(jsonBytes, &cfg); err != nil {
		return nil, fmt.Errorf("decode tour yaml: %w", err)
	}
	if cfg.Theme == (Theme{}) {
		cfg.Theme = DefaultTheme()
	}
	cfg.SortSteps()
	if err := ValidateConfiguration(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalizeYAML rewrites map[any]any trees (as produced by older YAML
// payloads) into map[string]any so they can be marshalled as JSON.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}
