package tourguide

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilder_FluentDefinition(t *testing.T) {
	cfg, err := NewBuilder("onboarding", "Onboarding").
		ModalStep("welcome", "Welcome!", "Let us show you around.").
		PageStep("open-menu", "Open the menu", "#menu").
		Required().
		WithAction(Action{Type: ActionHighlight, Selector: "#menu", HighlightDurationMs: 500}).
		PageStep("pick-plan", "Pick a plan", "#plans").
		WithBranch(Branch{ConditionType: ConditionClick, ConditionValue: "#pro", NextStepID: "done", ConditionLabel: "Pro"}).
		WithBranch(Branch{ConditionType: ConditionClick, ConditionValue: "#basic", NextStepID: "done", ConditionLabel: "Basic"}).
		ModalStep("done", "All set", "Enjoy!").
		Build()
	require.NoError(t, err)

	require.Equal(t, "onboarding", cfg.ID)
	require.Len(t, cfg.Steps, 4)
	for i, s := range cfg.Steps {
		require.Equal(t, i+1, s.Order)
	}

	menu := cfg.Steps[1]
	require.True(t, menu.IsRequired)
	require.Len(t, menu.Actions, 1)
	require.Equal(t, "open-menu", menu.Actions[0].StepID)

	plan := cfg.Steps[2]
	require.True(t, plan.IsBranchPoint)
	require.Len(t, plan.Branches, 2)
	require.Equal(t, 1, plan.Branches[0].Order)
	require.Equal(t, 2, plan.Branches[1].Order)
}

func TestBuilder_ModifierBeforeStepFails(t *testing.T) {
	_, err := NewBuilder("t", "T").Required().ModalStep("s", "S", "").Build()
	require.Error(t, err)
	require.Contains(t, err.Error(), "before any step")
}

func TestBuilder_GeneratesIDs(t *testing.T) {
	cfg, err := NewBuilder("", "Unnamed").
		ModalStep("", "Step", "").
		WithAction(Action{Type: ActionWait, DelayMs: 100}).
		Build()
	require.NoError(t, err)
	require.NotEmpty(t, cfg.ID)
	require.NotEmpty(t, cfg.Steps[0].ID)
	require.NotEmpty(t, cfg.Steps[0].Actions[0].ID)
}

func TestValidateConfiguration_Errors(t *testing.T) {
	cases := []struct {
		name  string
		build func() *TourBuilder
		want  string
	}{
		{
			name:  "no steps",
			build: func() *TourBuilder { return NewBuilder("t", "T") },
			want:  "no steps",
		},
		{
			name: "duplicate step ids",
			build: func() *TourBuilder {
				return NewBuilder("t", "T").ModalStep("dup", "A", "").ModalStep("dup", "B", "")
			},
			want: "duplicate step id",
		},
		{
			name: "page step without selector",
			build: func() *TourBuilder {
				return NewBuilder("t", "T").PageStep("s", "S", "")
			},
			want: "no selector",
		},
		{
			name: "dangling default next",
			build: func() *TourBuilder {
				return NewBuilder("t", "T").ModalStep("s", "S", "").DefaultNext("ghost")
			},
			want: "does not exist",
		},
		{
			name: "dangling branch target",
			build: func() *TourBuilder {
				return NewBuilder("t", "T").ModalStep("s", "S", "").
					WithBranch(Branch{ConditionType: ConditionClick, ConditionValue: "#x", NextStepID: "ghost"})
			},
			want: "unknown step",
		},
		{
			name: "bad condition type",
			build: func() *TourBuilder {
				return NewBuilder("t", "T").ModalStep("s", "S", "").
					WithBranch(Branch{ConditionType: "psychic", NextStepID: ""})
			},
			want: "unknown condition type",
		},
		{
			name: "bad action type",
			build: func() *TourBuilder {
				return NewBuilder("t", "T").ModalStep("s", "S", "").
					WithAction(Action{Type: "teleport"})
			},
			want: "unknown type",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.build().Build()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadConfigurationYAML(t *testing.T) {
	src := `
id: onboarding
name: Onboarding
steps:
  - id: welcome
    order: 2
    title: Welcome
    target_type: modal
    show_next_button: true
  - id: open-menu
    order: 1
    title: Open the menu
    target_type: page
    target_selector: "#menu"
    is_required: true
    actions:
      - id: a1
        order: 1
        action_type: highlight
        selector: "#menu"
        highlight_duration_ms: 750
`
	cfg, err := LoadConfigurationYAML(strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, "onboarding", cfg.ID)

	// Steps come back sorted by order.
	require.Equal(t, "open-menu", cfg.Steps[0].ID)
	require.True(t, cfg.Steps[0].IsRequired)
	require.Equal(t, ActionHighlight, cfg.Steps[0].Actions[0].Type)
	require.Equal(t, 750, cfg.Steps[0].Actions[0].HighlightDurationMs)

	// Missing theme falls back to the default.
	require.Equal(t, DefaultTheme(), cfg.Theme)
}

func TestLoadConfigurationYAML_InvalidDefinitionRejected(t *testing.T) {
	_, err := LoadConfigurationYAML(strings.NewReader(`
id: broken
name: Broken
steps:
  - id: s1
    order: 1
    target_type: page
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "no selector")

	_, err = LoadConfigurationYAML(strings.NewReader(`{{not yaml`))
	require.Error(t, err)
}
