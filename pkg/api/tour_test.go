package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfiguration_StepLookups(t *testing.T) {
	cfg := &Configuration{
		ID: "t",
		Steps: []Step{
			{ID: "a", Order: 1},
			{ID: "b", Order: 2},
			{ID: "c", Order: 3},
		},
	}

	s, ok := cfg.StepByID("b")
	require.True(t, ok)
	require.Equal(t, 2, s.Order)

	_, ok = cfg.StepByID("ghost")
	require.False(t, ok)

	require.Equal(t, 2, cfg.StepIndex("c"))
	require.Equal(t, -1, cfg.StepIndex("ghost"))
}

func TestConfiguration_SortSteps(t *testing.T) {
	cfg := &Configuration{
		ID: "t",
		Steps: []Step{
			{ID: "c", Order: 3},
			{
				ID: "a", Order: 1,
				Actions: []Action{
					{ID: "a2", Order: 2},
					{ID: "a1", Order: 1},
				},
				Branches: []Branch{
					{ID: "b2", Order: 2},
					{ID: "b1", Order: 1},
				},
			},
			{ID: "b", Order: 2},
		},
	}

	cfg.SortSteps()

	require.Equal(t, "a", cfg.Steps[0].ID)
	require.Equal(t, "b", cfg.Steps[1].ID)
	require.Equal(t, "c", cfg.Steps[2].ID)
	require.Equal(t, "a1", cfg.Steps[0].Actions[0].ID)
	require.Equal(t, "b1", cfg.Steps[0].Branches[0].ID)
}

func TestStep_JSONShape(t *testing.T) {
	step := Step{
		ID:             "open-menu",
		Order:          1,
		Title:          "Open the menu",
		TargetType:     TargetPage,
		TargetSelector: "#menu",
		IsRequired:     true,
		ShowNextButton: true,
		Actions: []Action{
			{ID: "a1", StepID: "open-menu", Order: 1, Type: ActionHighlight, HighlightDurationMs: 500},
		},
	}

	raw, err := json.Marshal(step)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))

	// Field names are snake_case on the wire.
	require.Equal(t, "page", m["target_type"])
	require.Equal(t, "#menu", m["target_selector"])
	require.Equal(t, true, m["is_required"])

	// Empty optionals are omitted.
	require.NotContains(t, m, "default_next_step_id")
	require.NotContains(t, m, "theme_override")

	actions := m["actions"].([]any)
	require.Equal(t, "highlight", actions[0].(map[string]any)["action_type"])
}
