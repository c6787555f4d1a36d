package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/jkallio/tourguide/pkg/api"
)

// stores bundles the interfaces one backend provides, so each test runs
// against every implementation.
type stores struct {
	configs  ConfigurationStore
	progress ProgressStore
	choices  ChoiceStore
	events   EventStore
}

type storeFactory func(t *testing.T) stores

func storeFactories(t *testing.T) map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) stores {
			s := NewInMemoryStore()
			return stores{configs: s, progress: s, choices: s, events: s}
		},
		"sqlite": func(t *testing.T) stores {
			db, err := sql.Open("sqlite", ":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { db.Close() })
			// modernc.org/sqlite serializes access per connection.
			db.SetMaxOpenConns(1)
			s, err := NewSQLiteStore(db)
			require.NoError(t, err)
			return stores{configs: s, progress: s, choices: s, events: s}
		},
	}
}

func sampleConfiguration() *api.Configuration {
	return &api.Configuration{
		ID:    "tour-1",
		Name:  "Onboarding",
		Theme: api.DefaultTheme(),
		Steps: []api.Step{
			{
				ID:             "s1",
				Order:          1,
				Title:          "Welcome",
				TargetType:     api.TargetModal,
				ShowNextButton: true,
				Actions: []api.Action{
					{ID: "a1", StepID: "s1", Order: 1, Type: api.ActionHighlight,
						Selector: "#hero", HighlightDurationMs: 800},
					{ID: "a2", StepID: "s1", Order: 2, Type: api.ActionWait, DelayMs: 250},
				},
			},
			{
				ID:             "s2",
				Order:          2,
				Title:          "Pick a path",
				TargetType:     api.TargetPage,
				TargetSelector: "#menu",
				IsBranchPoint:  true,
				Theme:          &api.ThemeOverride{PrimaryColor: strPtr("#ff6600")},
				Branches: []api.Branch{
					{ID: "b1", StepID: "s2", Order: 1, ConditionType: api.ConditionClick,
						ConditionValue: "#pro", ConditionLabel: "Pro", NextStepID: "s3"},
					{ID: "b2", StepID: "s2", Order: 2, ConditionType: api.ConditionSelector,
						ConditionValue: ".basic-plan", ConditionLabel: "Basic", NextStepID: "s3"},
				},
			},
			{
				ID:             "s3",
				Order:          3,
				Title:          "Done",
				TargetType:     api.TargetModal,
				ShowNextButton: true,
			},
		},
	}
}

func strPtr(s string) *string { return &s }

func TestConfigurationStore_RoundTrip(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			cfg := sampleConfiguration()
			require.NoError(t, s.configs.SaveConfiguration(ctx, cfg))

			got, err := s.configs.GetConfiguration(ctx, "tour-1")
			require.NoError(t, err)
			require.Equal(t, cfg.ID, got.ID)
			require.Equal(t, cfg.Name, got.Name)
			require.Len(t, got.Steps, 3)
			require.Equal(t, "Welcome", got.Steps[0].Title)
			require.Len(t, got.Steps[0].Actions, 2)
			require.Equal(t, api.ActionHighlight, got.Steps[0].Actions[0].Type)
			require.Equal(t, 800, got.Steps[0].Actions[0].HighlightDurationMs)
			require.Len(t, got.Steps[1].Branches, 2)
			require.Equal(t, "Pro", got.Steps[1].Branches[0].ConditionLabel)
			require.NotNil(t, got.Steps[1].Theme)
			require.Equal(t, "#ff6600", *got.Steps[1].Theme.PrimaryColor)

			list, err := s.configs.ListConfigurations(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
		})
	}
}

func TestConfigurationStore_SaveOverwrites(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			cfg := sampleConfiguration()
			require.NoError(t, s.configs.SaveConfiguration(ctx, cfg))

			cfg.Name = "Onboarding v2"
			cfg.Steps = cfg.Steps[:2]
			require.NoError(t, s.configs.SaveConfiguration(ctx, cfg))

			got, err := s.configs.GetConfiguration(ctx, "tour-1")
			require.NoError(t, err)
			require.Equal(t, "Onboarding v2", got.Name)
			require.Len(t, got.Steps, 2)
		})
	}
}

func TestConfigurationStore_NotFound(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			_, err := s.configs.GetConfiguration(ctx, "missing")
			require.ErrorIs(t, err, ErrConfigurationNotFound)
			require.ErrorIs(t, s.configs.DeleteConfiguration(ctx, "missing"), ErrConfigurationNotFound)
		})
	}
}

func TestConfigurationStore_DeleteStepCascadesAndRenumbers(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			require.NoError(t, s.configs.SaveConfiguration(ctx, sampleConfiguration()))
			require.NoError(t, s.configs.DeleteStep(ctx, "tour-1", "s2"))

			got, err := s.configs.GetConfiguration(ctx, "tour-1")
			require.NoError(t, err)
			require.Len(t, got.Steps, 2)
			require.Equal(t, "s1", got.Steps[0].ID)
			require.Equal(t, 1, got.Steps[0].Order)
			require.Equal(t, "s3", got.Steps[1].ID)
			require.Equal(t, 2, got.Steps[1].Order)
			for _, st := range got.Steps {
				require.Empty(t, st.Branches)
			}

			require.ErrorIs(t, s.configs.DeleteStep(ctx, "tour-1", "s2"), ErrStepNotFound)
		})
	}
}

func TestConfigurationStore_ReorderSteps(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			require.NoError(t, s.configs.SaveConfiguration(ctx, sampleConfiguration()))
			require.NoError(t, s.configs.ReorderSteps(ctx, "tour-1", []string{"s3", "s1", "s2"}))

			got, err := s.configs.GetConfiguration(ctx, "tour-1")
			require.NoError(t, err)
			require.Equal(t, []string{"s3", "s1", "s2"},
				[]string{got.Steps[0].ID, got.Steps[1].ID, got.Steps[2].ID})
			for i, st := range got.Steps {
				require.Equal(t, i+1, st.Order)
			}

			// Incomplete or bogus orders are rejected and change nothing.
			require.Error(t, s.configs.ReorderSteps(ctx, "tour-1", []string{"s1", "s2"}))
			require.Error(t, s.configs.ReorderSteps(ctx, "tour-1", []string{"s1", "s1", "s2"}))

			got, err = s.configs.GetConfiguration(ctx, "tour-1")
			require.NoError(t, err)
			require.Equal(t, "s3", got.Steps[0].ID)
		})
	}
}

func TestProgressStore_UpsertLastWriteWins(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			now := time.Now().Truncate(time.Millisecond)
			skipped := api.ProgressEntry{
				ClientID: "c1", ConfigurationID: "tour-1", StepID: "s1",
				Status: api.StatusSkipped, SkippedAt: &now,
			}
			require.NoError(t, s.progress.SaveProgress(ctx, skipped))

			completed := skipped
			completed.Status = api.StatusCompleted
			completed.SkippedAt = nil
			completed.CompletedAt = &now
			require.NoError(t, s.progress.SaveProgress(ctx, completed))

			m, err := s.progress.LoadProgress(ctx, "c1", "tour-1")
			require.NoError(t, err)
			require.Len(t, m, 1)
			require.Equal(t, api.StatusCompleted, m["s1"].Status)
			require.Nil(t, m["s1"].SkippedAt)
			require.NotNil(t, m["s1"].CompletedAt)
		})
	}
}

func TestProgressStore_ReplaceAndReset(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			for _, stepID := range []string{"s1", "s2", "s3"} {
				require.NoError(t, s.progress.SaveProgress(ctx, api.ProgressEntry{
					ClientID: "c1", ConfigurationID: "tour-1", StepID: stepID,
					Status: api.StatusCompleted,
				}))
			}

			// Server-wins replace drops entries the replacement lacks.
			require.NoError(t, s.progress.ReplaceProgress(ctx, "c1", "tour-1", api.ProgressMap{
				"s2": {ClientID: "c1", ConfigurationID: "tour-1", StepID: "s2", Status: api.StatusSkipped},
			}))
			m, err := s.progress.LoadProgress(ctx, "c1", "tour-1")
			require.NoError(t, err)
			require.Len(t, m, 1)
			require.Equal(t, api.StatusSkipped, m["s2"].Status)

			// Partial reset removes only the named steps.
			require.NoError(t, s.progress.ResetProgress(ctx, "c1", "tour-1", []string{"s2"}))
			m, err = s.progress.LoadProgress(ctx, "c1", "tour-1")
			require.NoError(t, err)
			require.Empty(t, m)

			// Full reset with no entries is a no-op, not an error.
			require.NoError(t, s.progress.ResetProgress(ctx, "c1", "tour-1", nil))
		})
	}
}

func TestProgressStore_IsolatedByClientAndConfiguration(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			require.NoError(t, s.progress.SaveProgress(ctx, api.ProgressEntry{
				ClientID: "c1", ConfigurationID: "tour-1", StepID: "s1", Status: api.StatusCompleted,
			}))
			require.NoError(t, s.progress.SaveProgress(ctx, api.ProgressEntry{
				ClientID: "c2", ConfigurationID: "tour-1", StepID: "s1", Status: api.StatusSkipped,
			}))

			m1, err := s.progress.LoadProgress(ctx, "c1", "tour-1")
			require.NoError(t, err)
			require.Equal(t, api.StatusCompleted, m1["s1"].Status)

			m2, err := s.progress.LoadProgress(ctx, "c2", "tour-1")
			require.NoError(t, err)
			require.Equal(t, api.StatusSkipped, m2["s1"].Status)

			other, err := s.progress.LoadProgress(ctx, "c1", "tour-2")
			require.NoError(t, err)
			require.Empty(t, other)
		})
	}
}

func TestChoiceStore_SaveLoadDelete(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			first := api.BranchChoice{
				ClientID: "c1", ConfigurationID: "tour-1", StepID: "s2",
				BranchID: "b1", ChosenAt: time.Now(),
			}
			require.NoError(t, s.choices.SaveChoice(ctx, first))

			// A later choice for the same step replaces the earlier one.
			second := first
			second.BranchID = "b2"
			require.NoError(t, s.choices.SaveChoice(ctx, second))

			m, err := s.choices.LoadChoices(ctx, "c1", "tour-1")
			require.NoError(t, err)
			require.Len(t, m, 1)
			require.Equal(t, "b2", m["s2"].BranchID)

			require.NoError(t, s.choices.DeleteChoices(ctx, "c1", "tour-1", []string{"s2"}))
			m, err = s.choices.LoadChoices(ctx, "c1", "tour-1")
			require.NoError(t, err)
			require.Empty(t, m)
		})
	}
}

func TestEventStore_AppendPreservesOrder(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			types := []api.EventType{api.EventTourStarted, api.EventStepChanged, api.EventStepCompleted}
			for i, typ := range types {
				require.NoError(t, s.events.AppendEvent(ctx, api.TourEvent{
					ClientID: "c1", ConfigurationID: "tour-1",
					At: time.Now(), Type: typ, StepID: "s1", StepIndex: i,
				}))
			}

			evs, err := s.events.ListEvents(ctx, "c1", "tour-1")
			require.NoError(t, err)
			require.Len(t, evs, 3)
			for i, ev := range evs {
				require.Equal(t, types[i], ev.Type)
				require.Equal(t, i, ev.StepIndex)
			}
		})
	}
}
