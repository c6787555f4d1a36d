package engine

import (
	"math"

	"github.com/jkallio/tourguide/pkg/api"
)

// ProjectVisibility computes which steps are reachable without further
// branch decisions. A branch point is unresolved when it has neither a
// recorded choice nor a completed/skipped status; every step after the
// first unresolved branch point is locked behind it.
//
// Pure function of its inputs; the engine calls it under its own lock.
func ProjectVisibility(cfg *api.Configuration, progress api.ProgressMap, choices map[string]api.BranchChoice) []api.StepVisibility {
	out := make([]api.StepVisibility, 0, len(cfg.Steps))
	lockedBehind := ""

	for i, st := range cfg.Steps {
		v := api.StepVisibility{StepID: st.ID, Index: i}
		if lockedBehind == "" {
			v.Visible = true
		} else {
			v.Locked = true
			v.LockedBehind = lockedBehind
		}
		out = append(out, v)

		if lockedBehind == "" && st.IsBranchPoint && !branchResolved(st.ID, progress, choices) {
			lockedBehind = st.ID
		}
	}
	return out
}

func branchResolved(stepID string, progress api.ProgressMap, choices map[string]api.BranchChoice) bool {
	if _, ok := choices[stepID]; ok {
		return true
	}
	e, ok := progress[stepID]
	return ok && e.Status != api.StatusPending
}

// Summarize aggregates completion over the configuration's steps.
// Percentage is rounded to the nearest integer.
func Summarize(cfg *api.Configuration, progress api.ProgressMap) api.Summary {
	s := api.Summary{Total: len(cfg.Steps)}
	for _, st := range cfg.Steps {
		if e, ok := progress[st.ID]; ok && e.Status == api.StatusCompleted {
			s.Completed++
		}
	}
	if s.Total > 0 {
		s.Percentage = int(math.Round(float64(s.Completed) / float64(s.Total) * 100))
	}
	return s
}
