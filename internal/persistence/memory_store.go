package persistence

import (
	"context"
	"fmt"
	"sync"

	"github.com/jkallio/tourguide/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe implementation of all store
// interfaces backed by maps. It is the default for tests and for embeds
// that do not need durability.
type InMemoryStore struct {
	mu       sync.RWMutex
	configs  map[string]*api.Configuration
	progress map[pairKey]api.ProgressMap
	choices  map[pairKey]map[string]api.BranchChoice
	events   map[pairKey][]api.TourEvent
}

type pairKey struct {
	clientID string
	configID string
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		configs:  make(map[string]*api.Configuration),
		progress: make(map[pairKey]api.ProgressMap),
		choices:  make(map[pairKey]map[string]api.BranchChoice),
		events:   make(map[pairKey][]api.TourEvent),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ ConfigurationStore = (*InMemoryStore)(nil)

var _ ProgressStore = (*InMemoryStore)(nil)

var _ ChoiceStore = (*InMemoryStore)(nil)

var _ EventStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveConfiguration(ctx context.Context, cfg *api.Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneConfiguration(cfg)
	stored.SortSteps()
	s.configs[cfg.ID] = stored
	return nil
}

func (s *InMemoryStore) GetConfiguration(ctx context.Context, id string) (*api.Configuration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[id]
	if !ok {
		return nil, ErrConfigurationNotFound
	}
	return cloneConfiguration(cfg), nil
}

func (s *InMemoryStore) ListConfigurations(ctx context.Context) ([]*api.Configuration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*api.Configuration, 0, len(s.configs))
	for _, cfg := range s.configs {
		out = append(out, cloneConfiguration(cfg))
	}
	return out, nil
}

func (s *InMemoryStore) DeleteConfiguration(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.configs[id]; !ok {
		return ErrConfigurationNotFound
	}
	delete(s.configs, id)
	return nil
}

func (s *InMemoryStore) DeleteStep(ctx context.Context, configID, stepID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[configID]
	if !ok {
		return ErrConfigurationNotFound
	}

	idx := cfg.StepIndex(stepID)
	if idx < 0 {
		return ErrStepNotFound
	}
	// Actions and branches live on the step, so removal cascades.
	cfg.Steps = append(cfg.Steps[:idx], cfg.Steps[idx+1:]...)
	for i := range cfg.Steps {
		cfg.Steps[i].Order = i + 1
	}
	return nil
}

func (s *InMemoryStore) ReorderSteps(ctx context.Context, configID string, orderedStepIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[configID]
	if !ok {
		return ErrConfigurationNotFound
	}
	reordered, err := reorder(cfg.Steps, orderedStepIDs)
	if err != nil {
		return err
	}
	cfg.Steps = reordered
	return nil
}

func (s *InMemoryStore) SaveProgress(ctx context.Context, entry api.ProgressEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{entry.ClientID, entry.ConfigurationID}
	m, ok := s.progress[key]
	if !ok {
		m = make(api.ProgressMap)
		s.progress[key] = m
	}
	m[entry.StepID] = entry
	return nil
}

func (s *InMemoryStore) LoadProgress(ctx context.Context, clientID, configID string) (api.ProgressMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(api.ProgressMap)
	for stepID, e := range s.progress[pairKey{clientID, configID}] {
		out[stepID] = e
	}
	return out, nil
}

func (s *InMemoryStore) ReplaceProgress(ctx context.Context, clientID, configID string, entries api.ProgressMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(api.ProgressMap, len(entries))
	for stepID, e := range entries {
		m[stepID] = e
	}
	s.progress[pairKey{clientID, configID}] = m
	return nil
}

func (s *InMemoryStore) ResetProgress(ctx context.Context, clientID, configID string, stepIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{clientID, configID}
	if len(stepIDs) == 0 {
		delete(s.progress, key)
		return nil
	}
	m := s.progress[key]
	for _, id := range stepIDs {
		delete(m, id)
	}
	return nil
}

func (s *InMemoryStore) SaveChoice(ctx context.Context, choice api.BranchChoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{choice.ClientID, choice.ConfigurationID}
	m, ok := s.choices[key]
	if !ok {
		m = make(map[string]api.BranchChoice)
		s.choices[key] = m
	}
	m[choice.StepID] = choice
	return nil
}

func (s *InMemoryStore) LoadChoices(ctx context.Context, clientID, configID string) (map[string]api.BranchChoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]api.BranchChoice)
	for stepID, c := range s.choices[pairKey{clientID, configID}] {
		out[stepID] = c
	}
	return out, nil
}

func (s *InMemoryStore) DeleteChoices(ctx context.Context, clientID, configID string, stepIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{clientID, configID}
	if len(stepIDs) == 0 {
		delete(s.choices, key)
		return nil
	}
	m := s.choices[key]
	for _, id := range stepIDs {
		delete(m, id)
	}
	return nil
}

func (s *InMemoryStore) AppendEvent(ctx context.Context, ev api.TourEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{ev.ClientID, ev.ConfigurationID}
	s.events[key] = append(s.events[key], ev)
	return nil
}

func (s *InMemoryStore) ListEvents(ctx context.Context, clientID, configID string) ([]api.TourEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.events[pairKey{clientID, configID}]
	out := make([]api.TourEvent, len(src))
	copy(out, src)
	return out, nil
}

// reorder returns steps rearranged and renumbered per orderedStepIDs.
// Every existing step must appear exactly once.
func reorder(steps []api.Step, orderedStepIDs []string) ([]api.Step, error) {
	if len(orderedStepIDs) != len(steps) {
		return nil, fmt.Errorf("reorder lists %d steps, configuration has %d", len(orderedStepIDs), len(steps))
	}
	byID := make(map[string]api.Step, len(steps))
	for _, st := range steps {
		byID[st.ID] = st
	}
	out := make([]api.Step, 0, len(steps))
	for i, id := range orderedStepIDs {
		st, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("reorder references unknown or duplicate step %q", id)
		}
		delete(byID, id)
		st.Order = i + 1
		out = append(out, st)
	}
	return out, nil
}

func cloneConfiguration(cfg *api.Configuration) *api.Configuration {
	out := *cfg
	out.Steps = make([]api.Step, len(cfg.Steps))
	copy(out.Steps, cfg.Steps)
	for i := range out.Steps {
		st := &out.Steps[i]
		st.Actions = append([]api.Action(nil), st.Actions...)
		st.Branches = append([]api.Branch(nil), st.Branches...)
		if st.Theme != nil {
			t := *st.Theme
			st.Theme = &t
		}
	}
	return &out
}
