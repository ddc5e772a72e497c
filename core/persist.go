package core

import (
	"github.com/linkmond/linkmond/state"
)

// PersistModule owns Persistent State: it is loaded once at startup and
// written back on every mutation (spec §3, §4.7).
type PersistModule struct{}

func (m *PersistModule) Init(s *state.State) error {
	loaded, err := s.ConfigStore.Load(state.ConfigStoreKey)
	if err != nil {
		s.Log.Warn("failed to load persistent state, starting fresh", "error", err)
		loaded = nil
	}
	firstBoot := loaded == nil
	if firstBoot {
		loaded = state.NewPersistentState()
	}
	if loaded.OverloadedLinks == nil {
		loaded.OverloadedLinks = make(map[string]struct{})
	}
	if loaded.LinkMetricOverrides == nil {
		loaded.LinkMetricOverrides = make(map[string]uint32)
	}
	if loaded.AdjMetricOverrides == nil {
		loaded.AdjMetricOverrides = make(map[state.AdjacencyKey]uint32)
	}
	s.Persist = loaded

	// assume_drained seeds the overload bit on first boot only. Once a
	// persisted record exists, only override_drain_state may force the
	// bit again; otherwise the persisted value always wins (spec §5).
	if s.Config.OverrideDrainState || firstBoot {
		s.Persist.IsOverloaded = s.Config.AssumeDrained
	}

	return persistState(s)
}

func (m *PersistModule) Cleanup(s *state.State) error {
	return nil
}

// persistState writes the current Persistent State to the config store.
// Every Persistent State mutation in this package must be followed by a
// call to persistState so the store never drifts from the in-memory view.
func persistState(s *state.State) error {
	if err := s.ConfigStore.Store(state.ConfigStoreKey, s.Persist); err != nil {
		s.Log.Error("failed to persist state", "error", err)
		return err
	}
	return nil
}
