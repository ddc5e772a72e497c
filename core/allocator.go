package core

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/linkmond/linkmond/state"
)

// AllocatorModule runs one Range Allocator per area with segment routing
// enabled (spec §4.5): it proposes a candidate label and accepts it once
// no higher-priority challenger has proposed the same value for a full
// settling interval.
type AllocatorModule struct{}

func (m *AllocatorModule) Init(s *state.State) error {
	if !s.Config.EnableSegmentRouting {
		return nil
	}
	s.Allocators = make(map[state.AreaId]*state.AllocatorState)
	priority := randomPriority()

	for i := range s.Config.Areas {
		area := s.Config.Areas[i].Area
		alloc := &state.AllocatorState{
			Area:       area,
			RangeLow:   s.Config.SrRangeLow,
			RangeHigh:  s.Config.SrRangeHigh,
			Priority:   priority,
			OnAcquire: func(s *state.State, label uint32) {
				s.Persist.NodeLabel = label
				_ = persistState(s)
				scheduleDebouncedAdjacencyAdvertise(s)
			},
		}
		s.Allocators[area] = alloc

		// Start is deferred by the adjacency-hold duration (spec §4.5).
		s.Env.ScheduleTask(func(s *state.State) error {
			return startAllocator(s, area)
		}, s.Config.AdjacencyHold)
	}
	return nil
}

func (m *AllocatorModule) Cleanup(s *state.State) error {
	for area, cache := range allocatorCaches {
		cache.Stop()
		delete(allocatorCaches, area)
	}
	return nil
}

func randomPriority() uint64 {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return binary.BigEndian.Uint64(buf[:])
}

// allocatorProposal is the value stored in the settling-interval cache: one
// entry per candidate the allocator has ever proposed, keyed by value.
type allocatorProposal struct {
	priority uint64
}

// allocatorCaches holds one ttlcache per area; the cache's own eviction
// callback fires acquisition, so the settling interval *is* the cache TTL
// rather than a hand-rolled timer.
var allocatorCaches = make(map[state.AreaId]*ttlcache.Cache[uint32, allocatorProposal])

func startAllocator(s *state.State, area state.AreaId) error {
	alloc, ok := s.Allocators[area]
	if !ok || alloc.Started {
		return nil
	}
	alloc.Started = true

	cache := ttlcache.New[uint32, allocatorProposal](
		ttlcache.WithTTL[uint32, allocatorProposal](s.Config.AllocatorSettle),
	)
	allocatorCaches[area] = cache
	cache.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[uint32, allocatorProposal]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		s.Env.Dispatch(func(s *state.State) error {
			return onAllocatorSettled(s, area, item.Key(), item.Value())
		})
	})
	go cache.Start()

	return proposeNextCandidate(s, area)
}

// proposeNextCandidate scans [RangeLow, RangeHigh) for the first value this
// node has not already proposed, writes the proposal to the KV store, and
// arms its settling-interval cache entry.
func proposeNextCandidate(s *state.State, area state.AreaId) error {
	alloc, ok := s.Allocators[area]
	if !ok {
		return nil
	}
	cache := allocatorCaches[area]
	if cache == nil {
		return nil
	}

	candidate := alloc.RangeLow
	for candidate < alloc.RangeHigh {
		if cache.Get(candidate) == nil {
			break
		}
		candidate++
	}
	if candidate >= alloc.RangeHigh {
		s.Log.Error("range allocator exhausted its configured range", "area", area)
		return nil
	}

	ctx, cancel := context.WithTimeout(s.Context, 10*time.Second)
	defer cancel()
	if err := s.KVStore.ProposeLabel(ctx, area, alloc.Priority, candidate, s.Config.AllocatorSettle); err != nil {
		s.Log.Error("failed to propose label", "area", area, "error", err)
		return nil
	}
	cache.Set(candidate, allocatorProposal{priority: alloc.Priority}, ttlcache.DefaultTTL)
	return nil
}

// onAllocatorSettled fires when a proposal's settling interval expires
// without eviction by a refreshed higher-priority write. It re-checks the
// KV store's current proposal set for the same value: a higher-priority
// challenger means this node loses and must pick a new candidate;
// otherwise the value is acquired.
func onAllocatorSettled(s *state.State, area state.AreaId, value uint32, proposal allocatorProposal) error {
	alloc, ok := s.Allocators[area]
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(s.Context, 10*time.Second)
	defer cancel()
	proposals, err := s.KVStore.ReadProposals(ctx, area)
	if err != nil {
		s.Log.Error("failed to read label proposals", "area", area, "error", err)
		return proposeNextCandidate(s, area)
	}

	for _, p := range proposals {
		if p.Value == value && p.Priority > proposal.priority {
			s.Log.Info("range allocator lost arbitration, retrying", "area", area, "value", value)
			// The expired entry is already gone from the cache; put the lost
			// value back without a TTL so the next scan skips it.
			if cache := allocatorCaches[area]; cache != nil {
				cache.Set(value, proposal, ttlcache.NoTTL)
			}
			return proposeNextCandidate(s, area)
		}
	}

	if alloc.HasAccepted && alloc.Accepted == value {
		return nil
	}
	alloc.HasAccepted = true
	alloc.Accepted = value
	s.Log.Info("range allocator acquired label", "area", area, "label", value)
	if alloc.OnAcquire != nil {
		alloc.OnAcquire(s, value)
	}
	return nil
}
