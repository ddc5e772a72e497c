// Package state holds the Link Monitor's single-owner mutable tables and
// the dispatch environment they are mutated through. Nothing outside this
// package's Env.Dispatch/DispatchWait touches a State after construction.
package state

import (
	"context"
	"log/slog"
	"time"
)

// Module is a unit of the Link Monitor that is initialized once, in the
// order modules are registered, and cleaned up once; the order of the
// Cleanup calls is not defined.
type Module interface {
	Init(s *State) error
	Cleanup(s *State) error
}

// State is owned by a single goroutine (the dispatch loop in core.mainLoop).
// Every field reachable from State must only be read or written from inside
// a function passed to Env.Dispatch/DispatchWait.
type State struct {
	*Env

	Modules map[string]Module

	Ifaces      *InterfaceTable
	Adjacencies *AdjacencyTable
	Persist     *PersistentState

	// Allocators holds one running range allocator per area with segment
	// routing enabled.
	Allocators map[AreaId]*AllocatorState

	// IfaceThrottle debounces interface/redistribute advertisement; it is
	// global because a single kernel snapshot or link event can touch
	// every area at once.
	IfaceThrottle *Throttle
	// AdjThrottle debounces adjacency-database advertisement, one per
	// area, since each area's adjacency DB is published independently.
	AdjThrottle map[AreaId]*Throttle

	// LastPeers is the last peer set advertised per area, used to diff
	// against the desired set (spec §4.3).
	LastPeers map[AreaId]map[NodeId]PeerEndpoint
	// InitialSynced tracks, per area per remote node, whether the first
	// post-restart peer advertisement has happened yet.
	InitialSynced map[AreaId]map[NodeId]bool
}

// Throttle is the debounce state of spec §9 Design Notes: "active?,
// pending-since, cancel()". A trigger while Active is a no-op; the
// pending work always reads current State when it finally runs, so
// coalesced triggers never lose data.
type Throttle struct {
	Active       bool
	PendingSince time.Time
	Cancel       func()
}

// Env is safe to read from any goroutine; it never changes after Start.
type Env struct {
	DispatchChannel chan<- func(*State) error
	Config          *Config
	Context         context.Context
	Cancel          context.CancelCauseFunc
	Log             *slog.Logger
	Metrics         *Metrics

	KVStore     KVClient
	ConfigStore ConfigStore
	Netlink     NetlinkTransport

	NeighborEvents chan NeighborEvent
	NetlinkEvents  chan NetlinkEvent

	InterfaceDB chan InterfaceDatabase
	PrefixSync  chan PrefixUpdateRequest
}

func (s *State) AreaConfig(area AreaId) (*AreaConfig, bool) {
	for i := range s.Config.Areas {
		if s.Config.Areas[i].Area == area {
			return &s.Config.Areas[i], true
		}
	}
	return nil, false
}
