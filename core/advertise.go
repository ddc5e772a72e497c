package core

import (
	"context"
	"sort"
	"time"

	"github.com/gaissmai/bart"
	"github.com/goccy/go-yaml"
	"golang.org/x/sync/errgroup"

	"github.com/linkmond/linkmond/state"
)

// marshalAdjDB serializes an adjacency database the same way Persistent
// State is serialized to disk (goccy/go-yaml), so the KV store holds one
// consistent document format across the daemon.
func marshalAdjDB(db AdjacencyDatabase) ([]byte, error) {
	return yaml.Marshal(db)
}

// AdvertiseModule owns nothing by itself: the debounce timers it starts
// are rooted in state.State.IfaceThrottle/AdjThrottle and fire back onto
// the dispatcher, per spec §9 Design Notes.
type AdvertiseModule struct{}

func (m *AdvertiseModule) Init(s *state.State) error {
	return nil
}

func (m *AdvertiseModule) Cleanup(s *state.State) error {
	if s.IfaceThrottle != nil && s.IfaceThrottle.Cancel != nil {
		s.IfaceThrottle.Cancel()
	}
	for _, th := range s.AdjThrottle {
		if th.Cancel != nil {
			th.Cancel()
		}
	}
	return nil
}

// debounce arms a throttle if it is not already pending. A trigger that
// lands while Active is a no-op: the eventual fire reads State fresh, so
// coalesced triggers never lose the latest change (spec §9).
func debounce(s *state.State, th *state.Throttle, window time.Duration, fire func(*state.State) error) {
	if th.Active {
		return
	}
	th.Active = true
	th.PendingSince = time.Now()
	timer := time.AfterFunc(window, func() {
		s.Env.Dispatch(func(s *state.State) error {
			th.Active = false
			return fire(s)
		})
	})
	th.Cancel = func() { timer.Stop() }
}

func scheduleDebouncedInterfaceAdvertise(s *state.State) {
	debounce(s, s.IfaceThrottle, s.Config.ThrottleWindow, advertiseInterfacesAndPrefixes)
}

func scheduleDebouncedAdjacencyAdvertise(s *state.State) {
	for i := range s.Config.Areas {
		area := s.Config.Areas[i].Area
		th, ok := s.AdjThrottle[area]
		if !ok {
			th = &state.Throttle{}
			s.AdjThrottle[area] = th
		}
		debounce(s, th, s.Config.ThrottleWindow, func(s *state.State) error {
			return advertiseAdjacencyDatabase(s, area)
		})
	}
}

// advertiseInterfacesAndPrefixes publishes the current Interface Table as
// an InterfaceDatabase, plus one PrefixUpdateRequest per configured area;
// an area whose redistribute regex matches no interface gets a request
// with no prefixes (spec §4.4).
func advertiseInterfacesAndPrefixes(s *state.State) error {
	db := state.InterfaceDatabase{
		ThisNode: state.NodeId(s.Config.NodeName),
		Ifaces:   make(map[string]state.InterfaceInfo, len(s.Ifaces.All())),
	}
	for name, iface := range s.Ifaces.All() {
		if !relevantForDiscovery(s, name) {
			continue
		}
		info := state.InterfaceInfo{Index: iface.Index, Up: iface.Active()}
		for _, n := range iface.Addrs {
			info.Networks = append(info.Networks, n)
		}
		db.Ifaces[name] = info
	}
	select {
	case s.Env.InterfaceDB <- db:
	default:
		s.Log.Warn("interface database publish channel full, dropping snapshot")
	}

	group, gctx := errgroup.WithContext(s.Context)
	for i := range s.Config.Areas {
		area := s.Config.Areas[i]
		group.Go(func() error {
			// bart.Table dedupes prefixes contributed by more than one
			// interface (e.g. a parallel link re-advertising the same
			// /31) before they hit the wire; Get reports whether a prefix
			// was already inserted so the output slice stays unique.
			var owned bart.Table[struct{}]
			req := state.PrefixUpdateRequest{Area: area.Area}
			for name, iface := range s.Ifaces.All() {
				if !relevantForRedistribute(&area, name) {
					continue
				}
				for prefix, n := range iface.Addrs {
					if !globallyRoutableUnicast(prefix, s.Config.EnableV4) {
						continue
					}
					pfx := n.Prefix()
					if _, exists := owned.Get(pfx); exists {
						continue
					}
					owned.Insert(pfx, struct{}{})
					req.Prefixes = append(req.Prefixes, state.TaggedPrefix{
						Prefix: pfx,
						Tags: []string{
							state.PrefixTagInterfaceSubnet,
							s.Config.NodeName + ":" + name,
						},
						PathPreference:   state.DefaultPathPreference,
						SourcePreference: state.DefaultSourcePreference,
					})
				}
			}
			select {
			case s.Env.PrefixSync <- req:
			case <-gctx.Done():
				return gctx.Err()
			}
			return nil
		})
	}
	_ = group.Wait()
	return nil
}

// advertiseAdjacencyDatabase builds and publishes the adjacency database
// for a single area to the KV store at adj:<node> with the configured TTL
// (spec §4.2 step 4).
func advertiseAdjacencyDatabase(s *state.State, area state.AreaId) error {
	db := BuildAdjacencyDatabase(s, area)
	payload, err := marshalAdjDB(db)
	if err != nil {
		s.Log.Error("failed to marshal adjacency database", "area", area, "error", err)
		return nil
	}
	s.Metrics.AdvertiseAdjacencies.Inc()
	s.Metrics.Adjacencies.Set(float64(len(db.Adjacencies)))

	ctx, cancel := context.WithTimeout(s.Context, 10*time.Second)
	defer cancel()
	key := "adj:" + s.Config.NodeName
	if err := s.KVStore.PersistKey(ctx, area, key, payload, s.Config.AdjDbTTL); err != nil {
		s.Log.Error("failed to persist adjacency database", "area", area, "error", err)
	}
	return nil
}

// advertisePeersForArea diffs the desired peer set for an area against the
// last advertised one and issues a single PeerUpdateRequest (spec §4.3).
// upPeersHint carries peers freshly brought up this round: a hinted peer
// already present in desired, with an endpoint equal to the current
// record, is force re-added anyway so the driver (re)opens the session on
// neighbor-UP instead of waiting for an actual endpoint change.
func advertisePeersForArea(s *state.State, area state.AreaId, upPeersHint map[state.NodeId]state.PeerEndpoint) {
	desired := desiredPeerSet(s, area)

	last, ok := s.LastPeers[area]
	if !ok {
		last = make(map[state.NodeId]state.PeerEndpoint)
	}
	synced, ok := s.InitialSynced[area]
	if !ok {
		synced = make(map[state.NodeId]bool)
	}

	forced := make(map[state.NodeId]bool)
	for node, hintEp := range upPeersHint {
		if ep, ok := desired[node]; ok && hintEp.Equal(ep) {
			forced[node] = true
			synced[node] = true
		}
	}

	req := state.PeerUpdateRequest{
		Area:          area,
		PeerAddParams: make(map[state.NodeId]state.KvStorePeerValue),
	}
	for node, ep := range desired {
		if old, existed := last[node]; existed && old.Equal(ep) && !forced[node] {
			continue
		}
		req.PeerAddParams[node] = state.KvStorePeerValue{Peer: ep, InitialSynced: synced[node]}
	}
	for node := range last {
		if _, stillWanted := desired[node]; !stillWanted {
			req.PeerDelParams = append(req.PeerDelParams, node)
			delete(synced, node)
		}
	}
	sort.Slice(req.PeerDelParams, func(i, j int) bool { return req.PeerDelParams[i] < req.PeerDelParams[j] })

	s.LastPeers[area] = desired
	s.InitialSynced[area] = synced

	if !req.NonEmpty() {
		return
	}
	s.Metrics.AdvertiseLinks.Inc()
	ctx, cancel := context.WithTimeout(s.Context, 10*time.Second)
	defer cancel()
	if err := s.KVStore.AdvertisePeers(ctx, req); err != nil {
		s.Log.Error("failed to advertise peers", "area", area, "error", err)
	}
}

// desiredPeerSet picks, for each remote node with a live (non-restarting)
// adjacency in this area, the peer endpoint reached over the
// lexicographically smallest local interface name - the tie-break named
// in spec §4.3.
func desiredPeerSet(s *state.State, area state.AreaId) map[state.NodeId]state.PeerEndpoint {
	best := make(map[state.NodeId]string)
	out := make(map[state.NodeId]state.PeerEndpoint)
	for key, v := range s.Adjacencies.ForArea(area) {
		if v.IsRestarting {
			continue
		}
		if cur, ok := best[key.RemoteNode]; !ok || key.LocalIface < cur {
			best[key.RemoteNode] = key.LocalIface
			out[key.RemoteNode] = v.Peer
		}
	}
	return out
}
