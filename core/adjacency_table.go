package core

import (
	"strconv"
	"time"

	"github.com/linkmond/linkmond/state"
)

// AdjacencyModule owns the Adjacency Table and reacts to the neighbor
// event queue (spec §4.2).
type AdjacencyModule struct{}

func (m *AdjacencyModule) Init(s *state.State) error {
	s.Adjacencies = state.NewAdjacencyTable()
	go neighborEventReader(s.Env)
	return nil
}

func (m *AdjacencyModule) Cleanup(s *state.State) error {
	return nil
}

func neighborEventReader(e *state.Env) {
	for {
		select {
		case ev := <-e.NeighborEvents:
			e.Dispatch(func(s *state.State) error {
				return handleNeighborEvent(s, ev)
			})
		case <-e.Context.Done():
			return
		}
	}
}

func handleNeighborEvent(s *state.State, ev state.NeighborEvent) error {
	switch ev.Type {
	case state.NeighborUp, state.NeighborRestarted:
		handleNeighborUp(s, ev.Info)
	case state.NeighborRestarting:
		handleNeighborRestarting(s, ev.Info)
	case state.NeighborDown:
		handleNeighborDown(s, ev.Info)
	case state.NeighborRttChange:
		handleRttChange(s, ev.Info)
	default:
		s.Log.Warn("unknown neighbor event type, dropping", "type", ev.Type)
	}
	return nil
}

func computeMetric(s *state.State, rttUs int64) uint32 {
	if !s.Config.UseRtt {
		return 1
	}
	m := uint32(rttUs / 100)
	if m < 1 {
		return 1
	}
	return m
}

// handleNeighborUp implements spec §4.2 UP/RESTARTED: compute metric,
// label, weight, timestamp; insert/replace; peer-advertise with the new
// peer as an upPeers hint; then throttled adjacency-advertise for all
// areas.
func handleNeighborUp(s *state.State, info state.NeighborEventInfo) {
	s.Metrics.NeighborUp.Inc()

	label := uint32(0)
	if s.Config.EnableSegmentRouting {
		label = info.Label
	}

	weight := 1
	if iface, ok := s.Ifaces.Get(info.LocalIface); ok {
		weight = iface.Weight
	}

	key := state.AdjacencyKey{RemoteNode: info.RemoteNode, LocalIface: info.LocalIface}
	peer := state.PeerEndpoint{
		KvCmdUrl:   kvCmdURL(info),
		PeerAddr:   peerAddr(info),
		ThriftPort: info.ThriftPort,
	}
	value := state.AdjacencyValue{
		Area: info.Area,
		Peer: peer,
		Adjacency: state.AdjacencyRecord{
			NextHopV4: info.V4Addr,
			NextHopV6: info.V6Addr,
			RemoteIface: info.RemoteIface,
			Metric:    computeMetric(s, info.RttUs),
			Label:     label,
			RttUs:     info.RttUs,
			Weight:    weight,
			Timestamp: time.Now().Unix(),
		},
		IsRestarting: false,
	}
	s.Adjacencies.Upsert(key, value)

	advertisePeersForArea(s, info.Area, map[state.NodeId]state.PeerEndpoint{info.RemoteNode: peer})
	scheduleDebouncedAdjacencyAdvertise(s)
}

func handleNeighborRestarting(s *state.State, info state.NeighborEventInfo) {
	s.Metrics.NeighborRestarting.Inc()
	key := state.AdjacencyKey{RemoteNode: info.RemoteNode, LocalIface: info.LocalIface}
	v, ok := s.Adjacencies.Get(key)
	if !ok {
		s.Log.Warn("RESTARTING for unknown adjacency, dropping", "remote", info.RemoteNode, "iface", info.LocalIface)
		return
	}
	v.IsRestarting = true
	// Restarting adjacencies do not contribute peers: re-advertise peers,
	// but never adjacencies (spec §4.2).
	advertisePeersForArea(s, info.Area, nil)
}

func handleNeighborDown(s *state.State, info state.NeighborEventInfo) {
	s.Metrics.NeighborDown.Inc()
	key := state.AdjacencyKey{RemoteNode: info.RemoteNode, LocalIface: info.LocalIface}
	s.Adjacencies.Delete(key)
	advertisePeersForArea(s, info.Area, nil)
	scheduleDebouncedAdjacencyAdvertise(s)
}

func handleRttChange(s *state.State, info state.NeighborEventInfo) {
	if !s.Config.UseRtt {
		return
	}
	key := state.AdjacencyKey{RemoteNode: info.RemoteNode, LocalIface: info.LocalIface}
	v, ok := s.Adjacencies.Get(key)
	if !ok {
		return
	}
	v.Adjacency.RttUs = info.RttUs
	v.Adjacency.Metric = computeMetric(s, info.RttUs)
	scheduleDebouncedAdjacencyAdvertise(s)
}

func kvCmdURL(info state.NeighborEventInfo) string {
	addr := info.V6Addr
	if !addr.IsValid() {
		addr = info.V4Addr
	}
	return "tcp://[" + addr.String() + "%" + info.LocalIface + "]:" + strconv.Itoa(info.KvCmdPort)
}

func peerAddr(info state.NeighborEventInfo) string {
	if info.V6Addr.IsValid() {
		return info.V6Addr.String()
	}
	return info.V4Addr.String()
}

// BuildAdjacencyDatabase implements the four-step algorithm of spec §4.2.
func BuildAdjacencyDatabase(s *state.State, area state.AreaId) AdjacencyDatabase {
	db := AdjacencyDatabase{
		Node:      s.Config.NodeName,
		Overload:  s.Persist.IsOverloaded,
		NodeLabel: 0,
	}
	if s.Config.EnableSegmentRouting {
		db.NodeLabel = s.Persist.NodeLabel
	}

	for key, v := range s.Adjacencies.ForArea(area) {
		if v.IsRestarting {
			continue
		}
		rec := v.Adjacency
		_, overloaded := s.Persist.OverloadedLinks[key.LocalIface]
		rec.Overloaded = overloaded

		if m, ok := s.Persist.LinkMetricOverrides[key.LocalIface]; ok {
			rec.Metric = m
		}
		if m, ok := s.Persist.AdjMetricOverrides[key]; ok {
			rec.Metric = m
		}

		db.Adjacencies = append(db.Adjacencies, NamedAdjacency{Key: key, Record: rec})
	}

	if s.Config.EnablePerfMeasurement {
		db.PerfEvent = &PerfEvent{Name: state.PerfEventAdjDbUpdated, Timestamp: time.Now()}
	}
	return db
}

// AdjacencyDatabase is the per-node, per-area document published at
// adj:<node> (spec §4.2 step 4).
type AdjacencyDatabase struct {
	Node        string           `json:"node" yaml:"node"`
	Overload    bool             `json:"overload" yaml:"overload"`
	NodeLabel   uint32           `json:"nodeLabel" yaml:"node_label"`
	Adjacencies []NamedAdjacency `json:"adjacencies" yaml:"adjacencies"`
	PerfEvent   *PerfEvent       `json:"perfEvent,omitempty" yaml:"perf_event,omitempty"`
}

type NamedAdjacency struct {
	Key    state.AdjacencyKey    `json:"key" yaml:"key"`
	Record state.AdjacencyRecord `json:"record" yaml:"record"`
}

type PerfEvent struct {
	Name      string    `json:"name" yaml:"name"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}
