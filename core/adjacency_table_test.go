package core

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkmond/linkmond/state"
)

// TestNeighborUpDownRoundTrip covers scenario S1: a neighbor UP then DOWN
// round-trip produces the expected peer-update and adjacency records.
func TestNeighborUpDownRoundTrip(t *testing.T) {
	cfg := testConfig(true, false, "0")
	s, kv := newTestState(cfg)

	up := state.NeighborEventInfo{
		RemoteNode: "B",
		LocalIface: "eth0",
		V6Addr:     netip.MustParseAddr("fe80::b"),
		RttUs:      5000,
		Area:       "0",
		KvCmdPort:  1234,
	}
	handleNeighborUp(s, up)

	req, ok := kv.lastPeerUpdate()
	require.True(t, ok)
	assert.Equal(t, state.AreaId("0"), req.Area)
	_, added := req.PeerAddParams["B"]
	assert.True(t, added)

	db := BuildAdjacencyDatabase(s, "0")
	require.Len(t, db.Adjacencies, 1)
	assert.Equal(t, uint32(50), db.Adjacencies[0].Record.Metric)
	assert.Equal(t, "eth0", db.Adjacencies[0].Key.LocalIface)

	handleNeighborDown(s, up)
	req, ok = kv.lastPeerUpdate()
	require.True(t, ok)
	assert.Contains(t, req.PeerDelParams, state.NodeId("B"))

	db = BuildAdjacencyDatabase(s, "0")
	assert.Empty(t, db.Adjacencies)
}

// TestParallelLinkTieBreak covers scenario S2: the smaller local interface
// name wins the KvStore peer endpoint.
func TestParallelLinkTieBreak(t *testing.T) {
	cfg := testConfig(false, false, "0")
	s, _ := newTestState(cfg)

	eth1 := state.NeighborEventInfo{RemoteNode: "B", LocalIface: "eth1", Area: "0", V4Addr: netip.MustParseAddr("10.0.0.1")}
	eth0 := state.NeighborEventInfo{RemoteNode: "B", LocalIface: "eth0", Area: "0", V4Addr: netip.MustParseAddr("10.0.0.2")}
	handleNeighborUp(s, eth1)
	handleNeighborUp(s, eth0)

	desired := desiredPeerSet(s, "0")
	require.Contains(t, desired, state.NodeId("B"))
	assert.Equal(t, "10.0.0.2", desired["B"].PeerAddr)

	// Taking eth0 down must re-add B with eth1's endpoint.
	handleNeighborDown(s, eth0)
	desired = desiredPeerSet(s, "0")
	require.Contains(t, desired, state.NodeId("B"))
	assert.Equal(t, "10.0.0.1", desired["B"].PeerAddr)
}

// TestRestartingExcludesFromPeersAndAdjacencyDB covers scenario S3.
func TestRestartingExcludesFromPeersAndAdjacencyDB(t *testing.T) {
	cfg := testConfig(false, false, "0")
	s, kv := newTestState(cfg)

	up := state.NeighborEventInfo{RemoteNode: "B", LocalIface: "eth0", Area: "0"}
	handleNeighborUp(s, up)
	handleNeighborRestarting(s, up)

	req, ok := kv.lastPeerUpdate()
	require.True(t, ok)
	assert.Contains(t, req.PeerDelParams, state.NodeId("B"))

	db := BuildAdjacencyDatabase(s, "0")
	assert.Empty(t, db.Adjacencies)
}

// TestMetricOverridePrecedence covers scenario S4 and invariant 3:
// adjacency-override > link-override > base.
func TestMetricOverridePrecedence(t *testing.T) {
	cfg := testConfig(false, false, "0")
	s, _ := newTestState(cfg)
	s.Ifaces.GetOrCreate("eth0")

	key := state.AdjacencyKey{RemoteNode: "B", LocalIface: "eth0"}
	s.Adjacencies.Upsert(key, state.AdjacencyValue{
		Area:      "0",
		Adjacency: state.AdjacencyRecord{Metric: 10},
	})

	db := BuildAdjacencyDatabase(s, "0")
	require.Len(t, db.Adjacencies, 1)
	assert.Equal(t, uint32(10), db.Adjacencies[0].Record.Metric)

	require.NoError(t, SetLinkMetric(s, "eth0", uptr(20)))
	db = BuildAdjacencyDatabase(s, "0")
	assert.Equal(t, uint32(20), db.Adjacencies[0].Record.Metric)

	require.NoError(t, SetAdjacencyMetric(s, "B", "eth0", uptr(30)))
	db = BuildAdjacencyDatabase(s, "0")
	assert.Equal(t, uint32(30), db.Adjacencies[0].Record.Metric)

	require.NoError(t, SetAdjacencyMetric(s, "B", "eth0", nil))
	db = BuildAdjacencyDatabase(s, "0")
	assert.Equal(t, uint32(20), db.Adjacencies[0].Record.Metric)

	require.NoError(t, SetLinkMetric(s, "eth0", nil))
	db = BuildAdjacencyDatabase(s, "0")
	assert.Equal(t, uint32(10), db.Adjacencies[0].Record.Metric)
}

// TestSetXIdempotent covers invariant 4: setX followed by the same setX
// produces no outbound advertisement (observed here as "no error, and the
// stored override is unchanged").
func TestSetXIdempotent(t *testing.T) {
	cfg := testConfig(false, false, "0")
	s, _ := newTestState(cfg)
	s.Ifaces.GetOrCreate("eth0")

	require.NoError(t, SetLinkMetric(s, "eth0", uptr(5)))
	require.NoError(t, SetLinkMetric(s, "eth0", uptr(5)))
	assert.Equal(t, uint32(5), s.Persist.LinkMetricOverrides["eth0"])
}

func uptr(v uint32) *uint32 { return &v }
