package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkmond/linkmond/state"
)

func TestSetInterfaceOverloadUnknownInterface(t *testing.T) {
	cfg := testConfig(false, false, "0")
	s, _ := newTestState(cfg)

	err := SetInterfaceOverload(s, "eth9", true)
	assert.Error(t, err)
}

func TestSetLinkMetricUnknownInterface(t *testing.T) {
	cfg := testConfig(false, false, "0")
	s, _ := newTestState(cfg)

	err := SetLinkMetric(s, "eth9", uptr(5))
	assert.Error(t, err)
}

func TestSetAdjacencyMetricUnknownAdjacency(t *testing.T) {
	cfg := testConfig(false, false, "0")
	s, _ := newTestState(cfg)

	err := SetAdjacencyMetric(s, "B", "eth0", uptr(5))
	assert.Error(t, err)
}

func TestSetInterfaceOverloadIdempotent(t *testing.T) {
	cfg := testConfig(false, false, "0")
	s, _ := newTestState(cfg)
	s.Ifaces.GetOrCreate("eth0")

	require.NoError(t, SetInterfaceOverload(s, "eth0", true))
	require.NoError(t, SetInterfaceOverload(s, "eth0", true))
	_, overloaded := s.Persist.OverloadedLinks["eth0"]
	assert.True(t, overloaded)

	require.NoError(t, SetInterfaceOverload(s, "eth0", false))
	require.NoError(t, SetInterfaceOverload(s, "eth0", false))
	_, overloaded = s.Persist.OverloadedLinks["eth0"]
	assert.False(t, overloaded)
}

// TestGetInterfacesSnapshot exercises the dump-links read path and pins its
// shape with a structural diff instead of field-by-field assertions.
func TestGetInterfacesSnapshot(t *testing.T) {
	cfg := testConfig(false, false, "0")
	s, _ := newTestState(cfg)
	a := s.Ifaces.GetOrCreate("eth0")
	a.Up = true
	a.Index = 2
	s.Ifaces.GetOrCreate("eth1")

	got := GetInterfaces(s)
	want := []InterfaceSnapshot{
		{Name: "eth0", Index: 2, Active: true, Weight: 1},
		{Name: "eth1", Index: 0, Active: false, Weight: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("GetInterfaces mismatch (-want +got):\n%s", diff)
	}
}

// TestGetAdjacenciesFiltersByArea exercises the dump-adjacencies area filter.
func TestGetAdjacenciesFiltersByArea(t *testing.T) {
	cfg := testConfig(false, false, "0", "1")
	s, _ := newTestState(cfg)

	s.Adjacencies.Upsert(state.AdjacencyKey{RemoteNode: "B", LocalIface: "eth0"}, state.AdjacencyValue{
		Area:      "0",
		Adjacency: state.AdjacencyRecord{Metric: 10},
	})
	s.Adjacencies.Upsert(state.AdjacencyKey{RemoteNode: "C", LocalIface: "eth1"}, state.AdjacencyValue{
		Area:      "1",
		Adjacency: state.AdjacencyRecord{Metric: 20},
	})

	got := GetAdjacencies(s, []state.AreaId{"0"})
	require.Len(t, got, 1)
	assert.Equal(t, state.NodeId("B"), got[0].Key.RemoteNode)

	all := GetAdjacencies(s, nil)
	assert.Len(t, all, 2)
}
