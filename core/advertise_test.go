package core

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/linkmond/linkmond/state"
)

// TestRedistributePerArea covers scenario S6: a global-unicast address on
// eth0 is redistributed into an area whose regex matches eth0, but not into
// an area that only matches eth1.
func TestRedistributePerArea(t *testing.T) {
	cfg := testConfig(false, false, "0")
	cfg.Areas = append(cfg.Areas, state.AreaConfig{
		Area:              "1",
		DiscoveryRegex:    ".*",
		RedistributeRegex: "^eth1",
	})
	cfg.Areas[0].RedistributeRegex = "^eth0"
	require.NoError(t, state.Validate(cfg))
	s, _ := newTestState(cfg)

	iface := s.Ifaces.GetOrCreate("eth0")
	iface.Up = true
	iface.Index = 1
	pfx := netip.MustParsePrefix("2001:db8::1/64")
	iface.Addrs[pfx] = state.Network{Addr: pfx.Addr(), PrefixLen: pfx.Bits()}

	require.NoError(t, advertiseInterfacesAndPrefixes(s))

	seen := make(map[state.AreaId]state.PrefixUpdateRequest)
	for i := 0; i < len(cfg.Areas); i++ {
		select {
		case req := <-s.Env.PrefixSync:
			seen[req.Area] = req
		case <-time.After(time.Second):
			t.Fatal("expected a PrefixUpdateRequest per area")
		}
	}

	assert.Len(t, seen["0"].Prefixes, 1)
	assert.Empty(t, seen["1"].Prefixes)
}

// TestRedistributeDedupsPerArea checks that the bart.Table membership check
// suppresses a second insert of the same prefix within a single area's scan
// (e.g. two interfaces sharing an alias address).
func TestRedistributeDedupsPerArea(t *testing.T) {
	cfg := testConfig(false, false, "0")
	s, _ := newTestState(cfg)

	pfx := netip.MustParsePrefix("2001:db8::1/64")
	net := state.Network{Addr: pfx.Addr(), PrefixLen: pfx.Bits()}
	eth0 := s.Ifaces.GetOrCreate("eth0")
	eth0.Up = true
	eth0.Addrs[pfx] = net
	eth1 := s.Ifaces.GetOrCreate("eth1")
	eth1.Up = true
	eth1.Addrs[pfx] = net

	require.NoError(t, advertiseInterfacesAndPrefixes(s))

	req := <-s.Env.PrefixSync
	assert.Len(t, req.Prefixes, 1)
}

// TestApplySyncSnapshotIdempotent covers invariant 6: applying the same
// kernel snapshot twice produces no second-round advertisement.
func TestApplySyncSnapshotIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)
	cfg := testConfig(false, false, "0")
	s, _ := newTestState(cfg)

	links := []state.LinkEvent{{Name: "eth0", Index: 1, Up: true}}
	addrPfx := netip.MustParsePrefix("2001:db8::1/64")
	addrs := []state.AddrEvent{{Index: 1, Addr: state.Network{Addr: addrPfx.Addr(), PrefixLen: addrPfx.Bits()}, Valid: true}}

	applySyncSnapshot(s, links, addrs)
	require.True(t, s.IfaceThrottle.Active)
	if s.IfaceThrottle.Cancel != nil {
		s.IfaceThrottle.Cancel()
	}
	s.IfaceThrottle.Active = false // simulate the debounced fire having drained

	applySyncSnapshot(s, links, addrs)
	assert.False(t, s.IfaceThrottle.Active, "second identical snapshot must not re-trigger the throttle")
}
