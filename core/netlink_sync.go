package core

import (
	"context"
	"net/netip"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/linkmond/linkmond/state"
)

// syncRetry is reset on every successful sync and consulted only on
// failure, so it never perturbs the steady-state PlatformSyncInterval
// cadence.
var syncRetry = backoff.NewExponentialBackOff()

func configureSyncRetry(init, max time.Duration) {
	syncRetry.InitialInterval = init
	syncRetry.MaxInterval = max
	syncRetry.MaxElapsedTime = 0
	syncRetry.Reset()
}

// runInterfaceSync implements spec §4.4/§4.7: fetch the full (links,
// addresses) snapshot from the netlink transport and apply it as a
// reconciliation. On failure, retry with exponential backoff - except the
// very first failure (empty interface table), which retries immediately.
func runInterfaceSync(s *state.State) error {
	ctx, cancel := context.WithTimeout(s.Context, 10*time.Second)
	defer cancel()

	links, linkErr := s.Netlink.GetAllLinks(ctx)
	var addrs []state.AddrEvent
	var addrErr error
	if linkErr == nil {
		addrs, addrErr = s.Netlink.GetAllIfAddresses(ctx)
	}

	if linkErr != nil || addrErr != nil {
		s.Metrics.ThriftFailureGetAllLinks.Inc()
		firstFailure := len(s.Ifaces.All()) == 0
		var retryIn time.Duration
		if firstFailure {
			retryIn = 0
		} else {
			retryIn = syncRetry.NextBackOff()
		}
		s.Log.Error("interface sync failed, will retry", "link_err", linkErr, "addr_err", addrErr, "retry_in", retryIn)
		s.Env.ScheduleTask(runInterfaceSync, retryIn)
		return nil
	}

	syncRetry.Reset()
	applySyncSnapshot(s, links, addrs)
	return nil
}

// applySyncSnapshot reconciles the Interface Table against a fresh kernel
// snapshot: adds new addresses, removes addresses absent from the
// snapshot, updates index and up-bit. Interface weight is not taken from
// the snapshot and is left unchanged. Applying the same snapshot twice is
// a no-op (invariant #6).
func applySyncSnapshot(s *state.State, links []state.LinkEvent, addrs []state.AddrEvent) {
	changed := false
	seenIfaces := make(map[string]struct{}, len(links))

	for _, l := range links {
		seenIfaces[l.Name] = struct{}{}
		iface := s.Ifaces.GetOrCreate(l.Name)
		s.Ifaces.SetIndex(l.Name, l.Index)
		iface.Index = l.Index
		if iface.Up != l.Up {
			onFlap(&iface.Backoff, time.Now(), s.Config.BackoffInit, s.Config.BackoffMax)
			iface.Up = l.Up
			changed = true
		}
	}

	wantAddrs := make(map[int]map[netip.Prefix]state.Network)
	for _, a := range addrs {
		if _, ok := wantAddrs[a.Index]; !ok {
			wantAddrs[a.Index] = make(map[netip.Prefix]state.Network)
		}
		if a.Valid {
			wantAddrs[a.Index][a.Addr.Prefix()] = a.Addr
		}
	}

	for _, iface := range s.Ifaces.All() {
		want := wantAddrs[iface.Index]
		for prefix := range iface.Addrs {
			if _, ok := want[prefix]; !ok {
				delete(iface.Addrs, prefix)
				changed = true
			}
		}
		for prefix, net := range want {
			if _, ok := iface.Addrs[prefix]; !ok {
				iface.Addrs[prefix] = net
				changed = true
			}
		}
	}

	if changed {
		scheduleDebouncedInterfaceAdvertise(s)
	}
}
