package core

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/linkmond/linkmond/state"
)

// InterfaceModule owns the Interface Table: it consumes the netlink event
// queue, runs periodic interface sync, and polls flap-damping backoffs.
type InterfaceModule struct{}

func (m *InterfaceModule) Init(s *state.State) error {
	s.Ifaces = state.NewInterfaceTable()
	configureSyncRetry(s.Config.SyncRetryInit, s.Config.SyncRetryMax)

	if err := s.Netlink.Subscribe(s.Context, s.NetlinkEvents); err != nil {
		return fmt.Errorf("subscribe to netlink events: %w", err)
	}
	go netlinkEventReader(s.Env)

	s.Env.RepeatTask(pollBackoffExpiry, 1*time.Second)
	s.Env.ScheduleTask(runInterfaceSync, 0)
	s.Env.RepeatTask(runInterfaceSync, s.Config.PlatformSyncInterval)

	return nil
}

func (m *InterfaceModule) Cleanup(s *state.State) error {
	return nil
}

// netlinkEventReader bridges the netlink transport's event channel onto the
// dispatcher; it never mutates state itself (spec §5: suspension points
// never straddle a mutation).
func netlinkEventReader(e *state.Env) {
	for {
		select {
		case ev := <-e.NetlinkEvents:
			e.Dispatch(func(s *state.State) error {
				return handleNetlinkEvent(s, ev)
			})
		case <-e.Context.Done():
			return
		}
	}
}

func handleNetlinkEvent(s *state.State, ev state.NetlinkEvent) error {
	switch ev.Kind {
	case state.NetlinkLink:
		handleLinkEvent(s, ev.Link)
	case state.NetlinkAddr:
		handleAddrEvent(s, ev.Addr)
	default:
		s.Log.Warn("unknown netlink event variant, dropping", "kind", ev.Kind)
	}
	return nil
}

func handleLinkEvent(s *state.State, ev state.LinkEvent) {
	iface := s.Ifaces.GetOrCreate(ev.Name)
	s.Ifaces.SetIndex(ev.Name, ev.Index)
	iface.Index = ev.Index

	if iface.Up == ev.Up {
		return
	}

	wasActive := iface.Active()
	iface.Up = ev.Up
	onFlap(&iface.Backoff, time.Now(), s.Config.BackoffInit, s.Config.BackoffMax)

	if ev.Up {
		s.Log.Info("interface up", "iface", ev.Name)
	} else {
		s.Log.Info("interface down", "iface", ev.Name)
	}

	if wasActive != iface.Active() {
		scheduleDebouncedInterfaceAdvertise(s)
	}
}

func handleAddrEvent(s *state.State, ev state.AddrEvent) {
	iface, ok := s.Ifaces.GetByIndex(ev.Index)
	if !ok {
		s.Log.Warn("address event for unknown interface index, dropping", "index", ev.Index)
		return
	}
	prefix := ev.Addr.Prefix()
	if ev.Valid {
		iface.Addrs[prefix] = ev.Addr
	} else {
		delete(iface.Addrs, prefix)
	}
	scheduleDebouncedInterfaceAdvertise(s)
}

// pollBackoffExpiry is the periodic timer of spec §4.4: "polls interfaces
// in backoff and schedules an advertisement when any expires."
func pollBackoffExpiry(s *state.State) error {
	now := time.Now()
	anyExpired := false
	for _, iface := range s.Ifaces.All() {
		wasDamped := iface.Backoff.BackoffRemaining > 0
		stillDamped := tickBackoff(&iface.Backoff, now)
		if wasDamped && !stillDamped {
			anyExpired = true
		}
	}
	if anyExpired {
		scheduleDebouncedInterfaceAdvertise(s)
	}
	return nil
}

// relevantForDiscovery/relevantForRedistribute implement spec §4.4: "The
// interface is relevant iff any configured area's discovery/redistribution
// regex matches its name."
func relevantForDiscovery(s *state.State, ifName string) bool {
	for i := range s.Config.Areas {
		if s.Config.Areas[i].MatchesDiscovery(ifName) {
			return true
		}
	}
	return false
}

func relevantForRedistribute(area *state.AreaConfig, ifName string) bool {
	return area.MatchesRedistribute(ifName)
}

// globallyRoutableUnicast filters out loopback/link-local addresses, and
// v4 addresses when v4 is disabled, for redistribute-address advertisement
// (spec §4.4).
func globallyRoutableUnicast(p netip.Prefix, enableV4 bool) bool {
	addr := p.Addr()
	if addr.Is4() && !enableV4 {
		return false
	}
	if addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsMulticast() || !addr.IsGlobalUnicast() {
		return false
	}
	return true
}
