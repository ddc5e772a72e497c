// Package impl provides the reference collaborator implementations
// (netlink transport, KV store client, config store, metrics server) that
// core.Deps wires into the dispatcher. None of it is exercised by the
// dispatcher's own correctness; it exists so `cmd` has something real to
// construct.
package impl

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/vishvananda/netlink"

	"github.com/linkmond/linkmond/state"
)

// NetlinkTransport implements state.NetlinkTransport against the host
// kernel's netlink socket, the same library the teacher pulls in
// transitively for its own link plumbing.
type NetlinkTransport struct{}

func NewNetlinkTransport() *NetlinkTransport {
	return &NetlinkTransport{}
}

func (NetlinkTransport) GetAllLinks(ctx context.Context) ([]state.LinkEvent, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("netlink link list: %w", err)
	}
	out := make([]state.LinkEvent, 0, len(links))
	for _, l := range links {
		attrs := l.Attrs()
		out = append(out, state.LinkEvent{
			Name:  attrs.Name,
			Index: attrs.Index,
			Up:    attrs.OperState == netlink.OperUp,
		})
	}
	return out, nil
}

func (NetlinkTransport) GetAllIfAddresses(ctx context.Context) ([]state.AddrEvent, error) {
	addrs, err := netlink.AddrList(nil, netlink.FAMILY_ALL)
	if err != nil {
		return nil, fmt.Errorf("netlink addr list: %w", err)
	}
	out := make([]state.AddrEvent, 0, len(addrs))
	for _, a := range addrs {
		addr, ok := netip.AddrFromSlice(a.IP)
		if !ok {
			continue
		}
		ones, _ := a.IPNet.Mask.Size()
		out = append(out, state.AddrEvent{
			Index: a.LinkIndex,
			Addr:  state.Network{Addr: addr.Unmap(), PrefixLen: ones},
			Valid: true,
		})
	}
	return out, nil
}

// Subscribe bridges netlink's own subscription channels onto a single
// state.NetlinkEvent channel, tagging each as a link or address event.
func (NetlinkTransport) Subscribe(ctx context.Context, ch chan<- state.NetlinkEvent) error {
	linkUpdates := make(chan netlink.LinkUpdate)
	done := make(chan struct{})
	if err := netlink.LinkSubscribe(linkUpdates, done); err != nil {
		return fmt.Errorf("netlink link subscribe: %w", err)
	}

	addrUpdates := make(chan netlink.AddrUpdate)
	if err := netlink.AddrSubscribe(addrUpdates, done); err != nil {
		return fmt.Errorf("netlink addr subscribe: %w", err)
	}

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-linkUpdates:
				if !ok {
					return
				}
				attrs := u.Link.Attrs()
				ch <- state.NetlinkEvent{
					Kind: state.NetlinkLink,
					Link: state.LinkEvent{Name: attrs.Name, Index: attrs.Index, Up: attrs.OperState == netlink.OperUp},
				}
			case u, ok := <-addrUpdates:
				if !ok {
					return
				}
				addr, ok := netip.AddrFromSlice(u.LinkAddress.IP)
				if !ok {
					continue
				}
				ones, _ := u.LinkAddress.Mask.Size()
				ch <- state.NetlinkEvent{
					Kind: state.NetlinkAddr,
					Addr: state.AddrEvent{
						Index: u.LinkIndex,
						Addr:  state.Network{Addr: addr.Unmap(), PrefixLen: ones},
						Valid: u.NewAddr,
					},
				}
			}
		}
	}()

	return nil
}
