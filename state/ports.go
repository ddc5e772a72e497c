package state

import (
	"context"
	"time"
)

// KVClient is the subset of the shared key-value store surface the core
// consumes (spec §6). It is an external collaborator; the reference
// implementation lives in impl/kvstore.go.
type KVClient interface {
	// PersistKey upserts key within area with the given TTL. At-least-once;
	// failures are surfaced only via counters (spec §4.7).
	PersistKey(ctx context.Context, area AreaId, key string, value []byte, ttl time.Duration) error

	// AdvertisePeers emits a peer-update message. Called only when req is
	// non-empty (spec §6).
	AdvertisePeers(ctx context.Context, req PeerUpdateRequest) error

	// ProposeLabel and ReadProposals back the Range Allocator's KvStore-mediated
	// arbitration (spec §4.5): ProposeLabel writes a well-known per-area key
	// advertising (priority, value); ReadProposals returns every
	// currently-live proposal for the area from any originator.
	ProposeLabel(ctx context.Context, area AreaId, priority uint64, value uint32, ttl time.Duration) error
	ReadProposals(ctx context.Context, area AreaId) ([]LabelProposal, error)
}

type LabelProposal struct {
	Priority uint64
	Value    uint32
}

// ConfigStore is the persistent-store surface (spec §6): load/store of the
// single "link-monitor-config" record. Out of scope to implement for real;
// impl/configstore.go provides a YAML-file-backed reference.
type ConfigStore interface {
	Load(key string) (*PersistentState, error) // nil, nil if absent
	Store(key string, v *PersistentState) error
}

// NetlinkTransport is the netlink surface (spec §6).
type NetlinkTransport interface {
	GetAllLinks(ctx context.Context) ([]LinkEvent, error)
	GetAllIfAddresses(ctx context.Context) ([]AddrEvent, error)
	// Subscribe starts delivering NetlinkEvent values to ch until ctx is
	// cancelled.
	Subscribe(ctx context.Context, ch chan<- NetlinkEvent) error
}
