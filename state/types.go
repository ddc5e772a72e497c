package state

import (
	"net/netip"
	"time"
)

type NodeId string
type AreaId string

// --- Interface Table -------------------------------------------------------

type Network struct {
	Addr       netip.Addr
	PrefixLen  int
}

func (n Network) Prefix() netip.Prefix {
	return netip.PrefixFrom(n.Addr, n.PrefixLen)
}

// BackoffState tracks flap-damping for one interface. It is a pure data
// structure; the state transition function lives in core/backoff.go so it
// can be unit tested without a dispatcher.
type BackoffState struct {
	BackoffRemaining time.Duration
	LastEventTime    time.Time
	// NextInterval is the interval that would be applied to the *next*
	// flap, i.e. the exponential backoff cursor.
	NextInterval time.Duration
}

// Interface is the Interface Table's per-interface record. It is created on
// first observation from a kernel event and retained after link-down so
// that BackoffState survives.
type Interface struct {
	Name    string
	Index   int
	Up      bool
	Weight  int
	Addrs   map[netip.Prefix]Network
	Backoff BackoffState
}

// Active reports whether the interface currently participates, per the
// invariant in spec §3: up AND no remaining backoff.
func (i *Interface) Active() bool {
	return i.Up && i.Backoff.BackoffRemaining <= 0
}

// --- Adjacency Table ---------------------------------------------------

type AdjacencyKey struct {
	RemoteNode   NodeId
	LocalIface   string
}

type PeerEndpoint struct {
	KvCmdUrl   string
	PeerAddr   string
	ThriftPort int
}

// Equal implements the "spec equality" comparator from spec §9 Open
// Question 3: structural equality on {cmdUrl, peerAddr, thriftPort}.
func (e PeerEndpoint) Equal(o PeerEndpoint) bool {
	return e.KvCmdUrl == o.KvCmdUrl && e.PeerAddr == o.PeerAddr && e.ThriftPort == o.ThriftPort
}

// AdjacencyRecord is the per-adjacency routing record published in the
// adjacency database, before area-wide override resolution is applied.
type AdjacencyRecord struct {
	NextHopV4      netip.Addr
	NextHopV6      netip.Addr
	RemoteIface    string
	Metric         uint32
	Label          uint32
	RttUs          int64
	Weight         int
	Timestamp      int64
	Overloaded     bool
}

// AdjacencyValue is the Adjacency Table's value for one AdjacencyKey.
type AdjacencyValue struct {
	Area         AreaId
	Peer         PeerEndpoint
	Adjacency    AdjacencyRecord
	IsRestarting bool
}

// --- Persistent State ----------------------------------------------------

// PersistentState is node-level overrides, serialized verbatim to the
// config store on every change (spec §3).
type PersistentState struct {
	NodeLabel           uint32
	IsOverloaded        bool
	OverloadedLinks     map[string]struct{}
	LinkMetricOverrides map[string]uint32
	AdjMetricOverrides  map[AdjacencyKey]uint32
}

func NewPersistentState() *PersistentState {
	return &PersistentState{
		OverloadedLinks:     make(map[string]struct{}),
		LinkMetricOverrides: make(map[string]uint32),
		AdjMetricOverrides:  make(map[AdjacencyKey]uint32),
	}
}

// --- KvStore peers ---------------------------------------------------------

type KvStorePeerValue struct {
	Peer          PeerEndpoint
	InitialSynced bool
}

// --- Inbound event streams (spec §6) --------------------------------------

type NeighborEventType int

const (
	NeighborUp NeighborEventType = iota
	NeighborRestarted
	NeighborRestarting
	NeighborDown
	NeighborRttChange
)

type NeighborEventInfo struct {
	RemoteNode  NodeId
	LocalIface  string
	RemoteIface string
	V4Addr      netip.Addr
	V6Addr      netip.Addr
	RttUs       int64
	Label       uint32
	KvCmdPort   int
	ThriftPort  int
	Area        AreaId
}

type NeighborEvent struct {
	Type NeighborEventType
	Info NeighborEventInfo
}

type NetlinkEventKind int

const (
	NetlinkLink NetlinkEventKind = iota
	NetlinkAddr
)

type LinkEvent struct {
	Name  string
	Index int
	Up    bool
}

type AddrEvent struct {
	Index int
	Addr  Network
	Valid bool // false => address withdrawn
}

// NetlinkEvent is a tagged union of Link/IfAddress events, per spec §6.
type NetlinkEvent struct {
	Kind NetlinkEventKind
	Link LinkEvent
	Addr AddrEvent
}

// --- Outbound event streams ------------------------------------------------

type InterfaceInfo struct {
	Index    int
	Up       bool
	Networks []Network
}

type InterfaceDatabase struct {
	ThisNode NodeId
	Ifaces   map[string]InterfaceInfo
}

// TaggedPrefix is one redistributed interface-subnet prefix, carrying the
// tags and preference metrics the key-value-store driver needs to
// distinguish it from a learned route (spec §4.4).
type TaggedPrefix struct {
	Prefix           netip.Prefix
	Tags             []string
	PathPreference   int32
	SourcePreference int32
}

type PrefixUpdateRequest struct {
	Area     AreaId
	Prefixes []TaggedPrefix
}

type PeerUpdateRequest struct {
	Area          AreaId
	PeerAddParams map[NodeId]KvStorePeerValue
	PeerDelParams []NodeId
}

// NonEmpty reports whether this request carries any actual change, per the
// spec §6 rule that a PeerUpdateRequest is only emitted when non-empty.
func (p PeerUpdateRequest) NonEmpty() bool {
	return len(p.PeerAddParams) > 0 || len(p.PeerDelParams) > 0
}
