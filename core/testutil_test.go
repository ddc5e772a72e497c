package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/linkmond/linkmond/state"
)

// fakeKV is a minimal state.KVClient recording every peer update and label
// proposal it receives, and the last value persisted under each key, so
// tests can assert on what would have hit the wire without a real cluster.
type fakeKV struct {
	mu sync.Mutex

	persisted map[string][]byte
	peerReqs  []state.PeerUpdateRequest
	proposals map[state.AreaId][]state.LabelProposal
}

func newFakeKV() *fakeKV {
	return &fakeKV{
		persisted: make(map[string][]byte),
		proposals: make(map[state.AreaId][]state.LabelProposal),
	}
}

func (f *fakeKV) PersistKey(ctx context.Context, area state.AreaId, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persisted[string(area)+"/"+key] = value
	return nil
}

func (f *fakeKV) AdvertisePeers(ctx context.Context, req state.PeerUpdateRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peerReqs = append(f.peerReqs, req)
	return nil
}

func (f *fakeKV) ProposeLabel(ctx context.Context, area state.AreaId, priority uint64, value uint32, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proposals[area] = append(f.proposals[area], state.LabelProposal{Priority: priority, Value: value})
	return nil
}

func (f *fakeKV) ReadProposals(ctx context.Context, area state.AreaId) ([]state.LabelProposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]state.LabelProposal(nil), f.proposals[area]...), nil
}

func (f *fakeKV) lastPeerUpdate() (state.PeerUpdateRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.peerReqs) == 0 {
		return state.PeerUpdateRequest{}, false
	}
	return f.peerReqs[len(f.peerReqs)-1], true
}

// fakeConfigStore is an in-memory state.ConfigStore.
type fakeConfigStore struct {
	mu    sync.Mutex
	saved *state.PersistentState
}

func (f *fakeConfigStore) Load(key string) (*state.PersistentState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		return nil, nil
	}
	cp := *f.saved
	return &cp, nil
}

func (f *fakeConfigStore) Store(key string, v *state.PersistentState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *v
	f.saved = &cp
	return nil
}

// fakeNetlink is an unused-but-satisfying state.NetlinkTransport for tests
// that only need a State, never actually drive interface sync.
type fakeNetlink struct{}

func (fakeNetlink) GetAllLinks(ctx context.Context) ([]state.LinkEvent, error)       { return nil, nil }
func (fakeNetlink) GetAllIfAddresses(ctx context.Context) ([]state.AddrEvent, error) { return nil, nil }
func (fakeNetlink) Subscribe(ctx context.Context, ch chan<- state.NetlinkEvent) error {
	return nil
}

// newTestState builds a State with every table initialized but no modules
// started, for unit-testing the pure handler functions directly.
func newTestState(cfg *state.Config) (*state.State, *fakeKV) {
	ctx, cancel := context.WithCancelCause(context.Background())
	kv := newFakeKV()
	s := &state.State{
		Modules:       make(map[string]state.Module),
		Ifaces:        state.NewInterfaceTable(),
		Adjacencies:   state.NewAdjacencyTable(),
		Persist:       state.NewPersistentState(),
		IfaceThrottle: &state.Throttle{},
		AdjThrottle:   make(map[state.AreaId]*state.Throttle),
		LastPeers:     make(map[state.AreaId]map[state.NodeId]state.PeerEndpoint),
		InitialSynced: make(map[state.AreaId]map[state.NodeId]bool),
		Env: &state.Env{
			DispatchChannel: make(chan func(*state.State) error, 16),
			Config:          cfg,
			Context:         ctx,
			Cancel:          cancel,
			Log:             slog.New(slog.NewTextHandler(discardWriter{}, nil)),
			Metrics:         state.NewMetrics(),
			KVStore:         kv,
			ConfigStore:     &fakeConfigStore{},
			Netlink:         fakeNetlink{},
			NeighborEvents:  make(chan state.NeighborEvent, 4),
			NetlinkEvents:   make(chan state.NetlinkEvent, 4),
			InterfaceDB:     make(chan state.InterfaceDatabase, 4),
			PrefixSync:      make(chan state.PrefixUpdateRequest, 4),
		},
	}
	return s, kv
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testConfig(useRtt, segmentRouting bool, areas ...string) *state.Config {
	cfg := &state.Config{
		NodeName:             "A",
		UseRtt:               useRtt,
		EnableSegmentRouting: segmentRouting,
		EnableV4:             true,
	}
	for _, a := range areas {
		cfg.Areas = append(cfg.Areas, state.AreaConfig{
			Area:              state.AreaId(a),
			DiscoveryRegex:    ".*",
			RedistributeRegex: "^eth",
		})
	}
	_ = state.ApplyDefaults(cfg)
	_ = state.Validate(cfg)
	return cfg
}
