package impl

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/linkmond/linkmond/state"
)

// KVStore is an in-memory reference implementation of state.KVClient,
// standing in for the real replicated key-value store (spec §6 treats it
// as an external collaborator). Keys persisted via PersistKey expire on
// their own TTL exactly like the real store would; label proposals use a
// second cache for the same reason the allocator does, see
// core/allocator.go.
type KVStore struct {
	persisted *ttlcache.Cache[string, []byte]
	proposals *ttlcache.Cache[string, state.LabelProposal]

	mu    sync.Mutex
	peers map[state.AreaId]state.PeerUpdateRequest
}

func NewKVStore() *KVStore {
	k := &KVStore{
		persisted: ttlcache.New[string, []byte](),
		proposals: ttlcache.New[string, state.LabelProposal](),
		peers:     make(map[state.AreaId]state.PeerUpdateRequest),
	}
	go k.persisted.Start()
	go k.proposals.Start()
	return k
}

func (k *KVStore) Stop() {
	k.persisted.Stop()
	k.proposals.Stop()
}

func persistKey(area state.AreaId, key string) string {
	return string(area) + "/" + key
}

func (k *KVStore) PersistKey(ctx context.Context, area state.AreaId, key string, value []byte, ttl time.Duration) error {
	k.persisted.Set(persistKey(area, key), value, ttl)
	return nil
}

func (k *KVStore) AdvertisePeers(ctx context.Context, req state.PeerUpdateRequest) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.peers[req.Area] = req
	return nil
}

func proposalKey(area state.AreaId, value uint32) string {
	return fmt.Sprintf("%s:%d", area, value)
}

func (k *KVStore) ProposeLabel(ctx context.Context, area state.AreaId, priority uint64, value uint32, ttl time.Duration) error {
	k.proposals.Set(proposalKey(area, value), state.LabelProposal{Priority: priority, Value: value}, ttl)
	return nil
}

func (k *KVStore) ReadProposals(ctx context.Context, area state.AreaId) ([]state.LabelProposal, error) {
	prefix := string(area) + ":"
	var out []state.LabelProposal
	for key, item := range k.proposals.Items() {
		if strings.HasPrefix(key, prefix) {
			out = append(out, item.Value())
		}
	}
	return out, nil
}
