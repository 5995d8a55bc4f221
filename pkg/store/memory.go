package store

import "sync"

type memKey struct {
	channelID [32]byte
	epoch     uint32
}

// MemoryStore is an in-memory pkg/ticket.Store, used by tests and the
// local development harness in place of BboltStore.
type MemoryStore struct {
	mu   sync.Mutex
	last map[memKey]uint64
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{last: make(map[memKey]uint64)}
}

// LastIndex implements pkg/ticket.Store.
func (s *MemoryStore) LastIndex(channelID [32]byte, epoch uint32) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.last[memKey{channelID: channelID, epoch: epoch}]
	return v, ok, nil
}

// PersistIndex implements pkg/ticket.Store.
func (s *MemoryStore) PersistIndex(channelID [32]byte, epoch uint32, index uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last[memKey{channelID: channelID, epoch: epoch}] = index
	return nil
}

// ListIndexes returns every (channel, epoch) -> last index row currently
// recorded, mirroring BboltStore.ListIndexes.
func (s *MemoryStore) ListIndexes() []IndexRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]IndexRecord, 0, len(s.last))
	for k, v := range s.last {
		out = append(out, IndexRecord{ChannelID: k.channelID, Epoch: k.epoch, LastIndex: v})
	}
	return out
}
