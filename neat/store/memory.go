package store

import (
	"context"
	"sync"

	"github.com/baldhumanity/neat-evo/neat"
)

type memoryKey struct {
	runID      string
	generation int
}

// MemoryStore keeps encoded checkpoints in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[memoryKey][]byte
	latest memoryKey
	saved  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[memoryKey][]byte)}
}

func (s *MemoryStore) Init(context.Context) error { return nil }

func (s *MemoryStore) Save(_ context.Context, cp *neat.Checkpoint) error {
	payload, err := encode(cp)
	if err != nil {
		return err
	}
	key := memoryKey{runID: cp.RunID.String(), generation: cp.Generation}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = payload
	s.latest = key
	s.saved = true
	return nil
}

func (s *MemoryStore) Latest(context.Context) (*neat.Checkpoint, bool, error) {
	s.mu.RLock()
	payload, ok := s.data[s.latest]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return decode(payload)
}

func (s *MemoryStore) Load(_ context.Context, runID string, generation int) (*neat.Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if runID != "" {
		payload, ok := s.data[memoryKey{runID: runID, generation: generation}]
		if !ok {
			return nil, false, nil
		}
		return decode(payload)
	}
	if s.saved && s.latest.generation == generation {
		return decode(s.data[s.latest])
	}
	for key, payload := range s.data {
		if key.generation == generation {
			return decode(payload)
		}
	}
	return nil, false, nil
}

func (s *MemoryStore) Close() error { return nil }
