// Package memstore implements ports.StoragePort entirely in-process using
// patrickmn/go-cache for the TTL'd key/value half and plain maps for
// memories/connections/batch metadata/cost records. Intended for tests and
// single-process development, not production durability.
package memstore

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"memengine/internal/memengine/model"
	"memengine/internal/memengine/ports"
)

// Store is a process-local StoragePort implementation.
type Store struct {
	kv *gocache.Cache

	mu          sync.RWMutex
	memories    map[string]map[string]*model.Memory // "userId|agentId" -> id -> memory
	connections map[string][]*model.Connection       // agentId -> connections
	batches     map[string]*model.BatchMetadata
	costs       []*model.CostRecord
	evolutions  []*model.Evolution
}

// New builds an empty Store.
func New() *Store {
	return &Store{
		kv:          gocache.New(gocache.NoExpiration, time.Minute),
		memories:    make(map[string]map[string]*model.Memory),
		connections: make(map[string][]*model.Connection),
		batches:     make(map[string]*model.BatchMetadata),
	}
}

func memKey(userID, agentID string) string { return userID + "|" + agentID }

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := s.kv.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, opts ports.SetOptions) error {
	ttl := gocache.NoExpiration
	if opts.TTLSeconds > 0 {
		ttl = time.Duration(opts.TTLSeconds) * time.Second
	}
	s.kv.Set(key, value, ttl)
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	_, existed := s.kv.Get(key)
	s.kv.Delete(key)
	return existed, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range s.kv.Items() {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *Store) MemoryStore(ctx context.Context, userID, agentID string, mem *model.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memKey(userID, agentID)
	if s.memories[key] == nil {
		s.memories[key] = make(map[string]*model.Memory)
	}
	cp := *mem
	s.memories[key][mem.ID] = &cp
	return nil
}

func (s *Store) MemoryDelete(ctx context.Context, userID, agentID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memories[memKey(userID, agentID)], id)
	return nil
}

func (s *Store) MemoryGet(ctx context.Context, userID, agentID, id string) (*model.Memory, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mem, ok := s.memories[memKey(userID, agentID)][id]
	if !ok {
		return nil, false, nil
	}
	cp := *mem
	return &cp, true, nil
}

func (s *Store) MemoryList(ctx context.Context, userID, agentID string) ([]*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Memory, 0, len(s.memories[memKey(userID, agentID)]))
	for _, mem := range s.memories[memKey(userID, agentID)] {
		cp := *mem
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) ConnectionList(ctx context.Context, agentID string) ([]*model.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Connection, len(s.connections[agentID]))
	copy(out, s.connections[agentID])
	return out, nil
}

func (s *Store) ConnectionStore(ctx context.Context, agentID string, conn *model.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.connections[agentID] {
		if existing.SourceID == conn.SourceID && existing.TargetID == conn.TargetID && existing.Type == conn.Type {
			s.connections[agentID][i] = conn
			return nil
		}
	}
	s.connections[agentID] = append(s.connections[agentID], conn)
	return nil
}

func (s *Store) BatchMetadataStore(ctx context.Context, meta *model.BatchMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[meta.BatchID] = meta
	return nil
}

func (s *Store) CostRecordAppend(ctx context.Context, rec *model.CostRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.costs = append(s.costs, rec)
	return nil
}

func (s *Store) EvolutionAppend(ctx context.Context, rec *model.Evolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evolutions = append(s.evolutions, rec)
	return nil
}

// Evolutions exposes appended Evolution records for test assertions.
func (s *Store) Evolutions() []*model.Evolution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Evolution, len(s.evolutions))
	copy(out, s.evolutions)
	return out
}

// Batches exposes stored BatchMetadata for test assertions.
func (s *Store) Batches() map[string]*model.BatchMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*model.BatchMetadata, len(s.batches))
	for k, v := range s.batches {
		out[k] = v
	}
	return out
}
