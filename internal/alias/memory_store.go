package alias

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

type memoryScope struct {
	mappings []Mapping
	folds    []Fold
	bySeq    map[string]bool
	byValue  map[string]bool
	byAlias  map[string]bool
	lastUsed time.Time
}

// MemoryStore keeps mappings for the life of the process.
type MemoryStore struct {
	mu     sync.Mutex
	scopes map[string]*memoryScope
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scopes: make(map[string]*memoryScope)}
}

func (s *MemoryStore) Load(_ context.Context, scope string) ([]Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.scopes[scope]
	if !ok {
		return nil, nil
	}
	out := make([]Mapping, len(ms.mappings))
	copy(out, ms.mappings)
	return out, nil
}

func (s *MemoryStore) scope(id string) *memoryScope {
	ms, ok := s.scopes[id]
	if !ok {
		ms = &memoryScope{
			bySeq:   make(map[string]bool),
			byValue: make(map[string]bool),
			byAlias: make(map[string]bool),
		}
		s.scopes[id] = ms
	}
	return ms
}

func (s *MemoryStore) Insert(_ context.Context, m Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := s.scope(m.ScopeID)
	seqKey := string(m.EntityType) + "\x00" + strconv.Itoa(m.Sequence)
	valueKey := string(m.EntityType) + "\x00" + m.CanonicalValue
	if ms.bySeq[seqKey] || ms.byValue[valueKey] || ms.byAlias[m.Alias] {
		return ErrScopeConflict
	}
	ms.bySeq[seqKey] = true
	ms.byValue[valueKey] = true
	ms.byAlias[m.Alias] = true
	ms.mappings = append(ms.mappings, m)
	if m.CreatedAt.After(ms.lastUsed) {
		ms.lastUsed = m.CreatedAt
	}
	return nil
}

func (s *MemoryStore) LoadFolds(_ context.Context, scope string) ([]Fold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.scopes[scope]
	if !ok {
		return nil, nil
	}
	out := make([]Fold, len(ms.folds))
	copy(out, ms.folds)
	return out, nil
}

func (s *MemoryStore) InsertFold(_ context.Context, f Fold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.scopes[f.ScopeID]
	if !ok || !ms.byAlias[f.Alias] {
		return fmt.Errorf("%w: fold onto unknown alias %s in scope %s", ErrScopeConflict, f.Alias, f.ScopeID)
	}
	valueKey := string(f.EntityType) + "\x00" + f.CanonicalValue
	if ms.byValue[valueKey] {
		return ErrScopeConflict
	}
	ms.byValue[valueKey] = true
	ms.folds = append(ms.folds, f)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, scope string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.scopes[scope]
	if !ok {
		return 0, nil
	}
	delete(s.scopes, scope)
	return len(ms.mappings), nil
}

func (s *MemoryStore) Scopes(_ context.Context) ([]ScopeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScopeInfo, 0, len(s.scopes))
	for id, ms := range s.scopes {
		out = append(out, ScopeInfo{ID: id, Mappings: len(ms.mappings), LastUsed: ms.lastUsed})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Touch(_ context.Context, scope string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ms, ok := s.scopes[scope]; ok && at.After(ms.lastUsed) {
		ms.lastUsed = at
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
