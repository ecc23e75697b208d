package entry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a Store held in process memory. It backs tests and runs
// without a database file; entries are lost at shutdown.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry // keyed by ID
	byUID   map[string]string // unique id -> ID
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
		byUID:   make(map[string]string),
		now:     time.Now,
	}
}

// ExistsByUniqueID reports whether an entry with uniqueID exists.
func (s *MemoryStore) ExistsByUniqueID(_ context.Context, uniqueID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byUID[uniqueID]
	return ok, nil
}

// Create persists a new entry.
func (s *MemoryStore) Create(_ context.Context, req CreateRequest) (*Entry, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byUID[req.UniqueID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryExists, req.UniqueID)
	}

	e := &Entry{
		ID:        "ent-" + uuid.NewString(),
		UniqueID:  req.UniqueID,
		Domain:    req.Domain,
		Title:     req.Title,
		Source:    req.Source,
		Payload:   req.Payload.Clone(),
		CreatedAt: s.now().UTC(),
	}
	s.entries[e.ID] = e
	s.byUID[e.UniqueID] = e.ID
	return copyEntry(e), nil
}

// GetByID retrieves an entry by its row identifier.
func (s *MemoryStore) GetByID(_ context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return copyEntry(e), nil
}

// GetByUniqueID retrieves an entry by its unique id.
func (s *MemoryStore) GetByUniqueID(ctx context.Context, uniqueID string) (*Entry, error) {
	s.mu.RLock()
	id, ok := s.byUID[uniqueID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrEntryNotFound
	}
	return s.GetByID(ctx, id)
}

// List returns every entry, oldest first.
func (s *MemoryStore) List(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *copyEntry(e))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes an entry by ID.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	delete(s.entries, id)
	delete(s.byUID, e.UniqueID)
	return nil
}

func copyEntry(e *Entry) *Entry {
	cpy := *e
	cpy.Payload = e.Payload.Clone()
	return &cpy
}
