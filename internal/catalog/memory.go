package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps entries in process memory. It enforces title uniqueness
// the same way the PostgreSQL unique index does.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*Entry
	byTitle map[string]string
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*Entry),
		byTitle: make(map[string]string),
		now:     time.Now,
	}
}

func (s *MemoryStore) FindIDByTitle(ctx context.Context, title string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTitle[title]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

func (s *MemoryStore) Insert(ctx context.Context, e *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byTitle[e.Title]; ok {
		return &DuplicateTitleError{ExistingID: id}
	}
	e.ID = uuid.NewString()
	e.CreatedAt = s.now().UTC()
	stored := *e
	s.byID[e.ID] = &stored
	s.byTitle[e.Title] = e.ID
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *e
	return &out, nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}
