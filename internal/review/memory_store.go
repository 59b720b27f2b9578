package review

import (
	"context"
	"sync"
	"time"

	"github.com/AuraquanTech/paytrust/internal/pagination"
)

// MemoryStore is an in-memory review queue for demo/test use.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Item
	order []string // insertion order, oldest first
}

// NewMemoryStore creates an empty in-memory review queue.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Item)}
}

func (s *MemoryStore) Enqueue(_ context.Context, item *Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := cloneItem(item)
	s.items[item.ID] = clone
	s.order = append(s.order, item.ID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneItem(item), nil
}

// List returns items oldest first so reviewers work the backlog in order.
// An empty status matches everything; after skips items already served.
func (s *MemoryStore) List(_ context.Context, status Status, limit int, after *pagination.Cursor) ([]*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Item, 0, limit)
	for _, id := range s.order {
		item := s.items[id]
		if status != "" && item.Status != status {
			continue
		}
		if !after.Before(item.CreatedAt, item.ID) {
			continue
		}
		result = append(result, cloneItem(item))
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) Resolve(_ context.Context, id string, res Resolution) (*Item, error) {
	if res.Status != StatusApproved && res.Status != StatusRejected {
		return nil, ErrInvalidOutcome
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if item.Status != StatusPending {
		return nil, ErrAlreadyResolved
	}

	now := time.Now()
	item.Status = res.Status
	item.ResolvedBy = res.ResolvedBy
	item.Notes = res.Notes
	item.ResolvedAt = &now
	return cloneItem(item), nil
}

func (s *MemoryStore) PendingCount(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, item := range s.items {
		if item.Status == StatusPending {
			n++
		}
	}
	return n, nil
}

func cloneItem(item *Item) *Item {
	out := *item
	out.Reasons = append([]string(nil), item.Reasons...)
	if item.ResolvedAt != nil {
		t := *item.ResolvedAt
		out.ResolvedAt = &t
	}
	return &out
}
