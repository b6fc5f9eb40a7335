package rule

import (
	"context"
	"sort"
	"sync"

	"iris/internal/constants"
	pkgerrors "iris/pkg/errors"
)

// Store is pure data access for rules. Version bumping and history writing
// belong to the Service, not the Store.
type Store interface {
	Create(ctx context.Context, r *Rule) error
	Get(ctx context.Context, id string) (*Rule, error)
	List(ctx context.Context, filter ListFilter) ([]Rule, int, error)
	Update(ctx context.Context, r *Rule) error
	Delete(ctx context.Context, id string) error
}

type memoryStore struct {
	mu    sync.RWMutex
	rules map[string]*Rule
}

func NewMemoryStore() Store {
	return &memoryStore{rules: make(map[string]*Rule)}
}

func (s *memoryStore) Create(ctx context.Context, r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[r.ID]; ok {
		return pkgerrors.ErrConflict.WithDetail("id", r.ID)
	}
	s.rules[r.ID] = r.Clone()
	return nil
}

func (s *memoryStore) Get(ctx context.Context, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok || r.Deleted {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	return r.Clone(), nil
}

func (s *memoryStore) List(ctx context.Context, filter ListFilter) ([]Rule, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.Deleted {
			continue
		}
		if filter.Category != "" && r.Category != filter.Category {
			continue
		}
		if filter.Enabled != nil && r.Enabled != *filter.Enabled {
			continue
		}
		matched = append(matched, r)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	start := (page - 1) * pageSize
	if start >= total {
		return []Rule{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	items := make([]Rule, 0, end-start)
	for _, r := range matched[start:end] {
		items = append(items, *r.Clone())
	}
	return items, total, nil
}

func (s *memoryStore) Update(ctx context.Context, r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rules[r.ID]
	if !ok || existing.Deleted {
		return pkgerrors.ErrNotFound.WithDetail("id", r.ID)
	}
	s.rules[r.ID] = r.Clone()
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rules[id]
	if !ok || existing.Deleted {
		return pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	existing.Deleted = true
	return nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = constants.DefaultPage
	}
	if pageSize <= 0 {
		pageSize = constants.DefaultPageSize
	}
	if pageSize > constants.MaxPageSize {
		pageSize = constants.MaxPageSize
	}
	return page, pageSize
}
