package approval

import (
	"context"
	"sort"
	"sync"

	"iris/internal/constants"
	pkgerrors "iris/pkg/errors"
)

type Store interface {
	Create(ctx context.Context, a *Approval) error
	Get(ctx context.Context, id string) (*Approval, error)
	List(ctx context.Context, filter ListFilter) ([]Approval, int, error)
	Update(ctx context.Context, a *Approval) error
	CountPending(ctx context.Context) (int, error)
}

type memoryStore struct {
	mu        sync.RWMutex
	approvals map[string]*Approval
}

func NewMemoryStore() Store {
	return &memoryStore{approvals: make(map[string]*Approval)}
}

func (s *memoryStore) Create(ctx context.Context, a *Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.approvals[a.ID]; ok {
		return pkgerrors.ErrConflict.WithDetail("id", a.ID)
	}
	s.approvals[a.ID] = a.Clone()
	return nil
}

func (s *memoryStore) Get(ctx context.Context, id string) (*Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.approvals[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	return a.Clone(), nil
}

func (s *memoryStore) List(ctx context.Context, filter ListFilter) ([]Approval, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*Approval, 0, len(s.approvals))
	for _, a := range s.approvals {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.RuleID != "" && a.RuleID != filter.RuleID {
			continue
		}
		matched = append(matched, a)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ApplyTime.After(matched[j].ApplyTime)
	})

	total := len(matched)
	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	start := (page - 1) * pageSize
	if start >= total {
		return []Approval{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	items := make([]Approval, 0, end-start)
	for _, a := range matched[start:end] {
		items = append(items, *a.Clone())
	}
	return items, total, nil
}

func (s *memoryStore) Update(ctx context.Context, a *Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.approvals[a.ID]; !ok {
		return pkgerrors.ErrNotFound.WithDetail("id", a.ID)
	}
	s.approvals[a.ID] = a.Clone()
	return nil
}

func (s *memoryStore) CountPending(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, a := range s.approvals {
		if a.Status == StatusPending {
			count++
		}
	}
	return count, nil
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
