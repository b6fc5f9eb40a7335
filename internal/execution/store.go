package execution

import (
	"context"
	"sort"
	"sync"
)

// LogStore is the append-only execution-log sink. Entries are never updated
// or deleted, and deleting a rule leaves its logs in place.
type LogStore interface {
	Append(ctx context.Context, log *Log) error
	List(ctx context.Context, filter LogFilter) ([]Log, error)
}

type memoryLogStore struct {
	mu   sync.RWMutex
	logs []Log
}

func NewMemoryLogStore() LogStore {
	return &memoryLogStore{}
}

func (s *memoryLogStore) Append(ctx context.Context, log *Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = append(s.logs, *log)
	return nil
}

func (s *memoryLogStore) List(ctx context.Context, filter LogFilter) ([]Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]Log, 0, len(s.logs))
	for _, l := range s.logs {
		if filter.RuleID != "" && l.RuleID != filter.RuleID {
			continue
		}
		if filter.StartDate != nil && l.ExecutionTime.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && l.ExecutionTime.After(*filter.EndDate) {
			continue
		}
		matched = append(matched, l)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ExecutionTime.After(matched[j].ExecutionTime)
	})

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}
