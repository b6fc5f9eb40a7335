package rule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	pkgerrors "iris/pkg/errors"
)

// HistoryStore is the append-only version log. AppendVersion marks the new
// entry active and deactivates the rule's previous active entry, so exactly
// one entry per rule carries IsActive=true.
type HistoryStore interface {
	AppendVersion(ctx context.Context, v *RuleVersion) error
	ListVersions(ctx context.Context, ruleID string) ([]RuleVersion, error)
	GetVersion(ctx context.Context, ruleID string, version int) (*RuleVersion, error)
}

type memoryHistoryStore struct {
	mu       sync.RWMutex
	versions map[string][]*RuleVersion
}

func NewMemoryHistoryStore() HistoryStore {
	return &memoryHistoryStore{versions: make(map[string][]*RuleVersion)}
}

func (s *memoryHistoryStore) AppendVersion(ctx context.Context, v *RuleVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.ChangedAt.IsZero() {
		v.ChangedAt = time.Now()
	}
	v.IsActive = true

	for _, existing := range s.versions[v.RuleID] {
		existing.IsActive = false
	}

	entry := *v
	entry.Snapshot = *v.Snapshot.Clone()
	s.versions[v.RuleID] = append(s.versions[v.RuleID], &entry)
	return nil
}

func (s *memoryHistoryStore) ListVersions(ctx context.Context, ruleID string) ([]RuleVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.versions[ruleID]
	out := make([]RuleVersion, 0, len(entries))
	for _, e := range entries {
		copied := *e
		copied.Snapshot = *e.Snapshot.Clone()
		out = append(out, copied)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (s *memoryHistoryStore) GetVersion(ctx context.Context, ruleID string, version int) (*RuleVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.versions[ruleID] {
		if e.Version == version {
			copied := *e
			copied.Snapshot = *e.Snapshot.Clone()
			return &copied, nil
		}
	}
	return nil, pkgerrors.ErrNotFound.WithDetail("rule_id", ruleID).WithDetail("version", version)
}
