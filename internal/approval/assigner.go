package approval

import (
	"context"
	"strconv"
	"sync"

	"iris/internal/config"
	pkgerrors "iris/pkg/errors"
)

// AssignerPolicy picks the approver responsible for a given sign-off tier.
type AssignerPolicy interface {
	Assign(ctx context.Context, ruleID string, level int) (string, error)
}

// configAssigner rotates through the approvers configured per level.
type configAssigner struct {
	mu        sync.Mutex
	approvers map[string][]string
	cursors   map[string]int
}

func NewConfigAssigner(cfg config.ApprovalConfig) AssignerPolicy {
	return &configAssigner{
		approvers: cfg.Approvers,
		cursors:   make(map[string]int),
	}
}

func (a *configAssigner) Assign(ctx context.Context, ruleID string, level int) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := strconv.Itoa(level)
	pool := a.approvers[key]
	if len(pool) == 0 {
		return "", pkgerrors.ErrInternal.
			WithDetail("reason", "no approvers configured").
			WithDetail("level", level)
	}

	approver := pool[a.cursors[key]%len(pool)]
	a.cursors[key]++
	return approver, nil
}
