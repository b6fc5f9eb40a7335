package approval

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"iris/internal/constants"
	"iris/internal/logger"
	"iris/internal/rule"
	pkgerrors "iris/pkg/errors"
	"iris/pkg/metrics"
)

// RuleSource is the slice of the rule service the workflow needs: existence
// checks on submit and activation once fully approved.
type RuleSource interface {
	GetRule(ctx context.Context, id string) (*rule.Rule, error)
	EnableRule(ctx context.Context, id, changedBy string) (*rule.Rule, error)
}

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*Approval, error)
	Decide(ctx context.Context, id string, req DecideRequest) (*Approval, error)
	Get(ctx context.Context, id string) (*Approval, error)
	List(ctx context.Context, filter ListFilter) (*ListResponse, error)
}

type service struct {
	store    Store
	rules    RuleSource
	assigner AssignerPolicy
	events   *rule.EventProducer
	logger   logger.Logger
	maxLevel int
	locks    keyedMutex
}

type ServiceOption func(*service)

func WithEvents(events *rule.EventProducer) ServiceOption {
	return func(s *service) {
		s.events = events
	}
}

func WithLogger(log logger.Logger) ServiceOption {
	return func(s *service) {
		s.logger = log
	}
}

func WithMaxLevel(maxLevel int) ServiceOption {
	return func(s *service) {
		if maxLevel > 0 {
			s.maxLevel = maxLevel
		}
	}
}

func NewService(store Store, rules RuleSource, assigner AssignerPolicy, opts ...ServiceOption) Service {
	s := &service{
		store:    store,
		rules:    rules,
		assigner: assigner,
		logger:   logger.NopLogger(),
		maxLevel: constants.DefaultApprovalMaxLevel,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(id string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (s *service) Submit(ctx context.Context, req SubmitRequest) (*Approval, error) {
	if req.RuleID == "" || req.Applicant == "" {
		return nil, pkgerrors.ErrValidation.WithDetail("reason", "rule_id and applicant are required")
	}
	priority := req.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return nil, pkgerrors.ErrValidation.WithDetail("priority", string(req.Priority))
	}

	r, err := s.rules.GetRule(ctx, req.RuleID)
	if err != nil {
		return nil, asAppError(err)
	}

	approver, err := s.assigner.Assign(ctx, req.RuleID, 1)
	if err != nil {
		return nil, asAppError(err)
	}

	a := &Approval{
		ID:              uuid.New().String(),
		RuleID:          r.ID,
		RuleName:        r.Name,
		Applicant:       req.Applicant,
		ApplyTime:       time.Now(),
		Status:          StatusPending,
		ApprovalLevel:   1,
		CurrentApprover: &approver,
		ApprovalHistory: []HistoryEntry{},
		Comment:         req.Comment,
		Priority:        priority,
	}

	if err := s.store.Create(ctx, a); err != nil {
		return nil, asAppError(err)
	}

	s.refreshPendingGauge(ctx)
	return a.Clone(), nil
}

func (s *service) Decide(ctx context.Context, id string, req DecideRequest) (*Approval, error) {
	if req.Approver == "" {
		return nil, pkgerrors.ErrValidation.WithDetail("reason", "approver is required")
	}
	if !req.Action.Valid() {
		return nil, pkgerrors.ErrValidation.WithDetail("action", string(req.Action))
	}

	unlock := s.locks.lock(id)
	defer unlock()

	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, asAppError(err)
	}

	if a.Status != StatusPending {
		return nil, pkgerrors.ErrInvalidState.
			WithDetail("id", id).
			WithDetail("status", string(a.Status))
	}

	decidedLevel := a.ApprovalLevel
	a.ApprovalHistory = append(a.ApprovalHistory, HistoryEntry{
		Approver: req.Approver,
		Action:   req.Action,
		Time:     time.Now(),
		Comment:  req.Comment,
	})

	switch {
	case req.Action == DecisionRejected:
		a.Status = StatusRejected
		a.CurrentApprover = nil
	case a.ApprovalLevel >= s.maxLevel:
		a.Status = StatusApproved
		a.CurrentApprover = nil
	default:
		a.ApprovalLevel++
		next, err := s.assigner.Assign(ctx, a.RuleID, a.ApprovalLevel)
		if err != nil {
			return nil, asAppError(err)
		}
		a.CurrentApprover = &next
	}

	if err := s.store.Update(ctx, a); err != nil {
		return nil, asAppError(err)
	}

	metrics.IncApprovalDecision(string(req.Action), strconv.Itoa(decidedLevel))
	s.refreshPendingGauge(ctx)

	if a.Status == StatusApproved {
		// Final sign-off activates the rule. The decision is already terminal
		// at this point, so an activation failure cannot undo it; it is
		// reported and left for the rule API to reconcile.
		if _, err := s.rules.EnableRule(ctx, a.RuleID, req.Approver); err != nil {
			s.logger.WarnwCtx(ctx, "Failed to enable rule after final approval",
				"error", err,
				"rule_id", a.RuleID,
				"approval_id", a.ID,
			)
		}
	}
	if a.Status.Terminal() && s.events != nil {
		if err := s.events.PublishApprovalDecided(ctx, a.RuleID, string(a.Status), req.Approver); err != nil {
			s.logger.WarnwCtx(ctx, "Failed to publish approval decision event",
				"error", err,
				"rule_id", a.RuleID,
				"approval_id", a.ID,
			)
		}
	}

	return a.Clone(), nil
}

func (s *service) Get(ctx context.Context, id string) (*Approval, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, asAppError(err)
	}
	return a, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) (*ListResponse, error) {
	items, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, asAppError(err)
	}

	resp := &ListResponse{Total: total, Items: make([]*Approval, 0, len(items))}
	for i := range items {
		resp.Items = append(resp.Items, &items[i])
	}
	return resp, nil
}

func (s *service) refreshPendingGauge(ctx context.Context) {
	if count, err := s.store.CountPending(ctx); err == nil {
		metrics.SetApprovalsPending(count)
	}
}

func asAppError(err error) error {
	var appErr *pkgerrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
}
