package rule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"iris/internal/constants"
	"iris/internal/logger"
	pkgerrors "iris/pkg/errors"
	"iris/pkg/metrics"
	"iris/pkg/models"
)

type Service interface {
	CreateRule(ctx context.Context, req CreateRuleRequest) (*Rule, error)
	ListRules(ctx context.Context, filter ListFilter) (*ListRulesResponse, error)
	GetRule(ctx context.Context, id string) (*Rule, error)
	UpdateRule(ctx context.Context, id string, req UpdateRuleRequest) (*Rule, error)
	DeleteRule(ctx context.Context, id string) error
	GetRuleHistory(ctx context.Context, id string) ([]RuleVersion, error)
	Rollback(ctx context.Context, id string, req RollbackRequest) (*Rule, error)
	EnableRule(ctx context.Context, id, changedBy string) (*Rule, error)
}

type service struct {
	store   Store
	history HistoryStore
	events  *EventProducer
	logger  logger.Logger
	locks   keyedMutex
}

type ServiceOption func(*service)

func WithEvents(events *EventProducer) ServiceOption {
	return func(s *service) {
		s.events = events
	}
}

func WithLogger(log logger.Logger) ServiceOption {
	return func(s *service) {
		s.logger = log
	}
}

func NewService(store Store, history HistoryStore, opts ...ServiceOption) Service {
	s := &service{
		store:   store,
		history: history,
		logger:  logger.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// keyedMutex serializes mutations per rule id so concurrent updates cannot
// break version monotonicity.
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

func (s *service) CreateRule(ctx context.Context, req CreateRuleRequest) (*Rule, error) {
	if err := ValidateCreateRule(req); err != nil {
		metrics.IncRuleMutation("create", "error")
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}

	now := time.Now()
	changedBy := getChangedBy(ctx)
	r := &Rule{
		ID:            uuid.New().String(),
		Name:          req.Name,
		Category:      req.Category,
		Description:   req.Description,
		Conditions:    req.Conditions,
		Actions:       req.Actions,
		Enabled:       getEnabledValue(req.Enabled),
		Priority:      req.Priority,
		Version:       1,
		Schedule:      req.Schedule,
		EffectiveFrom: req.EffectiveFrom,
		EffectiveTo:   req.EffectiveTo,
		CreatedAt:     now,
		UpdatedAt:     now,
		CreatedBy:     changedBy,
		UpdatedBy:     changedBy,
	}

	if err := s.store.Create(ctx, r); err != nil {
		metrics.IncRuleMutation("create", "error")
		return nil, asAppError(err)
	}

	if err := s.appendHistory(ctx, r, ChangeCreate, "created", nil); err != nil {
		metrics.IncRuleMutation("create", "error")
		return nil, asAppError(err)
	}
	s.publishEvent(ctx, models.ActionCreate, r)
	metrics.IncRuleMutation("create", "success")

	return r.Clone(), nil
}

func (s *service) ListRules(ctx context.Context, filter ListFilter) (*ListRulesResponse, error) {
	items, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, asAppError(err)
	}
	return &ListRulesResponse{Total: total, Items: items}, nil
}

func (s *service) GetRule(ctx context.Context, id string) (*Rule, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, asAppError(err)
	}
	return r, nil
}

func (s *service) UpdateRule(ctx context.Context, id string, req UpdateRuleRequest) (*Rule, error) {
	if err := ValidateUpdateRule(req); err != nil {
		metrics.IncRuleMutation("update", "error")
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}

	unlock := s.locks.lock(id)
	defer unlock()

	current, err := s.store.Get(ctx, id)
	if err != nil {
		metrics.IncRuleMutation("update", "error")
		return nil, asAppError(err)
	}

	if req.ExpectedVersion != nil && *req.ExpectedVersion != current.Version {
		metrics.IncRuleMutation("update", "error")
		return nil, pkgerrors.ErrConflict.
			WithDetail("expected_version", *req.ExpectedVersion).
			WithDetail("current_version", current.Version)
	}

	previous := current.Version
	s.applyPatch(current, req)
	current.Version = previous + 1
	current.UpdatedAt = time.Now()
	current.UpdatedBy = getChangedBy(ctx)

	if err := s.store.Update(ctx, current); err != nil {
		metrics.IncRuleMutation("update", "error")
		return nil, asAppError(err)
	}

	changeLog := req.ChangeLog
	if changeLog == "" {
		changeLog = "updated"
	}
	if err := s.appendHistory(ctx, current, ChangeUpdate, changeLog, &previous); err != nil {
		metrics.IncRuleMutation("update", "error")
		return nil, asAppError(err)
	}
	s.publishEvent(ctx, models.ActionUpdate, current)
	metrics.IncRuleMutation("update", "success")

	return current.Clone(), nil
}

func (s *service) DeleteRule(ctx context.Context, id string) error {
	unlock := s.locks.lock(id)
	defer unlock()

	current, err := s.store.Get(ctx, id)
	if err != nil {
		metrics.IncRuleMutation("delete", "error")
		return asAppError(err)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		metrics.IncRuleMutation("delete", "error")
		return asAppError(err)
	}

	// History outlives the rule: record the deletion as one more version.
	previous := current.Version
	current.Version = previous + 1
	current.UpdatedAt = time.Now()
	current.UpdatedBy = getChangedBy(ctx)
	current.Deleted = true
	if err := s.appendHistory(ctx, current, ChangeDelete, "deleted", &previous); err != nil {
		metrics.IncRuleMutation("delete", "error")
		return asAppError(err)
	}
	s.publishEvent(ctx, models.ActionDelete, current)
	metrics.IncRuleMutation("delete", "success")

	return nil
}

func (s *service) GetRuleHistory(ctx context.Context, id string) ([]RuleVersion, error) {
	versions, err := s.history.ListVersions(ctx, id)
	if err != nil {
		return nil, asAppError(err)
	}
	if len(versions) == 0 {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	return versions, nil
}

func (s *service) Rollback(ctx context.Context, id string, req RollbackRequest) (*Rule, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	current, err := s.store.Get(ctx, id)
	if err != nil {
		metrics.IncRuleMutation("rollback", "error")
		return nil, asAppError(err)
	}

	target, err := s.history.GetVersion(ctx, id, req.TargetVersion)
	if err != nil {
		metrics.IncRuleMutation("rollback", "error")
		return nil, asAppError(err)
	}

	// A rollback is a new version carrying the target snapshot's fields; it
	// never renumbers or reuses a past version.
	previous := current.Version
	restored := target.Snapshot.Clone()
	restored.ID = current.ID
	restored.Version = previous + 1
	restored.CreatedAt = current.CreatedAt
	restored.CreatedBy = current.CreatedBy
	restored.UpdatedAt = time.Now()
	restored.UpdatedBy = getChangedBy(ctx)
	restored.Deleted = false

	if err := s.store.Update(ctx, restored); err != nil {
		metrics.IncRuleMutation("rollback", "error")
		return nil, asAppError(err)
	}

	changeLog := fmt.Sprintf("rollback to version %d", req.TargetVersion)
	if req.Reason != "" {
		changeLog = fmt.Sprintf("%s: %s", changeLog, req.Reason)
	}
	if err := s.appendHistory(ctx, restored, ChangeUpdate, changeLog, &previous); err != nil {
		metrics.IncRuleMutation("rollback", "error")
		return nil, asAppError(err)
	}
	s.publishEvent(ctx, models.ActionRollback, restored)
	metrics.IncRuleMutation("rollback", "success")

	return restored.Clone(), nil
}

func (s *service) EnableRule(ctx context.Context, id, changedBy string) (*Rule, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, asAppError(err)
	}
	if current.Enabled {
		return current, nil
	}

	previous := current.Version
	current.Enabled = true
	current.Version = previous + 1
	current.UpdatedAt = time.Now()
	current.UpdatedBy = changedBy

	if err := s.store.Update(ctx, current); err != nil {
		return nil, asAppError(err)
	}

	if err := s.appendHistory(ctx, current, ChangeUpdate, "enabled by approval", &previous); err != nil {
		metrics.IncRuleMutation("enable", "error")
		return nil, asAppError(err)
	}
	s.publishEvent(ctx, models.ActionToggle, current)
	metrics.IncRuleMutation("enable", "success")

	return current.Clone(), nil
}

func (s *service) applyPatch(r *Rule, req UpdateRuleRequest) {
	if req.Name != nil {
		r.Name = *req.Name
	}
	if req.Category != nil {
		r.Category = *req.Category
	}
	if req.Description != nil {
		r.Description = *req.Description
	}
	if req.Conditions != nil {
		r.Conditions = *req.Conditions
	}
	if req.Actions != nil {
		r.Actions = *req.Actions
	}
	if req.Enabled != nil {
		r.Enabled = *req.Enabled
	}
	if req.Priority != nil {
		r.Priority = *req.Priority
	}
	if req.Schedule != nil {
		r.Schedule = *req.Schedule
	}
	if req.EffectiveFrom != nil {
		r.EffectiveFrom = req.EffectiveFrom
	}
	if req.EffectiveTo != nil {
		r.EffectiveTo = req.EffectiveTo
	}
}

// appendHistory writes the snapshot for a version bump. A failed write fails
// the whole mutation: a version without its snapshot cannot be rolled back to.
func (s *service) appendHistory(ctx context.Context, r *Rule, changeType ChangeType, changeLog string, previousVersion *int) error {
	entry := &RuleVersion{
		RuleID:          r.ID,
		Version:         r.Version,
		ChangeLog:       changeLog,
		ChangedBy:       r.UpdatedBy,
		ChangedAt:       r.UpdatedAt,
		ChangeType:      changeType,
		PreviousVersion: previousVersion,
		Snapshot:        *r.Clone(),
	}
	return s.history.AppendVersion(ctx, entry)
}

func (s *service) publishEvent(ctx context.Context, action string, r *Rule) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishRuleChange(ctx, action, r.ID, r.Version, r.UpdatedBy); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to publish rule change event",
			"error", err,
			"rule_id", r.ID,
			"action", action,
		)
	}
}

func asAppError(err error) error {
	var appErr *pkgerrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
}

func getEnabledValue(reqEnabled *bool) bool {
	if reqEnabled == nil {
		return true
	}
	return *reqEnabled
}

func getChangedBy(ctx context.Context) string {
	if userID := ctx.Value("user_id"); userID != nil {
		if id, ok := userID.(string); ok {
			return id
		}
	}
	return constants.ExecutedBySystem
}
