package dispatch

import (
	"context"
	"time"

	"iris/internal/constants"
	"iris/internal/logger"
	"iris/internal/rule"
	"iris/pkg/circuitbreaker"
	pkgerrors "iris/pkg/errors"
	"iris/pkg/metrics"
	"iris/pkg/retry"
)

// Outcome reports one action's dispatch result. A failed dispatch never
// rolls back prior successful ones.
type Outcome struct {
	Action     rule.Action
	Suppressed bool
	Err        error
}

func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

type Dispatcher struct {
	sink    Sink
	guard   IdempotencyGuard
	breaker *circuitbreaker.Wrapper
	policy  retry.Policy
	ttl     time.Duration
	logger  logger.Logger
}

type Option func(*Dispatcher)

func WithGuard(guard IdempotencyGuard) Option {
	return func(d *Dispatcher) {
		d.guard = guard
	}
}

func WithBreaker(breaker *circuitbreaker.Wrapper) Option {
	return func(d *Dispatcher) {
		d.breaker = breaker
	}
}

func WithRetryPolicy(policy retry.Policy) Option {
	return func(d *Dispatcher) {
		d.policy = policy
	}
}

func WithDedupTTL(ttl time.Duration) Option {
	return func(d *Dispatcher) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

func NewDispatcher(sink Sink, log logger.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sink:   sink,
		guard:  NewNoopGuard(),
		policy: retry.DefaultPolicy(),
		ttl:    constants.DefaultDispatchDedupTTL,
		logger: log,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// DispatchActions hands each of the matched rule's actions to the sink in
// list order and reports per-action outcomes.
func (d *Dispatcher) DispatchActions(ctx context.Context, r *rule.Rule, subjectID string) []Outcome {
	outcomes := make([]Outcome, 0, len(r.Actions))
	for _, action := range r.Actions {
		outcomes = append(outcomes, d.dispatchOne(ctx, r, action, subjectID))
	}
	return outcomes
}

// DryRun validates each action's params without delivering anything.
func (d *Dispatcher) DryRun(r *rule.Rule) []Outcome {
	outcomes := make([]Outcome, 0, len(r.Actions))
	for _, action := range r.Actions {
		outcome := Outcome{Action: action}
		if _, err := DecodeParams(action); err != nil {
			outcome.Err = pkgerrors.ErrDispatchFailure.WithCause(err)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (d *Dispatcher) dispatchOne(ctx context.Context, r *rule.Rule, action rule.Action, subjectID string) Outcome {
	start := time.Now()
	actionType := string(action.Type)

	if _, err := DecodeParams(action); err != nil {
		metrics.IncDispatch(actionType, "error")
		return Outcome{Action: action, Err: pkgerrors.ErrDispatchFailure.WithCause(err)}
	}

	key := GuardKey(r.ID, subjectID, actionType)
	reserved, err := d.guard.Reserve(ctx, key, d.ttl)
	if err != nil {
		// Guard unavailable: deliver anyway rather than dropping the action.
		d.logger.WarnwCtx(ctx, "Idempotency guard unavailable",
			"error", err,
			"rule_id", r.ID,
			"subject_id", subjectID,
		)
	} else if !reserved {
		metrics.IncDispatchDedupHit(actionType)
		return Outcome{Action: action, Suppressed: true}
	}

	req := Request{
		Type:      action.Type,
		Params:    action.Params,
		RuleID:    r.ID,
		SubjectID: subjectID,
	}

	err = retry.Retry(ctx, d.policy, func() error {
		return d.deliver(ctx, req)
	})
	metrics.ObserveDispatchDuration(actionType, time.Since(start))

	if err != nil {
		metrics.IncDispatch(actionType, "error")
		d.logger.ErrorwCtx(ctx, "Dispatch failed",
			"error", err,
			"action_type", actionType,
			"rule_id", r.ID,
			"subject_id", subjectID,
		)
		return Outcome{Action: action, Err: pkgerrors.ErrDispatchFailure.WithCause(err)}
	}

	metrics.IncDispatch(actionType, "success")
	return Outcome{Action: action}
}

func (d *Dispatcher) deliver(ctx context.Context, req Request) error {
	if d.breaker != nil {
		_, err := d.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
			return nil, d.sink.Deliver(ctx, req)
		})
		return err
	}
	return d.sink.Deliver(ctx, req)
}
