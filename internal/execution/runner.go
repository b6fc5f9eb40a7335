package execution

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"iris/internal/constants"
	"iris/internal/dispatch"
	"iris/internal/evaluate"
	"iris/internal/logger"
	"iris/internal/rule"
	pkgerrors "iris/pkg/errors"
	"iris/pkg/metrics"
)

type Runner struct {
	rules            rule.Service
	logs             LogStore
	population       PopulationSource
	dispatcher       *dispatch.Dispatcher
	evaluators       map[string]evaluate.Evaluator
	defaultMode      string
	concurrency      int
	failureThreshold float64
	logger           logger.Logger
}

type RunnerOption func(*Runner)

func WithDefaultMode(mode string) RunnerOption {
	return func(r *Runner) {
		if mode != "" {
			r.defaultMode = mode
		}
	}
}

func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithFailureThreshold(fraction float64) RunnerOption {
	return func(r *Runner) {
		if fraction > 0 {
			r.failureThreshold = fraction
		}
	}
}

func NewRunner(rules rule.Service, logs LogStore, population PopulationSource, dispatcher *dispatch.Dispatcher, log logger.Logger, opts ...RunnerOption) (*Runner, error) {
	strict, err := evaluate.NewStrictEvaluator()
	if err != nil {
		return nil, err
	}

	r := &Runner{
		rules:      rules,
		logs:       logs,
		population: population,
		dispatcher: dispatcher,
		evaluators: map[string]evaluate.Evaluator{
			evaluate.ModeLegacy: evaluate.NewLegacyEvaluator(),
			evaluate.ModeStrict: strict,
		},
		defaultMode:      evaluate.ModeLegacy,
		concurrency:      constants.DefaultBatchConcurrency,
		failureThreshold: constants.DefaultFailureThreshold,
		logger:           log,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Test evaluates a rule once against a caller-supplied record. Matched rules
// get a dry dispatch pass that validates action params without side effects.
func (r *Runner) Test(ctx context.Context, ruleID string, req TestRequest) (*TestResult, error) {
	snapshot, err := r.rules.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	evaluator, err := r.evaluatorFor(req.Mode)
	if err != nil {
		return nil, err
	}

	verdict, err := evaluator.Evaluate(ctx, snapshot.Conditions, req.TestData)
	if err != nil {
		return nil, asAppError(err)
	}

	result := &TestResult{
		Matched:           verdict.Matched,
		MatchedConditions: verdict.PerCondition,
		ExecutedActions:   []rule.Action{},
		ImpactCount:       0,
	}
	if verdict.Matched {
		result.ExecutedActions = snapshot.Actions
		result.ImpactCount = 1
		for _, outcome := range r.dispatcher.DryRun(snapshot) {
			if outcome.Err != nil {
				return nil, outcome.Err
			}
		}
	}

	return result, nil
}

// Execute scans the whole population against a one-time snapshot of the rule
// and writes exactly one execution log. Evaluator and dispatcher failures are
// recorded in the log, never raised to the caller.
func (r *Runner) Execute(ctx context.Context, ruleID string, trigger TriggerType, executedBy string) (*Log, error) {
	if trigger == "" {
		trigger = TriggerManual
	}
	if !trigger.Valid() {
		return nil, pkgerrors.ErrValidation.WithDetail("trigger_type", string(trigger))
	}
	if executedBy == "" {
		executedBy = constants.ExecutedBySystem
	}

	snapshot, err := r.rules.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	evaluator, err := r.evaluatorFor("")
	if err != nil {
		return nil, err
	}

	start := time.Now()
	log := &Log{
		ID:            uuid.New().String(),
		RuleID:        snapshot.ID,
		RuleName:      snapshot.Name,
		RuleVersion:   snapshot.Version,
		ExecutionTime: start,
		ExecutedBy:    executedBy,
		ExecutionContext: Context{
			TriggerType: trigger,
		},
	}

	subjects, err := r.population.All(ctx)
	if err != nil {
		log.Status = StatusError
		log.ErrorMessage = "population retrieval failed: " + err.Error()
		log.ExecutionDurationMs = time.Since(start).Milliseconds()
		return r.finishLog(ctx, log, trigger)
	}

	var scanned, matched, triggered, failed int64

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(r.concurrency)

	for i := range subjects {
		subject := subjects[i]
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			atomic.AddInt64(&scanned, 1)

			verdict, err := evaluator.Evaluate(gctx, snapshot.Conditions, subject.Record)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				r.logger.WarnwCtx(gctx, "Evaluation failed during batch execution",
					"error", err,
					"rule_id", snapshot.ID,
					"subject_id", subject.ID,
				)
				return nil
			}
			if !verdict.Matched {
				return nil
			}
			atomic.AddInt64(&matched, 1)

			delivered := true
			for _, outcome := range r.dispatcher.DispatchActions(gctx, snapshot, subject.ID) {
				if outcome.Err != nil {
					delivered = false
				}
			}
			if delivered {
				atomic.AddInt64(&triggered, 1)
			} else {
				atomic.AddInt64(&failed, 1)
			}
			return nil
		})
	}

	groupErr := group.Wait()

	log.MatchedCustomers = int(matched)
	log.TriggeredActions = int(triggered)
	log.ExecutionContext.TotalCustomersScanned = int(scanned)
	log.ExecutionDurationMs = time.Since(start).Milliseconds()

	switch {
	case groupErr != nil && errors.Is(groupErr, context.Canceled):
		log.Status = StatusError
		log.ErrorMessage = "cancelled"
	case groupErr != nil:
		log.Status = StatusError
		log.ErrorMessage = groupErr.Error()
	case matched > 0 && float64(failed)/float64(matched) > r.failureThreshold:
		log.Status = StatusError
		log.ErrorMessage = "dispatch failure rate exceeded threshold"
	case failed > 0:
		log.Status = StatusWarning
	default:
		log.Status = StatusSuccess
	}

	return r.finishLog(ctx, log, trigger)
}

func (r *Runner) ListLogs(ctx context.Context, filter LogFilter) ([]Log, error) {
	logs, err := r.logs.List(ctx, filter)
	if err != nil {
		return nil, asAppError(err)
	}
	return logs, nil
}

// LatestInRange returns the most recent log for a rule within [start, end].
func (r *Runner) LatestInRange(ctx context.Context, ruleID string, startDate, endDate *time.Time) (*Log, error) {
	logs, err := r.logs.List(ctx, LogFilter{
		RuleID:    ruleID,
		StartDate: startDate,
		EndDate:   endDate,
		Limit:     1,
	})
	if err != nil {
		return nil, asAppError(err)
	}
	if len(logs) == 0 {
		return nil, pkgerrors.ErrNotFound.WithDetail("rule_id", ruleID)
	}
	return &logs[0], nil
}

func (r *Runner) evaluatorFor(mode string) (evaluate.Evaluator, error) {
	if mode == "" {
		mode = r.defaultMode
	}
	evaluator, ok := r.evaluators[mode]
	if !ok {
		return nil, pkgerrors.ErrValidation.WithDetail("mode", mode)
	}
	return evaluator, nil
}

// finishLog persists the log and records metrics. The write happens on a
// detached context so a cancelled batch still leaves its partial log behind.
func (r *Runner) finishLog(ctx context.Context, log *Log, trigger TriggerType) (*Log, error) {
	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := r.logs.Append(appendCtx, log); err != nil {
		return nil, asAppError(err)
	}

	metrics.IncExecution(string(trigger), string(log.Status))
	metrics.ObserveExecution(string(trigger), time.Duration(log.ExecutionDurationMs)*time.Millisecond, log.ExecutionContext.TotalCustomersScanned)

	return log, nil
}

func asAppError(err error) error {
	var appErr *pkgerrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
}
