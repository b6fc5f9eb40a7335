package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iris/internal/dispatch"
	"iris/internal/evaluate"
	"iris/internal/logger"
	"iris/internal/rule"
	pkgerrors "iris/pkg/errors"
	"iris/pkg/retry"
)

type stubSink struct {
	mu          sync.Mutex
	delivered   []dispatch.Request
	failSubject string
}

func (s *stubSink) Deliver(ctx context.Context, req dispatch.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSubject != "" && req.SubjectID == s.failSubject {
		return errors.New("task service unavailable")
	}
	s.delivered = append(s.delivered, req)
	return nil
}

func (s *stubSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

type failingPopulation struct{}

func (p *failingPopulation) Lookup(ctx context.Context, id string) (*Subject, error) {
	return nil, errors.New("crm unavailable")
}

func (p *failingPopulation) All(ctx context.Context) ([]Subject, error) {
	return nil, errors.New("crm unavailable")
}

func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     1,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Multiplier:      1,
		MaxElapsedTime:  time.Second,
	}
}

type runnerFixture struct {
	runner *Runner
	rules  rule.Service
	logs   LogStore
	sink   *stubSink
	ruleID string
}

func newRunnerFixture(t *testing.T, population PopulationSource, sink *stubSink, opts ...RunnerOption) *runnerFixture {
	t.Helper()

	rules := rule.NewService(rule.NewMemoryStore(), rule.NewMemoryHistoryStore())
	r, err := rules.CreateRule(context.Background(), rule.CreateRuleRequest{
		Name:     "lens change due",
		Category: rule.CategoryLensChangeReminder,
		Conditions: []rule.Condition{
			{Field: "days_since_purchase", Operator: rule.OperatorGTE, Value: 550},
		},
		Actions: []rule.Action{
			{Type: rule.ActionGenerateTask, Params: map[string]interface{}{"task_type": "follow_up"}},
		},
	})
	require.NoError(t, err)

	logs := NewMemoryLogStore()
	dispatcher := dispatch.NewDispatcher(sink, logger.NopLogger(), dispatch.WithRetryPolicy(fastPolicy()))
	runner, err := NewRunner(rules, logs, population, dispatcher, logger.NopLogger(), opts...)
	require.NoError(t, err)

	return &runnerFixture{runner: runner, rules: rules, logs: logs, sink: sink, ruleID: r.ID}
}

func record(days int) map[string]interface{} {
	return map[string]interface{}{"days_since_purchase": days}
}

func TestRunnerTest_Matched(t *testing.T) {
	fx := newRunnerFixture(t, NewStaticPopulation(nil), &stubSink{})

	result, err := fx.runner.Test(context.Background(), fx.ruleID, TestRequest{TestData: record(600)})
	require.NoError(t, err)

	assert.True(t, result.Matched)
	assert.Equal(t, 1, result.ImpactCount)
	require.Len(t, result.ExecutedActions, 1)
	assert.Equal(t, rule.ActionGenerateTask, result.ExecutedActions[0].Type)
	require.Len(t, result.MatchedConditions, 1)
	assert.True(t, result.MatchedConditions[0].Matched)
	assert.Zero(t, fx.sink.count(), "test must not deliver")
}

func TestRunnerTest_Unmatched(t *testing.T) {
	fx := newRunnerFixture(t, NewStaticPopulation(nil), &stubSink{})

	result, err := fx.runner.Test(context.Background(), fx.ruleID, TestRequest{TestData: record(100)})
	require.NoError(t, err)

	assert.False(t, result.Matched)
	assert.Equal(t, 0, result.ImpactCount)
	assert.Empty(t, result.ExecutedActions)
}

func TestRunnerTest_UnknownModeRejected(t *testing.T) {
	fx := newRunnerFixture(t, NewStaticPopulation(nil), &stubSink{})

	_, err := fx.runner.Test(context.Background(), fx.ruleID, TestRequest{TestData: record(600), Mode: "lenient"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestRunnerTest_StrictMode(t *testing.T) {
	fx := newRunnerFixture(t, NewStaticPopulation(nil), &stubSink{})

	result, err := fx.runner.Test(context.Background(), fx.ruleID, TestRequest{TestData: record(600), Mode: evaluate.ModeStrict})
	require.NoError(t, err)
	assert.True(t, result.Matched)
}

func TestRunnerTest_RuleNotFound(t *testing.T) {
	fx := newRunnerFixture(t, NewStaticPopulation(nil), &stubSink{})

	_, err := fx.runner.Test(context.Background(), "missing", TestRequest{TestData: record(600)})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestExecute_Success(t *testing.T) {
	population := NewStaticPopulation([]Subject{
		{ID: "cust-1", Record: record(600)},
		{ID: "cust-2", Record: record(100)},
		{ID: "cust-3", Record: record(551)},
	})
	sink := &stubSink{}
	fx := newRunnerFixture(t, population, sink)

	log, err := fx.runner.Execute(context.Background(), fx.ruleID, TriggerManual, "operator-1")
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, log.Status)
	assert.Equal(t, 2, log.MatchedCustomers)
	assert.Equal(t, 2, log.TriggeredActions)
	assert.Equal(t, 3, log.ExecutionContext.TotalCustomersScanned)
	assert.Equal(t, TriggerManual, log.ExecutionContext.TriggerType)
	assert.Equal(t, "operator-1", log.ExecutedBy)
	assert.Equal(t, 1, log.RuleVersion)
	assert.Empty(t, log.ErrorMessage)
	assert.Equal(t, 2, sink.count())

	stored, err := fx.logs.List(context.Background(), LogFilter{RuleID: fx.ruleID})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, log.ID, stored[0].ID)
}

func TestExecute_CountsAreRepeatable(t *testing.T) {
	population := NewStaticPopulation([]Subject{
		{ID: "cust-1", Record: record(600)},
		{ID: "cust-2", Record: record(100)},
	})
	fx := newRunnerFixture(t, population, &stubSink{})

	first, err := fx.runner.Execute(context.Background(), fx.ruleID, TriggerManual, "")
	require.NoError(t, err)
	second, err := fx.runner.Execute(context.Background(), fx.ruleID, TriggerManual, "")
	require.NoError(t, err)

	assert.Equal(t, first.MatchedCustomers, second.MatchedCustomers)
	assert.Equal(t, first.TriggeredActions, second.TriggeredActions)
	assert.Equal(t, "system", second.ExecutedBy)

	stored, err := fx.logs.List(context.Background(), LogFilter{RuleID: fx.ruleID})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestExecute_PartialDispatchFailureIsWarning(t *testing.T) {
	population := NewStaticPopulation([]Subject{
		{ID: "cust-1", Record: record(600)},
		{ID: "cust-2", Record: record(600)},
	})
	sink := &stubSink{failSubject: "cust-2"}
	fx := newRunnerFixture(t, population, sink)

	log, err := fx.runner.Execute(context.Background(), fx.ruleID, TriggerManual, "")
	require.NoError(t, err)

	assert.Equal(t, StatusWarning, log.Status)
	assert.Equal(t, 2, log.MatchedCustomers)
	assert.Equal(t, 1, log.TriggeredActions)
}

func TestExecute_FailureRateAboveThresholdIsError(t *testing.T) {
	population := NewStaticPopulation([]Subject{
		{ID: "cust-1", Record: record(600)},
	})
	sink := &stubSink{failSubject: "cust-1"}
	fx := newRunnerFixture(t, population, sink)

	log, err := fx.runner.Execute(context.Background(), fx.ruleID, TriggerManual, "")
	require.NoError(t, err)

	assert.Equal(t, StatusError, log.Status)
	assert.Equal(t, "dispatch failure rate exceeded threshold", log.ErrorMessage)
	assert.Equal(t, 1, log.MatchedCustomers)
	assert.Equal(t, 0, log.TriggeredActions)
}

func TestExecute_PopulationFailureIsLogged(t *testing.T) {
	fx := newRunnerFixture(t, &failingPopulation{}, &stubSink{})

	log, err := fx.runner.Execute(context.Background(), fx.ruleID, TriggerManual, "")
	require.NoError(t, err)

	assert.Equal(t, StatusError, log.Status)
	assert.Contains(t, log.ErrorMessage, "population retrieval failed")
	assert.Equal(t, 0, log.MatchedCustomers)

	stored, err := fx.logs.List(context.Background(), LogFilter{RuleID: fx.ruleID})
	require.NoError(t, err)
	assert.Len(t, stored, 1, "failed run still leaves a log")
}

func TestExecute_CancelledRunLeavesPartialLog(t *testing.T) {
	population := NewStaticPopulation([]Subject{
		{ID: "cust-1", Record: record(600)},
		{ID: "cust-2", Record: record(600)},
	})
	fx := newRunnerFixture(t, population, &stubSink{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	log, err := fx.runner.Execute(ctx, fx.ruleID, TriggerManual, "")
	require.NoError(t, err)

	assert.Equal(t, StatusError, log.Status)
	assert.Equal(t, "cancelled", log.ErrorMessage)

	stored, err := fx.logs.List(context.Background(), LogFilter{RuleID: fx.ruleID})
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestExecute_InvalidTrigger(t *testing.T) {
	fx := newRunnerFixture(t, NewStaticPopulation(nil), &stubSink{})

	_, err := fx.runner.Execute(context.Background(), fx.ruleID, TriggerType("webhook"), "")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestExecute_UsesSnapshotVersion(t *testing.T) {
	population := NewStaticPopulation([]Subject{{ID: "cust-1", Record: record(600)}})
	fx := newRunnerFixture(t, population, &stubSink{})

	name := "renamed"
	_, err := fx.rules.UpdateRule(context.Background(), fx.ruleID, rule.UpdateRuleRequest{Name: &name})
	require.NoError(t, err)

	log, err := fx.runner.Execute(context.Background(), fx.ruleID, TriggerManual, "")
	require.NoError(t, err)
	assert.Equal(t, 2, log.RuleVersion)
	assert.Equal(t, "renamed", log.RuleName)
}

func TestLatestInRange(t *testing.T) {
	population := NewStaticPopulation([]Subject{{ID: "cust-1", Record: record(600)}})
	fx := newRunnerFixture(t, population, &stubSink{})

	_, err := fx.runner.LatestInRange(context.Background(), fx.ruleID, nil, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))

	first, err := fx.runner.Execute(context.Background(), fx.ruleID, TriggerManual, "")
	require.NoError(t, err)
	second, err := fx.runner.Execute(context.Background(), fx.ruleID, TriggerManual, "")
	require.NoError(t, err)

	latest, err := fx.runner.LatestInRange(context.Background(), fx.ruleID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	before := first.ExecutionTime.Add(-time.Minute)
	after := second.ExecutionTime.Add(time.Minute)
	latest, err = fx.runner.LatestInRange(context.Background(), fx.ruleID, &before, &after)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}
