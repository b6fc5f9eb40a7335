package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iris/internal/dispatch"
	"iris/internal/execution"
)

func TestRunner_EndToEndBatchExecution(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, true, true)

	log := createTestLogger()
	rules := newPostgresRuleService(infra)
	logs := execution.NewMongoLogStore(infra.MongoDB)
	population := execution.NewStaticPopulation([]execution.Subject{
		{ID: "cust-1", Record: map[string]interface{}{"days_since_purchase": 600}},
		{ID: "cust-2", Record: map[string]interface{}{"days_since_purchase": 100}},
		{ID: "cust-3", Record: map[string]interface{}{"days_since_purchase": 551}},
	})
	dispatcher := dispatch.NewDispatcher(
		dispatch.NewLogSink(log),
		log,
		dispatch.WithGuard(dispatch.NewRedisGuard(infra.RedisClient)),
	)

	runner, err := execution.NewRunner(rules, logs, population, dispatcher, log)
	require.NoError(t, err)

	ctx := context.Background()
	created, err := rules.CreateRule(ctx, createTestRuleRequest("lens change due"))
	require.NoError(t, err)

	result, err := runner.Execute(ctx, created.ID, execution.TriggerManual, "operator-1")
	require.NoError(t, err)
	assert.Equal(t, execution.StatusSuccess, result.Status)
	assert.Equal(t, 2, result.MatchedCustomers)
	assert.Equal(t, 2, result.TriggeredActions)
	assert.Equal(t, 3, result.ExecutionContext.TotalCustomersScanned)

	// A rerun inside the dedup window matches the same customers but the
	// guard suppresses the repeat deliveries.
	again, err := runner.Execute(ctx, created.ID, execution.TriggerManual, "operator-1")
	require.NoError(t, err)
	assert.Equal(t, execution.StatusSuccess, again.Status)
	assert.Equal(t, 2, again.MatchedCustomers)

	stored, err := logs.List(ctx, execution.LogFilter{RuleID: created.ID})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, again.ID, stored[0].ID)
	assert.Equal(t, result.ID, stored[1].ID)
}
