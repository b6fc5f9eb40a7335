package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iris/internal/execution"
)

func newStoredLog(ruleID string, at time.Time, status execution.Status) *execution.Log {
	return &execution.Log{
		ID:                  uuid.New().String(),
		RuleID:              ruleID,
		RuleName:            "lens change due",
		RuleVersion:         1,
		ExecutionTime:       at,
		Status:              status,
		MatchedCustomers:    3,
		TriggeredActions:    3,
		ExecutionDurationMs: 120,
		ExecutedBy:          "system",
		ExecutionContext: execution.Context{
			TriggerType:           execution.TriggerManual,
			TotalCustomersScanned: 10,
		},
	}
}

func TestExecutionLogStore_AppendAndList(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, false)

	store := execution.NewMongoLogStore(infra.MongoDB)
	ctx := context.Background()

	ruleID := uuid.New().String()
	base := time.Now().UTC().Truncate(time.Millisecond)

	first := newStoredLog(ruleID, base.Add(-2*time.Hour), execution.StatusSuccess)
	second := newStoredLog(ruleID, base.Add(-1*time.Hour), execution.StatusWarning)
	other := newStoredLog(uuid.New().String(), base, execution.StatusSuccess)

	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))
	require.NoError(t, store.Append(ctx, other))

	logs, err := store.List(ctx, execution.LogFilter{RuleID: ruleID})
	require.NoError(t, err)
	require.Len(t, logs, 2)

	// newest first
	assert.Equal(t, second.ID, logs[0].ID)
	assert.Equal(t, first.ID, logs[1].ID)
	assert.Equal(t, execution.StatusWarning, logs[0].Status)
	assert.Equal(t, execution.TriggerManual, logs[0].ExecutionContext.TriggerType)
	assert.Equal(t, 10, logs[0].ExecutionContext.TotalCustomersScanned)
}

func TestExecutionLogStore_DateRangeAndLimit(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, false)

	store := execution.NewMongoLogStore(infra.MongoDB)
	ctx := context.Background()

	ruleID := uuid.New().String()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i := 0; i < 4; i++ {
		log := newStoredLog(ruleID, base.Add(-time.Duration(i)*time.Hour), execution.StatusSuccess)
		require.NoError(t, store.Append(ctx, log))
	}

	start := base.Add(-150 * time.Minute)
	end := base.Add(-30 * time.Minute)
	logs, err := store.List(ctx, execution.LogFilter{RuleID: ruleID, StartDate: &start, EndDate: &end})
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	logs, err = store.List(ctx, execution.LogFilter{RuleID: ruleID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, base, logs[0].ExecutionTime.UTC())
}

func TestExecutionLogStore_LogsOutliveRules(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, true, false)

	rules := newPostgresRuleService(infra)
	store := execution.NewMongoLogStore(infra.MongoDB)
	ctx := context.Background()

	created, err := rules.CreateRule(ctx, createTestRuleRequest("short lived"))
	require.NoError(t, err)

	log := newStoredLog(created.ID, time.Now().UTC().Truncate(time.Millisecond), execution.StatusSuccess)
	require.NoError(t, store.Append(ctx, log))

	require.NoError(t, rules.DeleteRule(ctx, created.ID))

	logs, err := store.List(ctx, execution.LogFilter{RuleID: created.ID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, log.ID, logs[0].ID)
}
