package integration

import (
	"iris/internal/logger"
	"iris/internal/rule"
)

const containerStartupTimeout = 60

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestRuleRequest(name string) rule.CreateRuleRequest {
	return rule.CreateRuleRequest{
		Name:     name,
		Category: rule.CategoryLensChangeReminder,
		Conditions: []rule.Condition{
			{Field: "days_since_purchase", Operator: rule.OperatorGTE, Value: 550},
		},
		Actions: []rule.Action{
			{Type: rule.ActionGenerateTask, Params: map[string]interface{}{"task_type": "follow_up"}},
		},
		Priority: 10,
	}
}

func newPostgresRuleService(infra *TestInfra) rule.Service {
	return rule.NewService(
		rule.NewPostgresStore(infra.PostgresDB),
		rule.NewPostgresHistoryStore(infra.PostgresDB),
	)
}
