package execution

import (
	"time"

	"iris/internal/evaluate"
	"iris/internal/rule"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

type TriggerType string

const (
	TriggerManual   TriggerType = "manual"
	TriggerSchedule TriggerType = "schedule"
)

func (t TriggerType) Valid() bool {
	return t == TriggerManual || t == TriggerSchedule
}

// Context captures how an execution was started and how much it scanned.
type Context struct {
	TriggerType           TriggerType `json:"trigger_type" bson:"trigger_type"`
	TotalCustomersScanned int         `json:"total_customers_scanned" bson:"total_customers_scanned"`
}

// Log is one batch-execution record. Logs are append-only and outlive the
// rule they reference.
type Log struct {
	ID                  string    `json:"id" bson:"_id"`
	RuleID              string    `json:"rule_id" bson:"rule_id"`
	RuleName            string    `json:"rule_name" bson:"rule_name"`
	RuleVersion         int       `json:"rule_version" bson:"rule_version"`
	ExecutionTime       time.Time `json:"execution_time" bson:"executed_at"`
	Status              Status    `json:"status" bson:"status"`
	MatchedCustomers    int       `json:"matched_customers" bson:"matched_customers"`
	TriggeredActions    int       `json:"triggered_actions" bson:"triggered_actions"`
	ExecutionDurationMs int64     `json:"execution_duration_ms" bson:"execution_duration_ms"`
	ExecutedBy          string    `json:"executed_by" bson:"executed_by"`
	ExecutionContext    Context   `json:"execution_context" bson:"execution_context"`
	ErrorMessage        string    `json:"error_message,omitempty" bson:"error_message,omitempty"`
}

type LogFilter struct {
	RuleID    string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
}

type TestRequest struct {
	TestData map[string]interface{} `json:"test_data" binding:"required"`
	Mode     string                 `json:"mode"`
}

type TestResult struct {
	Matched           bool                       `json:"matched"`
	MatchedConditions []evaluate.ConditionResult `json:"matched_conditions"`
	ExecutedActions   []rule.Action              `json:"executed_actions"`
	ImpactCount       int                        `json:"impact_count"`
}

type ExecuteRequest struct {
	TriggerType TriggerType `json:"trigger_type"`
}
