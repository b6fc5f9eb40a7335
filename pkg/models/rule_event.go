package models

import "time"

type RuleChangeEvent struct {
	EventType string                 `json:"event_type"` // "rule_changed", "rule_approval_decided"
	RuleID    string                 `json:"rule_id"`
	Version   int                    `json:"version,omitempty"`
	Action    string                 `json:"action"` // "create", "update", "delete", "toggle", "rollback"
	Timestamp time.Time              `json:"timestamp"`
	ChangedBy string                 `json:"changed_by,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

const (
	EventTypeRuleChanged         = "rule_changed"
	EventTypeRuleApprovalDecided = "rule_approval_decided"
)

const (
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionDelete   = "delete"
	ActionToggle   = "toggle"
	ActionRollback = "rollback"
)
