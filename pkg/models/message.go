package models

import "time"

type MessageEnvelope struct {
	ID        string                 `json:"id"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`  // Business data
	Metadata  Metadata               `json:"metadata"` // Pipeline metadata (trace_id, dispatch info)
}

type Metadata struct {
	TraceID  string        `json:"trace_id,omitempty"`
	RuleID   string        `json:"rule_id,omitempty"`
	Dispatch *DispatchInfo `json:"dispatch,omitempty"`
}

type DispatchInfo struct {
	ActionType   string    `json:"action_type"`
	CustomerID   string    `json:"customer_id"`
	DispatchedAt time.Time `json:"dispatched_at"`
}
