package approval

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further decisions are accepted.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

func (d Decision) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// HistoryEntry records one decide call. Entries are append-only.
type HistoryEntry struct {
	Approver string    `json:"approver"`
	Action   Decision  `json:"action"`
	Time     time.Time `json:"time"`
	Comment  string    `json:"comment,omitempty"`
}

type Approval struct {
	ID              string         `json:"id"`
	RuleID          string         `json:"rule_id"`
	RuleName        string         `json:"rule_name"`
	Applicant       string         `json:"applicant"`
	ApplyTime       time.Time      `json:"apply_time"`
	Status          Status         `json:"status"`
	ApprovalLevel   int            `json:"approval_level"`
	CurrentApprover *string        `json:"current_approver"`
	ApprovalHistory []HistoryEntry `json:"approval_history"`
	Comment         string         `json:"comment,omitempty"`
	Priority        Priority       `json:"priority"`
}

func (a *Approval) Clone() *Approval {
	if a == nil {
		return nil
	}

	clone := *a
	if a.CurrentApprover != nil {
		approver := *a.CurrentApprover
		clone.CurrentApprover = &approver
	}
	clone.ApprovalHistory = make([]HistoryEntry, len(a.ApprovalHistory))
	copy(clone.ApprovalHistory, a.ApprovalHistory)
	return &clone
}

type SubmitRequest struct {
	RuleID    string   `json:"rule_id"`
	Applicant string   `json:"applicant"`
	Comment   string   `json:"comment"`
	Priority  Priority `json:"priority"`
}

type DecideRequest struct {
	Approver string   `json:"approver" binding:"required"`
	Action   Decision `json:"action" binding:"required"`
	Comment  string   `json:"comment"`
}

type ListFilter struct {
	Status   Status
	RuleID   string
	Page     int
	PageSize int
}

type ListResponse struct {
	Total int         `json:"total"`
	Items []*Approval `json:"items"`
}
