package rule

import "time"

type Category string

const (
	CategoryLensChangeReminder Category = "lens_change_reminder"
	CategoryRefractionWarning  Category = "refraction_warning"
	CategoryQualityWarning     Category = "quality_warning"
	CategoryUpgradePotential   Category = "upgrade_potential"
	CategoryReferralRules      Category = "referral_rules"
	CategoryChurnWarning       Category = "churn_warning"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryLensChangeReminder, CategoryRefractionWarning, CategoryQualityWarning,
		CategoryUpgradePotential, CategoryReferralRules, CategoryChurnWarning:
		return true
	}
	return false
}

type Operator string

const (
	OperatorGT  Operator = "gt"
	OperatorLT  Operator = "lt"
	OperatorGTE Operator = "gte"
	OperatorLTE Operator = "lte"
	OperatorEQ  Operator = "eq"
)

func (o Operator) Valid() bool {
	switch o {
	case OperatorGT, OperatorLT, OperatorGTE, OperatorLTE, OperatorEQ:
		return true
	}
	return false
}

type JoinType string

const (
	JoinAnd JoinType = "AND"
	JoinOr  JoinType = "OR"
)

type ActionType string

const (
	ActionGenerateTask  ActionType = "generate_task"
	ActionSendAlert     ActionType = "send_alert"
	ActionTagCustomer   ActionType = "tag_customer"
	ActionReferCustomer ActionType = "refer_customer"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionGenerateTask, ActionSendAlert, ActionTagCustomer, ActionReferCustomer:
		return true
	}
	return false
}

// Condition is a single comparison predicate over a dotted-path field of the
// evaluation context. JoinType is empty only on the first condition of a list.
type Condition struct {
	Field    string      `json:"field"`
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value"`
	JoinType JoinType    `json:"join_type,omitempty"`
}

type Action struct {
	Type   ActionType             `json:"type"`
	Params map[string]interface{} `json:"params"`
}

type Rule struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Category      Category    `json:"category"`
	Description   string      `json:"description,omitempty"`
	Conditions    []Condition `json:"conditions"`
	Actions       []Action    `json:"actions"`
	Enabled       bool        `json:"enabled"`
	Priority      int         `json:"priority"`
	Version       int         `json:"version"`
	Schedule      string      `json:"schedule,omitempty"`
	EffectiveFrom *time.Time  `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time  `json:"effective_to,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	CreatedBy     string      `json:"created_by,omitempty"`
	UpdatedBy     string      `json:"updated_by,omitempty"`
	Deleted       bool        `json:"-"`
}

// Clone returns a deep copy so stored state never aliases caller state.
func (r *Rule) Clone() *Rule {
	out := *r
	out.Conditions = make([]Condition, len(r.Conditions))
	copy(out.Conditions, r.Conditions)
	out.Actions = make([]Action, len(r.Actions))
	for i, a := range r.Actions {
		params := make(map[string]interface{}, len(a.Params))
		for k, v := range a.Params {
			params[k] = v
		}
		out.Actions[i] = Action{Type: a.Type, Params: params}
	}
	if r.EffectiveFrom != nil {
		from := *r.EffectiveFrom
		out.EffectiveFrom = &from
	}
	if r.EffectiveTo != nil {
		to := *r.EffectiveTo
		out.EffectiveTo = &to
	}
	return &out
}

type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// RuleVersion is one entry of a rule's append-only history. It is created
// once per mutation and never mutated afterward, except for the IsActive
// flag which tracks the rule's current version.
type RuleVersion struct {
	ID              string     `json:"id"`
	RuleID          string     `json:"rule_id"`
	Version         int        `json:"version"`
	ChangeLog       string     `json:"change_log,omitempty"`
	ChangedBy       string     `json:"changed_by,omitempty"`
	ChangedAt       time.Time  `json:"changed_at"`
	ChangeType      ChangeType `json:"change_type"`
	PreviousVersion *int       `json:"previous_version,omitempty"`
	IsActive        bool       `json:"is_active"`
	Snapshot        Rule       `json:"snapshot"`
}

type ListFilter struct {
	Category Category
	Enabled  *bool
	Page     int
	PageSize int
}

type CreateRuleRequest struct {
	Name          string      `json:"name" binding:"required"`
	Category      Category    `json:"category" binding:"required"`
	Description   string      `json:"description"`
	Conditions    []Condition `json:"conditions"`
	Actions       []Action    `json:"actions"`
	Enabled       *bool       `json:"enabled"`
	Priority      int         `json:"priority"`
	Schedule      string      `json:"schedule"`
	EffectiveFrom *time.Time  `json:"effective_from"`
	EffectiveTo   *time.Time  `json:"effective_to"`
}

type UpdateRuleRequest struct {
	Name          *string      `json:"name"`
	Category      *Category    `json:"category"`
	Description   *string      `json:"description"`
	Conditions    *[]Condition `json:"conditions"`
	Actions       *[]Action    `json:"actions"`
	Enabled       *bool        `json:"enabled"`
	Priority      *int         `json:"priority"`
	Schedule      *string      `json:"schedule"`
	EffectiveFrom *time.Time   `json:"effective_from"`
	EffectiveTo   *time.Time   `json:"effective_to"`

	// ExpectedVersion enables the optimistic concurrency check: when set,
	// the update is rejected with Conflict if the stored version differs.
	ExpectedVersion *int   `json:"expected_version"`
	ChangeLog       string `json:"change_log"`
}

type RollbackRequest struct {
	TargetVersion int    `json:"target_version" binding:"required"`
	Reason        string `json:"reason"`
}

type MutationResult struct {
	ID                  string    `json:"id"`
	Version             int       `json:"version"`
	RolledBackToVersion int       `json:"rolled_back_to_version,omitempty"`
	CreatedAt           time.Time `json:"created_at,omitempty"`
	UpdatedAt           time.Time `json:"updated_at,omitempty"`
}

type ListRulesResponse struct {
	Total int    `json:"total"`
	Items []Rule `json:"items"`
}
