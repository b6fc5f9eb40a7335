package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateCreateRule(t *testing.T) {
	valid := validCreateRequest()

	tests := []struct {
		name    string
		mutate  func(*CreateRuleRequest)
		wantErr string
	}{
		{
			name:   "valid request",
			mutate: func(r *CreateRuleRequest) {},
		},
		{
			name:    "missing name",
			mutate:  func(r *CreateRuleRequest) { r.Name = "" },
			wantErr: "name is required",
		},
		{
			name:    "unknown category",
			mutate:  func(r *CreateRuleRequest) { r.Category = "marketing_blast" },
			wantErr: "invalid category",
		},
		{
			name:    "no conditions",
			mutate:  func(r *CreateRuleRequest) { r.Conditions = nil },
			wantErr: "conditions cannot be empty",
		},
		{
			name: "condition missing field",
			mutate: func(r *CreateRuleRequest) {
				r.Conditions = []Condition{{Operator: OperatorGT, Value: 1}}
			},
			wantErr: "field is required",
		},
		{
			name: "condition invalid operator",
			mutate: func(r *CreateRuleRequest) {
				r.Conditions = []Condition{{Field: "days", Operator: "between", Value: 1}}
			},
			wantErr: "invalid operator",
		},
		{
			name: "condition missing value",
			mutate: func(r *CreateRuleRequest) {
				r.Conditions = []Condition{{Field: "days", Operator: OperatorGT}}
			},
			wantErr: "value is required",
		},
		{
			name: "missing join_type beyond first condition",
			mutate: func(r *CreateRuleRequest) {
				r.Conditions = []Condition{
					{Field: "days", Operator: OperatorGTE, Value: 550},
					{Field: "customer.age", Operator: OperatorLTE, Value: 18},
				}
			},
			wantErr: "join_type is required after the first condition",
		},
		{
			name: "empty join_type allowed at index 0",
			mutate: func(r *CreateRuleRequest) {
				r.Conditions = []Condition{
					{Field: "days", Operator: OperatorGTE, Value: 550},
					{Field: "customer.age", Operator: OperatorLTE, Value: 18, JoinType: JoinOr},
				}
			},
		},
		{
			name: "bad join_type",
			mutate: func(r *CreateRuleRequest) {
				r.Conditions = []Condition{
					{Field: "days", Operator: OperatorGTE, Value: 550},
					{Field: "customer.age", Operator: OperatorLTE, Value: 18, JoinType: "XOR"},
				}
			},
			wantErr: "invalid join_type",
		},
		{
			name:    "no actions",
			mutate:  func(r *CreateRuleRequest) { r.Actions = nil },
			wantErr: "actions cannot be empty",
		},
		{
			name: "invalid action type",
			mutate: func(r *CreateRuleRequest) {
				r.Actions = []Action{{Type: "send_fax"}}
			},
			wantErr: "invalid type",
		},
		{
			name:   "valid cron schedule",
			mutate: func(r *CreateRuleRequest) { r.Schedule = "0 9 * * 1" },
		},
		{
			name:    "invalid cron schedule",
			mutate:  func(r *CreateRuleRequest) { r.Schedule = "every tuesday" },
			wantErr: "invalid schedule",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			req.Conditions = append([]Condition{}, valid.Conditions...)
			req.Actions = append([]Action{}, valid.Actions...)
			tt.mutate(&req)

			err := ValidateCreateRule(req)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateUpdateRule(t *testing.T) {
	empty := ""
	badCategory := Category("unknown")
	noConditions := []Condition{}

	tests := []struct {
		name    string
		req     UpdateRuleRequest
		wantErr bool
	}{
		{name: "empty patch is valid", req: UpdateRuleRequest{}},
		{name: "empty name rejected", req: UpdateRuleRequest{Name: &empty}, wantErr: true},
		{name: "bad category rejected", req: UpdateRuleRequest{Category: &badCategory}, wantErr: true},
		{name: "empty conditions rejected", req: UpdateRuleRequest{Conditions: &noConditions}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpdateRule(tt.req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
