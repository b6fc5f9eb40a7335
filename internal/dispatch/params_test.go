package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iris/internal/rule"
)

func TestDecodeParams(t *testing.T) {
	tests := []struct {
		name    string
		action  rule.Action
		want    interface{}
		wantErr string
	}{
		{
			name: "generate task full params",
			action: rule.Action{
				Type: rule.ActionGenerateTask,
				Params: map[string]interface{}{
					"task_type":     "follow_up",
					"title":         "Lens change follow-up",
					"assignee_role": "optician",
					"due_in_days":   7,
					"notes":         "call before visit",
				},
			},
			want: GenerateTaskParams{
				TaskType:     "follow_up",
				Title:        "Lens change follow-up",
				AssigneeRole: "optician",
				DueInDays:    7,
				Notes:        "call before visit",
			},
		},
		{
			name: "generate task weakly typed due_in_days",
			action: rule.Action{
				Type: rule.ActionGenerateTask,
				Params: map[string]interface{}{
					"task_type":   "follow_up",
					"due_in_days": "14",
				},
			},
			want: GenerateTaskParams{TaskType: "follow_up", DueInDays: 14},
		},
		{
			name: "generate task missing task_type",
			action: rule.Action{
				Type:   rule.ActionGenerateTask,
				Params: map[string]interface{}{"title": "untitled"},
			},
			wantErr: "task_type is required",
		},
		{
			name: "send alert",
			action: rule.Action{
				Type: rule.ActionSendAlert,
				Params: map[string]interface{}{
					"channel":   "sms",
					"template":  "lens_reminder",
					"severity":  "low",
					"recipient": "customer",
				},
			},
			want: SendAlertParams{
				Channel:   "sms",
				Template:  "lens_reminder",
				Severity:  "low",
				Recipient: "customer",
			},
		},
		{
			name: "send alert missing channel",
			action: rule.Action{
				Type:   rule.ActionSendAlert,
				Params: map[string]interface{}{"template": "lens_reminder"},
			},
			wantErr: "channel is required",
		},
		{
			name: "tag customer",
			action: rule.Action{
				Type: rule.ActionTagCustomer,
				Params: map[string]interface{}{
					"tag":             "high_value",
					"expires_in_days": 30,
				},
			},
			want: TagCustomerParams{Tag: "high_value", ExpiresInDays: 30},
		},
		{
			name: "tag customer missing tag",
			action: rule.Action{
				Type:   rule.ActionTagCustomer,
				Params: map[string]interface{}{"expires_in_days": 30},
			},
			wantErr: "tag is required",
		},
		{
			name: "refer customer",
			action: rule.Action{
				Type: rule.ActionReferCustomer,
				Params: map[string]interface{}{
					"target_org": "central-clinic",
					"department": "ophthalmology",
					"reason":     "annual checkup",
				},
			},
			want: ReferCustomerParams{
				TargetOrg:  "central-clinic",
				Department: "ophthalmology",
				Reason:     "annual checkup",
			},
		},
		{
			name: "refer customer missing target_org",
			action: rule.Action{
				Type:   rule.ActionReferCustomer,
				Params: map[string]interface{}{"reason": "annual checkup"},
			},
			wantErr: "target_org is required",
		},
		{
			name:    "unknown action type",
			action:  rule.Action{Type: rule.ActionType("teleport"), Params: map[string]interface{}{}},
			wantErr: "unknown action type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeParams(tt.action)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeParams_NilParams(t *testing.T) {
	_, err := DecodeParams(rule.Action{Type: rule.ActionGenerateTask})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task_type is required")
}
