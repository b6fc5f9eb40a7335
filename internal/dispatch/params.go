package dispatch

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"iris/internal/rule"
)

// Typed parameter structs per action type. The open params map on an Action
// is decoded into the matching struct before dispatch, so sinks never see
// stringly-typed lookups.

type GenerateTaskParams struct {
	TaskType     string `mapstructure:"task_type"`
	Title        string `mapstructure:"title"`
	AssigneeRole string `mapstructure:"assignee_role"`
	DueInDays    int    `mapstructure:"due_in_days"`
	Notes        string `mapstructure:"notes"`
}

type SendAlertParams struct {
	Channel   string `mapstructure:"channel"`
	Template  string `mapstructure:"template"`
	Severity  string `mapstructure:"severity"`
	Recipient string `mapstructure:"recipient"`
}

type TagCustomerParams struct {
	Tag           string `mapstructure:"tag"`
	ExpiresInDays int    `mapstructure:"expires_in_days"`
}

type ReferCustomerParams struct {
	TargetOrg  string `mapstructure:"target_org"`
	Department string `mapstructure:"department"`
	Reason     string `mapstructure:"reason"`
}

// DecodeParams decodes an action's params map into the typed struct for its
// type and checks the type's required keys.
func DecodeParams(action rule.Action) (interface{}, error) {
	switch action.Type {
	case rule.ActionGenerateTask:
		var p GenerateTaskParams
		if err := decode(action.Params, &p); err != nil {
			return nil, err
		}
		if p.TaskType == "" {
			return nil, fmt.Errorf("generate_task: task_type is required")
		}
		return p, nil
	case rule.ActionSendAlert:
		var p SendAlertParams
		if err := decode(action.Params, &p); err != nil {
			return nil, err
		}
		if p.Channel == "" {
			return nil, fmt.Errorf("send_alert: channel is required")
		}
		return p, nil
	case rule.ActionTagCustomer:
		var p TagCustomerParams
		if err := decode(action.Params, &p); err != nil {
			return nil, err
		}
		if p.Tag == "" {
			return nil, fmt.Errorf("tag_customer: tag is required")
		}
		return p, nil
	case rule.ActionReferCustomer:
		var p ReferCustomerParams
		if err := decode(action.Params, &p); err != nil {
			return nil, err
		}
		if p.TargetOrg == "" {
			return nil, fmt.Errorf("refer_customer: target_org is required")
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown action type: %s", action.Type)
	}
}

func decode(params map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build params decoder: %w", err)
	}
	if err := decoder.Decode(params); err != nil {
		return fmt.Errorf("failed to decode params: %w", err)
	}
	return nil
}
