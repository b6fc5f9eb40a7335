package rule

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

func ValidateCreateRule(req CreateRuleRequest) error {
	if req.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !req.Category.Valid() {
		return fmt.Errorf("invalid category: %s", req.Category)
	}
	if err := validateConditions(req.Conditions); err != nil {
		return err
	}
	if err := validateActions(req.Actions); err != nil {
		return err
	}
	if err := validateSchedule(req.Schedule); err != nil {
		return err
	}
	return nil
}

func ValidateUpdateRule(req UpdateRuleRequest) error {
	if req.Name != nil && *req.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if req.Category != nil && !req.Category.Valid() {
		return fmt.Errorf("invalid category: %s", *req.Category)
	}
	if req.Conditions != nil {
		if err := validateConditions(*req.Conditions); err != nil {
			return err
		}
	}
	if req.Actions != nil {
		if err := validateActions(*req.Actions); err != nil {
			return err
		}
	}
	if req.Schedule != nil {
		if err := validateSchedule(*req.Schedule); err != nil {
			return err
		}
	}
	return nil
}

func validateConditions(conditions []Condition) error {
	if len(conditions) == 0 {
		return fmt.Errorf("conditions cannot be empty")
	}
	for i, cond := range conditions {
		if cond.Field == "" {
			return fmt.Errorf("condition[%d]: field is required", i)
		}
		if !cond.Operator.Valid() {
			return fmt.Errorf("condition[%d]: invalid operator: %s", i, cond.Operator)
		}
		if cond.Value == nil {
			return fmt.Errorf("condition[%d]: value is required", i)
		}
		switch cond.JoinType {
		case JoinAnd, JoinOr:
		case "":
			// An absent join type is only legal on the first condition.
			if i > 0 {
				return fmt.Errorf("condition[%d]: join_type is required after the first condition", i)
			}
		default:
			return fmt.Errorf("condition[%d]: invalid join_type: %s. Allowed: AND, OR", i, cond.JoinType)
		}
	}
	return nil
}

func validateActions(actions []Action) error {
	if len(actions) == 0 {
		return fmt.Errorf("actions cannot be empty")
	}
	for i, action := range actions {
		if !action.Type.Valid() {
			return fmt.Errorf("action[%d]: invalid type: %s", i, action.Type)
		}
	}
	return nil
}

func validateSchedule(schedule string) error {
	if schedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	return nil
}
