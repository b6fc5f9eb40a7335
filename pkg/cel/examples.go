package cel

// ConditionExpressionExamples provides example CEL expressions for strict
// evaluation mode, one per supported operator.
var ConditionExpressionExamples = map[string]string{
	"greater_than":  `record.days_since_last_purchase > 180.0`,
	"less_than":     `record.visual_acuity_change < 0.5`,
	"greater_equal": `record.complaint_count >= 2.0`,
	"less_equal":    `record.satisfaction_score <= 3.0`,
	"equals":        `record.segment == "premium"`,
	"nested_field":  `record.customer.age <= 18.0`,
	"guarded":       `has(record.last_refraction_days) && record.last_refraction_days > 365.0`,
}
