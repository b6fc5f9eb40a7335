package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RuleEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_evaluations_total",
			Help: "Total number of rule condition evaluations (count)",
		},
		[]string{"rule_id", "mode", "result"},
	)

	RuleEvaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rule_evaluation_duration_ms",
			Help:    "Duration of rule condition evaluation in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"mode"},
	)

	ActiveRules = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "active_rules",
			Help: "Number of enabled rules by category (count)",
		},
		[]string{"category"},
	)

	RuleMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_mutations_total",
			Help: "Total number of rule mutations (count)",
		},
		[]string{"operation", "status"},
	)

	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_executions_total",
			Help: "Total number of rule execution runs (count)",
		},
		[]string{"trigger", "status"},
	)

	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rule_execution_duration_ms",
			Help:    "Duration of batch rule executions in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"trigger"},
	)

	ExecutionCustomersProcessed = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rule_execution_customers_processed",
			Help:    "Number of customers processed per execution run (count)",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 10000, 50000},
		},
		[]string{"trigger"},
	)

	DispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "action_dispatches_total",
			Help: "Total number of action dispatches (count)",
		},
		[]string{"action_type", "status"},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "action_dispatch_duration_ms",
			Help:    "Duration of action dispatches in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"action_type"},
	)

	DispatchDedupHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "action_dispatch_dedup_hits_total",
			Help: "Total number of dispatches suppressed by the idempotency guard (count)",
		},
		[]string{"action_type"},
	)

	ApprovalDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_decisions_total",
			Help: "Total number of approval workflow decisions (count)",
		},
		[]string{"decision", "level"},
	)

	ApprovalsPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "approvals_pending",
			Help: "Number of approval requests currently pending (count)",
		},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"component", "target"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)
)

func RegisterRuleMetrics() {
	prometheus.MustRegister(RuleEvaluationsTotal)
	prometheus.MustRegister(RuleEvaluationDuration)
	prometheus.MustRegister(ActiveRules)
	prometheus.MustRegister(RuleMutationsTotal)
}

func RegisterExecutionMetrics() {
	prometheus.MustRegister(ExecutionsTotal)
	prometheus.MustRegister(ExecutionDuration)
	prometheus.MustRegister(ExecutionCustomersProcessed)
	prometheus.MustRegister(DispatchesTotal)
	prometheus.MustRegister(DispatchDuration)
	prometheus.MustRegister(DispatchDedupHitsTotal)
}

func RegisterApprovalMetrics() {
	prometheus.MustRegister(ApprovalDecisionsTotal)
	prometheus.MustRegister(ApprovalsPending)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterInfraMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaWriteDuration)
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
}

func ObserveRuleEvaluation(mode string, duration time.Duration) {
	RuleEvaluationDuration.WithLabelValues(mode).Observe(float64(duration.Milliseconds()))
}

func IncRuleEvaluation(ruleID, mode, result string) {
	RuleEvaluationsTotal.WithLabelValues(ruleID, mode, result).Inc()
}

func SetActiveRules(category string, count int) {
	ActiveRules.WithLabelValues(category).Set(float64(count))
}

func IncRuleMutation(operation, status string) {
	RuleMutationsTotal.WithLabelValues(operation, status).Inc()
}

func IncExecution(trigger, status string) {
	ExecutionsTotal.WithLabelValues(trigger, status).Inc()
}

func ObserveExecution(trigger string, duration time.Duration, customers int) {
	ExecutionDuration.WithLabelValues(trigger).Observe(float64(duration.Milliseconds()))
	ExecutionCustomersProcessed.WithLabelValues(trigger).Observe(float64(customers))
}

func IncDispatch(actionType, status string) {
	DispatchesTotal.WithLabelValues(actionType, status).Inc()
}

func ObserveDispatchDuration(actionType string, duration time.Duration) {
	DispatchDuration.WithLabelValues(actionType).Observe(float64(duration.Milliseconds()))
}

func IncDispatchDedupHit(actionType string) {
	DispatchDedupHitsTotal.WithLabelValues(actionType).Inc()
}

func IncApprovalDecision(decision, level string) {
	ApprovalDecisionsTotal.WithLabelValues(decision, level).Inc()
}

func SetApprovalsPending(count int) {
	ApprovalsPending.Set(float64(count))
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}
