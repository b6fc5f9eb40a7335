package config

import (
	"fmt"

	"iris/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateEngine(&cfg.Engine); err != nil {
		errors = append(errors, err)
	}

	if err := validateApproval(&cfg.Approval); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	if cfg.Type == "" {
		return nil // broker is optional, events are disabled without it
	}

	if cfg.Type != "kafka" {
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unsupported broker type %q", cfg.Type),
		}
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one broker address is required",
		}
	}

	return nil
}

func validateEngine(cfg *EngineConfig) error {
	switch cfg.EvaluationMode {
	case "":
		cfg.EvaluationMode = "legacy"
	case "legacy", "strict":
	default:
		return &ValidationError{
			Field:   "engine.evaluation_mode",
			Message: fmt.Sprintf("must be \"legacy\" or \"strict\", got %q", cfg.EvaluationMode),
		}
	}

	if cfg.BatchConcurrency < 0 {
		return &ValidationError{
			Field:   "engine.batch_concurrency",
			Message: "must be non-negative",
		}
	}
	if cfg.BatchConcurrency == 0 {
		cfg.BatchConcurrency = constants.DefaultBatchConcurrency
	}

	if cfg.FailureThreshold < 0 || cfg.FailureThreshold > 1 {
		return &ValidationError{
			Field:   "engine.failure_threshold",
			Message: "must be within [0, 1]",
		}
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = constants.DefaultFailureThreshold
	}

	if cfg.DispatchDedupTTL == 0 {
		cfg.DispatchDedupTTL = constants.DefaultDispatchDedupTTL
	}

	return nil
}

func validateApproval(cfg *ApprovalConfig) error {
	if cfg.MaxLevel < 0 {
		return &ValidationError{
			Field:   "approval.max_level",
			Message: "must be non-negative",
		}
	}
	if cfg.MaxLevel == 0 {
		cfg.MaxLevel = constants.DefaultApprovalMaxLevel
	}

	return nil
}
