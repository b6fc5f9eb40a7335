package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"iris/internal/broker"
	"iris/internal/logger"
	"iris/internal/rule"
	"iris/pkg/models"
)

// Request is one dispatchable side effect produced by a matched rule.
type Request struct {
	Type      rule.ActionType        `json:"type"`
	Params    map[string]interface{} `json:"params"`
	RuleID    string                 `json:"rule_id"`
	SubjectID string                 `json:"subject_id"`
}

// Sink delivers dispatch requests to the external task/alert/tag/referral
// services. Delivery is fire-and-forget from the engine's perspective; the
// sink only reports whether the handoff succeeded.
type Sink interface {
	Deliver(ctx context.Context, req Request) error
}

type kafkaSink struct {
	producer broker.Producer
	topic    string
}

func NewKafkaSink(producer broker.Producer, topic string) Sink {
	return &kafkaSink{producer: producer, topic: topic}
}

func (s *kafkaSink) Deliver(ctx context.Context, req Request) error {
	envelope := models.MessageEnvelope{
		ID:        uuid.New().String(),
		Source:    "rule-service",
		Timestamp: time.Now(),
		Payload: map[string]interface{}{
			"type":       string(req.Type),
			"params":     req.Params,
			"rule_id":    req.RuleID,
			"subject_id": req.SubjectID,
		},
		Metadata: models.Metadata{
			RuleID: req.RuleID,
			Dispatch: &models.DispatchInfo{
				ActionType:   string(req.Type),
				CustomerID:   req.SubjectID,
				DispatchedAt: time.Now(),
			},
		},
	}

	return s.producer.Publish(ctx, s.topic, envelope)
}

type logSink struct {
	logger logger.Logger
}

// NewLogSink delivers nowhere; it records the request and succeeds. Used
// when no broker is configured.
func NewLogSink(log logger.Logger) Sink {
	return &logSink{logger: log}
}

func (s *logSink) Deliver(ctx context.Context, req Request) error {
	s.logger.InfowCtx(ctx, "Dispatch request",
		"action_type", req.Type,
		"rule_id", req.RuleID,
		"subject_id", req.SubjectID,
	)
	return nil
}
