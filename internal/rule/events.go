package rule

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"iris/internal/broker"
	"iris/pkg/models"
)

// EventProducer publishes rule-change events so downstream consumers can
// reload their rule caches.
type EventProducer struct {
	producer broker.Producer
	topic    string
}

func NewEventProducer(producer broker.Producer, topic string) *EventProducer {
	return &EventProducer{
		producer: producer,
		topic:    topic,
	}
}

func (p *EventProducer) PublishRuleChange(ctx context.Context, action, ruleID string, version int, changedBy string) error {
	event := models.RuleChangeEvent{
		EventType: models.EventTypeRuleChanged,
		RuleID:    ruleID,
		Version:   version,
		Action:    action,
		Timestamp: time.Now(),
		ChangedBy: changedBy,
	}
	return p.publishEvent(ctx, event)
}

func (p *EventProducer) PublishApprovalDecided(ctx context.Context, ruleID, decision, approver string) error {
	event := models.RuleChangeEvent{
		EventType: models.EventTypeRuleApprovalDecided,
		RuleID:    ruleID,
		Action:    decision,
		Timestamp: time.Now(),
		ChangedBy: approver,
	}
	return p.publishEvent(ctx, event)
}

func (p *EventProducer) publishEvent(ctx context.Context, event models.RuleChangeEvent) error {
	if p.producer == nil || p.topic == "" {
		return nil
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal rule event: %w", err)
	}

	var eventData map[string]interface{}
	if err := json.Unmarshal(eventJSON, &eventData); err != nil {
		return fmt.Errorf("failed to unmarshal event data: %w", err)
	}

	envelope := models.MessageEnvelope{
		ID:        uuid.New().String(),
		Source:    "rule-service",
		Timestamp: time.Now(),
		Payload:   eventData,
		Metadata: models.Metadata{
			RuleID: event.RuleID,
		},
	}

	return p.producer.Publish(ctx, p.topic, envelope)
}
