package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func EnsureMongoCollection(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection("execution_logs")

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "rule_id", Value: 1}, {Key: "executed_at", Value: -1}},
			Options: options.Index().SetName("idx_execution_logs_rule_executed_at"),
		},
		{
			Keys:    bson.D{{Key: "executed_at", Value: -1}},
			Options: options.Index().SetName("idx_execution_logs_executed_at"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "executed_at", Value: -1}},
			Options: options.Index().SetName("idx_execution_logs_status_executed_at"),
		},
		{
			Keys:    bson.D{{Key: "execution_context.trigger_type", Value: 1}},
			Options: options.Index().SetName("idx_execution_logs_trigger_type"),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return nil
}
