package execution

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const logCollection = "execution_logs"

type mongoLogStore struct {
	collection *mongo.Collection
}

func NewMongoLogStore(db *mongo.Database) LogStore {
	return &mongoLogStore{collection: db.Collection(logCollection)}
}

func (s *mongoLogStore) Append(ctx context.Context, log *Log) error {
	if _, err := s.collection.InsertOne(ctx, log); err != nil {
		return fmt.Errorf("failed to append execution log: %w", err)
	}
	return nil
}

func (s *mongoLogStore) List(ctx context.Context, filter LogFilter) ([]Log, error) {
	query := bson.M{}
	if filter.RuleID != "" {
		query["rule_id"] = filter.RuleID
	}
	if filter.StartDate != nil || filter.EndDate != nil {
		timeRange := bson.M{}
		if filter.StartDate != nil {
			timeRange["$gte"] = *filter.StartDate
		}
		if filter.EndDate != nil {
			timeRange["$lte"] = *filter.EndDate
		}
		query["executed_at"] = timeRange
	}

	opts := options.Find().SetSort(bson.D{{Key: "executed_at", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := s.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution logs: %w", err)
	}
	defer cursor.Close(ctx)

	logs := []Log{}
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("failed to decode execution logs: %w", err)
	}
	return logs, nil
}
