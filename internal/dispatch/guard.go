package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"iris/internal/constants"
)

// IdempotencyGuard suppresses duplicate dispatches of the same action for
// the same rule and subject inside a TTL window.
type IdempotencyGuard interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

func GuardKey(ruleID, subjectID, actionType string) string {
	return fmt.Sprintf("%s%s:%s:%s", constants.CacheKeyPrefixDispatch, ruleID, subjectID, actionType)
}

type redisGuard struct {
	client *redis.Client
}

func NewRedisGuard(client *redis.Client) IdempotencyGuard {
	return &redisGuard{client: client}
}

func (g *redisGuard) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX failed: %w", err)
	}
	return ok, nil
}

type noopGuard struct{}

// NewNoopGuard reserves every key. Used when Redis is not configured.
func NewNoopGuard() IdempotencyGuard {
	return &noopGuard{}
}

func (g *noopGuard) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}
