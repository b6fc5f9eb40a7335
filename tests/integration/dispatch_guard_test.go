package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iris/internal/dispatch"
)

func TestRedisGuard_ReservesOncePerWindow(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	guard := dispatch.NewRedisGuard(infra.RedisClient)
	ctx := context.Background()

	key := dispatch.GuardKey("rule-1", "cust-1", "generate_task")

	reserved, err := guard.Reserve(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, reserved)

	reserved, err = guard.Reserve(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, reserved, "duplicate inside the window is suppressed")

	otherKey := dispatch.GuardKey("rule-1", "cust-2", "generate_task")
	reserved, err = guard.Reserve(ctx, otherKey, time.Minute)
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestRedisGuard_WindowExpires(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	guard := dispatch.NewRedisGuard(infra.RedisClient)
	ctx := context.Background()

	key := dispatch.GuardKey("rule-1", "cust-1", "send_alert")

	reserved, err := guard.Reserve(ctx, key, 500*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, reserved)

	time.Sleep(700 * time.Millisecond)

	reserved, err = guard.Reserve(ctx, key, 500*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, reserved, "reservation is free again after the TTL")
}
