package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iris/internal/rule"
	pkgerrors "iris/pkg/errors"
)

func newStoredRule(name string, category rule.Category, enabled bool) *rule.Rule {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &rule.Rule{
		ID:       uuid.New().String(),
		Name:     name,
		Category: category,
		Conditions: []rule.Condition{
			{Field: "days_since_purchase", Operator: rule.OperatorGTE, Value: 550},
		},
		Actions: []rule.Action{
			{Type: rule.ActionGenerateTask, Params: map[string]interface{}{"task_type": "follow_up"}},
		},
		Enabled:   enabled,
		Priority:  10,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: "tester",
		UpdatedBy: "tester",
	}
}

func TestRuleStore_CreateAndGet(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	store := rule.NewPostgresStore(infra.PostgresDB)
	ctx := context.Background()

	r := newStoredRule("lens change due", rule.CategoryLensChangeReminder, true)
	require.NoError(t, store.Create(ctx, r))

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Name, got.Name)
	assert.Equal(t, r.Category, got.Category)
	assert.Equal(t, r.Conditions, got.Conditions)
	assert.Equal(t, r.Priority, got.Priority)
	assert.Equal(t, 1, got.Version)
	require.Len(t, got.Actions, 1)
	assert.Equal(t, rule.ActionGenerateTask, got.Actions[0].Type)
}

func TestRuleStore_DuplicateIDConflicts(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	store := rule.NewPostgresStore(infra.PostgresDB)
	ctx := context.Background()

	r := newStoredRule("lens change due", rule.CategoryLensChangeReminder, true)
	require.NoError(t, store.Create(ctx, r))

	err := store.Create(ctx, r)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))
}

func TestRuleStore_GetNotFound(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	store := rule.NewPostgresStore(infra.PostgresDB)

	_, err := store.Get(context.Background(), uuid.New().String())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestRuleStore_ListFilters(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	store := rule.NewPostgresStore(infra.PostgresDB)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newStoredRule("r1", rule.CategoryLensChangeReminder, true)))
	require.NoError(t, store.Create(ctx, newStoredRule("r2", rule.CategoryChurnWarning, true)))
	require.NoError(t, store.Create(ctx, newStoredRule("r3", rule.CategoryChurnWarning, false)))

	items, total, err := store.List(ctx, rule.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, items, 3)

	items, total, err = store.List(ctx, rule.ListFilter{Category: rule.CategoryChurnWarning})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)

	enabled := true
	items, total, err = store.List(ctx, rule.ListFilter{Category: rule.CategoryChurnWarning, Enabled: &enabled})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "r2", items[0].Name)
}

func TestRuleStore_ListPagination(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	store := rule.NewPostgresStore(infra.PostgresDB)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		r := newStoredRule("paged", rule.CategoryLensChangeReminder, true)
		r.Priority = i
		require.NoError(t, store.Create(ctx, r))
	}

	items, total, err := store.List(ctx, rule.ListFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, items, 2)
	// priority DESC ordering
	assert.Equal(t, 4, items[0].Priority)
	assert.Equal(t, 3, items[1].Priority)

	items, _, err = store.List(ctx, rule.ListFilter{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestRuleStore_SoftDelete(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	store := rule.NewPostgresStore(infra.PostgresDB)
	ctx := context.Background()

	r := newStoredRule("to delete", rule.CategoryLensChangeReminder, true)
	require.NoError(t, store.Create(ctx, r))
	require.NoError(t, store.Delete(ctx, r.ID))

	_, err := store.Get(ctx, r.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))

	_, total, err := store.List(ctx, rule.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	err = store.Delete(ctx, r.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestRuleHistoryStore_ActiveVersionIsUnique(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	store := rule.NewPostgresHistoryStore(infra.PostgresDB)
	ctx := context.Background()

	r := newStoredRule("versioned", rule.CategoryLensChangeReminder, true)

	for v := 1; v <= 3; v++ {
		snapshot := *r
		snapshot.Version = v
		entry := &rule.RuleVersion{
			RuleID:     r.ID,
			Version:    v,
			ChangeLog:  "updated",
			ChangedBy:  "tester",
			ChangeType: rule.ChangeUpdate,
			Snapshot:   snapshot,
		}
		require.NoError(t, store.AppendVersion(ctx, entry))
	}

	versions, err := store.ListVersions(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)

	// newest first, exactly one active
	assert.Equal(t, 3, versions[0].Version)
	active := 0
	for _, v := range versions {
		if v.IsActive {
			active++
			assert.Equal(t, 3, v.Version)
		}
	}
	assert.Equal(t, 1, active)

	got, err := store.GetVersion(ctx, r.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Snapshot.Version)
	assert.False(t, got.IsActive)

	_, err = store.GetVersion(ctx, r.ID, 99)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}
