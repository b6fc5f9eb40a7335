package rule

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "iris/pkg/errors"
)

type failingHistoryStore struct {
	HistoryStore
	failAppend bool
}

func (s *failingHistoryStore) AppendVersion(ctx context.Context, v *RuleVersion) error {
	if s.failAppend {
		return errors.New("history store unavailable")
	}
	return s.HistoryStore.AppendVersion(ctx, v)
}

func newTestService(t *testing.T) Service {
	t.Helper()
	return NewService(NewMemoryStore(), NewMemoryHistoryStore())
}

func validCreateRequest() CreateRuleRequest {
	return CreateRuleRequest{
		Name:     "lens change due",
		Category: CategoryLensChangeReminder,
		Conditions: []Condition{
			{Field: "days_since_purchase", Operator: OperatorGTE, Value: 550},
		},
		Actions: []Action{
			{Type: ActionGenerateTask, Params: map[string]interface{}{"task_type": "follow_up"}},
		},
		Priority: 10,
	}
}

func TestCreateRule(t *testing.T) {
	svc := newTestService(t)

	r, err := svc.CreateRule(context.Background(), validCreateRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, 1, r.Version)
	assert.True(t, r.Enabled)
	assert.False(t, r.CreatedAt.IsZero())

	history, err := svc.GetRuleHistory(context.Background(), r.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ChangeCreate, history[0].ChangeType)
	assert.True(t, history[0].IsActive)
	assert.Nil(t, history[0].PreviousVersion)
}

func TestCreateRule_ValidationFailureIsNotPersisted(t *testing.T) {
	svc := newTestService(t)

	req := validCreateRequest()
	req.Conditions = nil

	_, err := svc.CreateRule(context.Background(), req)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))

	resp, err := svc.ListRules(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, resp.Total)
}

func TestUpdateRule_VersionMonotonicity(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	r, err := svc.CreateRule(ctx, validCreateRequest())
	require.NoError(t, err)

	name := "updated name"
	for want := 2; want <= 5; want++ {
		r, err = svc.UpdateRule(ctx, r.ID, UpdateRuleRequest{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, want, r.Version)
	}

	history, err := svc.GetRuleHistory(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, history, 5)

	// Exactly one history entry is active, and it matches the current version.
	activeCount := 0
	for _, v := range history {
		if v.IsActive {
			activeCount++
			assert.Equal(t, r.Version, v.Version)
		}
	}
	assert.Equal(t, 1, activeCount)
}

// A version bump whose snapshot cannot be written must not report success;
// otherwise the new version would be unrecoverable by rollback.
func TestUpdateRule_HistoryWriteFailureFailsMutation(t *testing.T) {
	history := &failingHistoryStore{HistoryStore: NewMemoryHistoryStore()}
	svc := NewService(NewMemoryStore(), history)
	ctx := context.Background()

	r, err := svc.CreateRule(ctx, validCreateRequest())
	require.NoError(t, err)

	history.failAppend = true
	name := "renamed"
	_, err = svc.UpdateRule(ctx, r.ID, UpdateRuleRequest{Name: &name})
	require.Error(t, err)

	history.failAppend = false
	versions, err := svc.GetRuleHistory(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, ChangeCreate, versions[0].ChangeType)
	assert.True(t, versions[0].IsActive)
}

func TestCreateRule_HistoryWriteFailureFailsMutation(t *testing.T) {
	history := &failingHistoryStore{HistoryStore: NewMemoryHistoryStore(), failAppend: true}
	svc := NewService(NewMemoryStore(), history)

	_, err := svc.CreateRule(context.Background(), validCreateRequest())
	require.Error(t, err)
}

func TestUpdateRule_ExpectedVersionConflict(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	r, err := svc.CreateRule(ctx, validCreateRequest())
	require.NoError(t, err)

	stale := r.Version
	name := "first update"
	_, err = svc.UpdateRule(ctx, r.ID, UpdateRuleRequest{Name: &name, ExpectedVersion: &stale})
	require.NoError(t, err)

	name = "second update with stale version"
	_, err = svc.UpdateRule(ctx, r.ID, UpdateRuleRequest{Name: &name, ExpectedVersion: &stale})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))

	current, err := svc.GetRule(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "first update", current.Name)
	assert.Equal(t, 2, current.Version)
}

func TestDeleteRule_HistorySurvives(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	r, err := svc.CreateRule(ctx, validCreateRequest())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRule(ctx, r.ID))

	_, err = svc.GetRule(ctx, r.ID)
	assert.True(t, pkgerrors.IsNotFound(err))

	history, err := svc.GetRuleHistory(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ChangeDelete, history[0].ChangeType)
	assert.Equal(t, 2, history[0].Version)
	assert.Equal(t, ChangeCreate, history[1].ChangeType)
}

func TestDeleteRule_NotFound(t *testing.T) {
	svc := newTestService(t)
	err := svc.DeleteRule(context.Background(), "missing")
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestRollback(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	r, err := svc.CreateRule(ctx, validCreateRequest())
	require.NoError(t, err)
	originalName := r.Name

	name := "renamed"
	priority := 99
	_, err = svc.UpdateRule(ctx, r.ID, UpdateRuleRequest{Name: &name, Priority: &priority})
	require.NoError(t, err)

	rolled, err := svc.Rollback(ctx, r.ID, RollbackRequest{TargetVersion: 1, Reason: "bad rename"})
	require.NoError(t, err)

	// A rollback advances the version, it never renumbers.
	assert.Equal(t, 3, rolled.Version)
	assert.Equal(t, originalName, rolled.Name)
	assert.Equal(t, 10, rolled.Priority)

	history, err := svc.GetRuleHistory(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ChangeUpdate, history[0].ChangeType)
	assert.Contains(t, history[0].ChangeLog, "rollback to version 1")
	assert.Contains(t, history[0].ChangeLog, "bad rename")
}

func TestRollback_TargetVersionNotFound(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	r, err := svc.CreateRule(ctx, validCreateRequest())
	require.NoError(t, err)

	_, err = svc.Rollback(ctx, r.ID, RollbackRequest{TargetVersion: 7})
	assert.True(t, pkgerrors.IsNotFound(err))

	current, err := svc.GetRule(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current.Version)
}

func TestEnableRule(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	req := validCreateRequest()
	disabled := false
	req.Enabled = &disabled

	r, err := svc.CreateRule(ctx, req)
	require.NoError(t, err)
	assert.False(t, r.Enabled)

	enabled, err := svc.EnableRule(ctx, r.ID, "approver-1")
	require.NoError(t, err)
	assert.True(t, enabled.Enabled)
	assert.Equal(t, 2, enabled.Version)
	assert.Equal(t, "approver-1", enabled.UpdatedBy)

	// Enabling an already enabled rule is a no-op.
	again, err := svc.EnableRule(ctx, r.ID, "approver-2")
	require.NoError(t, err)
	assert.Equal(t, 2, again.Version)
}

func TestListRules_FilterAndPagination(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		req := validCreateRequest()
		req.Priority = i
		_, err := svc.CreateRule(ctx, req)
		require.NoError(t, err)
	}
	churn := validCreateRequest()
	churn.Category = CategoryChurnWarning
	_, err := svc.CreateRule(ctx, churn)
	require.NoError(t, err)

	resp, err := svc.ListRules(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, resp.Total)

	resp, err = svc.ListRules(ctx, ListFilter{Category: CategoryChurnWarning})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Total)

	resp, err = svc.ListRules(ctx, ListFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, resp.Total)
	assert.Len(t, resp.Items, 2)
}
