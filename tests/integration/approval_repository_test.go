package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iris/internal/approval"
	pkgerrors "iris/pkg/errors"
)

func newStoredApproval(ruleID string, status approval.Status) *approval.Approval {
	approver := "approver-1"
	return &approval.Approval{
		ID:              uuid.New().String(),
		RuleID:          ruleID,
		RuleName:        "lens change due",
		Applicant:       "applicant-1",
		ApplyTime:       time.Now().UTC().Truncate(time.Millisecond),
		Status:          status,
		ApprovalLevel:   1,
		CurrentApprover: &approver,
		ApprovalHistory: []approval.HistoryEntry{},
		Priority:        approval.PriorityMedium,
	}
}

func TestApprovalStore_CreateAndGet(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	store := approval.NewPostgresStore(infra.PostgresDB)
	ctx := context.Background()

	a := newStoredApproval(uuid.New().String(), approval.StatusPending)
	require.NoError(t, store.Create(ctx, a))

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.RuleID, got.RuleID)
	assert.Equal(t, approval.StatusPending, got.Status)
	assert.Equal(t, 1, got.ApprovalLevel)
	require.NotNil(t, got.CurrentApprover)
	assert.Equal(t, "approver-1", *got.CurrentApprover)
	assert.Empty(t, got.ApprovalHistory)
}

func TestApprovalStore_UpdateDecision(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	store := approval.NewPostgresStore(infra.PostgresDB)
	ctx := context.Background()

	a := newStoredApproval(uuid.New().String(), approval.StatusPending)
	require.NoError(t, store.Create(ctx, a))

	a.Status = approval.StatusApproved
	a.CurrentApprover = nil
	a.ApprovalHistory = append(a.ApprovalHistory, approval.HistoryEntry{
		Approver: "approver-1",
		Action:   approval.DecisionApproved,
		Time:     time.Now().UTC().Truncate(time.Millisecond),
		Comment:  "looks good",
	})
	require.NoError(t, store.Update(ctx, a))

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, got.Status)
	assert.Nil(t, got.CurrentApprover)
	require.Len(t, got.ApprovalHistory, 1)
	assert.Equal(t, "approver-1", got.ApprovalHistory[0].Approver)
	assert.Equal(t, approval.DecisionApproved, got.ApprovalHistory[0].Action)
}

func TestApprovalStore_ListAndCountPending(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	store := approval.NewPostgresStore(infra.PostgresDB)
	ctx := context.Background()

	ruleID := uuid.New().String()
	require.NoError(t, store.Create(ctx, newStoredApproval(ruleID, approval.StatusPending)))
	require.NoError(t, store.Create(ctx, newStoredApproval(ruleID, approval.StatusRejected)))
	require.NoError(t, store.Create(ctx, newStoredApproval(uuid.New().String(), approval.StatusPending)))

	_, total, err := store.List(ctx, approval.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	items, total, err := store.List(ctx, approval.ListFilter{Status: approval.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)

	items, total, err = store.List(ctx, approval.ListFilter{RuleID: ruleID})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)

	pending, err := store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)
}

func TestApprovalStore_GetNotFound(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	store := approval.NewPostgresStore(infra.PostgresDB)

	_, err := store.Get(context.Background(), uuid.New().String())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}
