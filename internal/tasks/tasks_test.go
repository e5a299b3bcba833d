// ABOUTME: Tests for the task lifecycle manager
// ABOUTME: Covers the state machine edge table, assignment fan-out, and delete protection

package tasks

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/troupe/internal/activity"
	"github.com/2389/troupe/internal/bus"
	"github.com/2389/troupe/internal/store"
)

type fakeChecker struct {
	running map[string]bool
}

func (f *fakeChecker) IsRunning(taskID string) bool {
	return f.running[taskID]
}

type fakeTrigger struct {
	triggered []string
}

func (f *fakeTrigger) TriggerHeartbeat(_ context.Context, agentID string) {
	f.triggered = append(f.triggered, agentID)
}

func newTestManager(t *testing.T) (*Manager, store.Store) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := bus.NewBus(nil)
	t.Cleanup(b.Close)

	return New(st, activity.NewLog(st, b)), st
}

func seedAgent(t *testing.T, st store.Store, id, name string) {
	t.Helper()
	a := &store.Agent{ID: id, Name: name, Role: "worker", Status: store.AgentStatusIdle}
	require.NoError(t, st.CreateAgent(t.Context(), a))
}

func TestCanTransition(t *testing.T) {
	legal := [][2]string{
		{store.TaskStatusInbox, store.TaskStatusAssigned},
		{store.TaskStatusAssigned, store.TaskStatusInProgress},
		{store.TaskStatusInProgress, store.TaskStatusReview},
		{store.TaskStatusReview, store.TaskStatusDone},
		{store.TaskStatusReview, store.TaskStatusInProgress},
		{store.TaskStatusBlocked, store.TaskStatusAssigned},
		// any non-terminal -> blocked
		{store.TaskStatusInbox, store.TaskStatusBlocked},
		{store.TaskStatusAssigned, store.TaskStatusBlocked},
		{store.TaskStatusInProgress, store.TaskStatusBlocked},
		{store.TaskStatusReview, store.TaskStatusBlocked},
	}
	for _, edge := range legal {
		assert.True(t, CanTransition(edge[0], edge[1]), "%s -> %s should be legal", edge[0], edge[1])
	}

	illegal := [][2]string{
		{store.TaskStatusInbox, store.TaskStatusInProgress},
		{store.TaskStatusInbox, store.TaskStatusDone},
		{store.TaskStatusAssigned, store.TaskStatusReview},
		{store.TaskStatusInProgress, store.TaskStatusDone},
		{store.TaskStatusDone, store.TaskStatusBlocked},
		{store.TaskStatusDone, store.TaskStatusAssigned},
		{store.TaskStatusBlocked, store.TaskStatusInProgress},
	}
	for _, edge := range illegal {
		assert.False(t, CanTransition(edge[0], edge[1]), "%s -> %s should be illegal", edge[0], edge[1])
	}
}

func TestCreate(t *testing.T) {
	m, _ := newTestManager(t)

	task, err := m.Create(t.Context(), "Research", "dig into the numbers", store.PriorityHigh, nil)
	require.NoError(t, err)

	assert.Equal(t, store.TaskStatusInbox, task.Status)
	assert.Equal(t, store.PriorityHigh, task.Priority)
	assert.Nil(t, task.StartedAt)
	assert.Nil(t, task.CompletedAt)
}

func TestCreate_Validation(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := t.Context()

	_, err := m.Create(ctx, "", "", "", nil)
	assert.Error(t, err)

	_, err = m.Create(ctx, "ok", "", "critical", nil)
	assert.Error(t, err)

	// Empty priority defaults to medium.
	task, err := m.Create(ctx, "ok", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, store.PriorityMedium, task.Priority)
}

func TestAssign(t *testing.T) {
	m, st := newTestManager(t)
	ctx := t.Context()

	seedAgent(t, st, "agent-001", "shuri")
	trigger := &fakeTrigger{}
	m.SetHeartbeatTrigger(trigger)

	task, err := m.Create(ctx, "Research", "", store.PriorityHigh, nil)
	require.NoError(t, err)

	assigned, err := m.Assign(ctx, task.ID, []string{"agent-001"})
	require.NoError(t, err)
	assert.Equal(t, store.TaskStatusAssigned, assigned.Status)
	assert.Equal(t, []string{"agent-001"}, assigned.AssigneeIDs)

	// New assignee gets an assignment notification and an immediate check.
	notifs, err := st.ListNotifications(ctx, "agent-001", store.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, store.NotificationTypeAssignment, notifs[0].Type)
	assert.Equal(t, []string{"agent-001"}, trigger.triggered)
}

func TestAssign_ExistingAssigneeNotRenotified(t *testing.T) {
	m, st := newTestManager(t)
	ctx := t.Context()

	seedAgent(t, st, "agent-001", "shuri")
	seedAgent(t, st, "agent-002", "jarvis")

	task, err := m.Create(ctx, "Research", "", "", nil)
	require.NoError(t, err)

	_, err = m.Assign(ctx, task.ID, []string{"agent-001"})
	require.NoError(t, err)
	_, err = m.Assign(ctx, task.ID, []string{"agent-001", "agent-002"})
	require.NoError(t, err)

	notifs, err := st.ListNotifications(ctx, "agent-001", store.NotificationFilter{})
	require.NoError(t, err)
	assert.Len(t, notifs, 1, "re-assignment should not duplicate notifications")

	notifs, err = st.ListNotifications(ctx, "agent-002", store.NotificationFilter{})
	require.NoError(t, err)
	assert.Len(t, notifs, 1)
}

func TestAssign_Validation(t *testing.T) {
	m, st := newTestManager(t)
	ctx := t.Context()

	task, err := m.Create(ctx, "Research", "", "", nil)
	require.NoError(t, err)

	_, err = m.Assign(ctx, task.ID, nil)
	assert.ErrorIs(t, err, ErrNoAssignees)

	_, err = m.Assign(ctx, task.ID, []string{"ghost"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	seedAgent(t, st, "agent-001", "shuri")
	_, err = m.Assign(ctx, "no-such-task", []string{"agent-001"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateStatus_StampsTimestamps(t *testing.T) {
	m, st := newTestManager(t)
	ctx := t.Context()

	seedAgent(t, st, "agent-001", "shuri")
	task, err := m.Create(ctx, "Research", "", "", nil)
	require.NoError(t, err)
	_, err = m.Assign(ctx, task.ID, []string{"agent-001"})
	require.NoError(t, err)

	inProgress, err := m.UpdateStatus(ctx, task.ID, store.TaskStatusInProgress, "agent-001")
	require.NoError(t, err)
	require.NotNil(t, inProgress.StartedAt)
	firstStart := *inProgress.StartedAt

	_, err = m.UpdateStatus(ctx, task.ID, store.TaskStatusReview, "agent-001")
	require.NoError(t, err)

	// Rework: back to in_progress must not move started_at.
	rework, err := m.UpdateStatus(ctx, task.ID, store.TaskStatusInProgress, "agent-001")
	require.NoError(t, err)
	assert.True(t, rework.StartedAt.Equal(firstStart))

	_, err = m.UpdateStatus(ctx, task.ID, store.TaskStatusReview, "agent-001")
	require.NoError(t, err)
	done, err := m.UpdateStatus(ctx, task.ID, store.TaskStatusDone, "")
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)
}

func TestUpdateStatus_AttributesActivityToAgent(t *testing.T) {
	m, st := newTestManager(t)
	ctx := t.Context()

	seedAgent(t, st, "agent-001", "shuri")
	task, err := m.Create(ctx, "Research", "", "", nil)
	require.NoError(t, err)
	_, err = m.Assign(ctx, task.ID, []string{"agent-001"})
	require.NoError(t, err)

	_, err = m.UpdateStatus(ctx, task.ID, store.TaskStatusInProgress, "agent-001")
	require.NoError(t, err)

	entries, err := st.ListActivities(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "agent-001", entries[0].AgentID)
	assert.Equal(t, task.ID, entries[0].TaskID)
}

func TestUpdateStatus_InvalidTransitionLeavesTaskUnchanged(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := t.Context()

	task, err := m.Create(ctx, "Research", "", "", nil)
	require.NoError(t, err)

	_, err = m.UpdateStatus(ctx, task.ID, store.TaskStatusDone, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := m.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TaskStatusInbox, got.Status)
	assert.Nil(t, got.CompletedAt)
}

func TestDelete_RunningTask(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := t.Context()

	task, err := m.Create(ctx, "Research", "", "", nil)
	require.NoError(t, err)

	checker := &fakeChecker{running: map[string]bool{task.ID: true}}
	m.SetExecutionChecker(checker)

	err = m.Delete(ctx, task.ID)
	assert.ErrorIs(t, err, ErrTaskRunning)

	checker.running[task.ID] = false
	require.NoError(t, m.Delete(ctx, task.ID))

	_, err = m.Get(ctx, task.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStats(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := t.Context()

	_, err := m.Create(ctx, "a", "", store.PriorityLow, nil)
	require.NoError(t, err)
	_, err = m.Create(ctx, "b", "", store.PriorityLow, nil)
	require.NoError(t, err)

	counts, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.ByStatus[store.TaskStatusInbox])
	assert.Equal(t, 2, counts.ByPriority[store.PriorityLow])
}
