// ABOUTME: Tests for the heartbeat daemon
// ABOUTME: Covers summaries, status adjustment, single-flight sweeps, and error isolation

package heartbeat

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/troupe/internal/bus"
	"github.com/2389/troupe/internal/metrics"
	"github.com/2389/troupe/internal/store"
)

type fakeChecker struct {
	mu      sync.Mutex
	running map[string]bool
}

func (f *fakeChecker) IsRunning(taskID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[taskID]
}

func newTestDaemon(t *testing.T) (*Daemon, store.Store) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := bus.NewBus(nil)
	t.Cleanup(b.Close)

	return New(st, b, metrics.New(), time.Minute), st
}

func seedAgent(t *testing.T, st store.Store, id, name, status, currentTask string) {
	t.Helper()
	a := &store.Agent{ID: id, Name: name, Role: "worker", Status: status, CurrentTaskID: currentTask}
	require.NoError(t, st.CreateAgent(t.Context(), a))
}

func TestSweep_ComputesSummaries(t *testing.T) {
	d, st := newTestDaemon(t)
	ctx := t.Context()

	seedAgent(t, st, "agent-001", "shuri", store.AgentStatusIdle, "")

	// One unread mention and one open assigned task.
	require.NoError(t, st.CreateNotification(ctx, &store.Notification{
		ID: "notif-001", AgentID: "agent-001", Type: store.NotificationTypeMention,
		CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, st.CreateTask(ctx, &store.Task{
		ID: "task-001", Title: "Research", Status: store.TaskStatusAssigned,
		Priority: store.PriorityHigh, AssigneeIDs: []string{"agent-001"},
		CreatedAt: time.Now().UTC(),
	}))

	d.Sweep(ctx)

	select {
	case s := <-d.Summaries():
		assert.Equal(t, "agent-001", s.AgentID)
		assert.Equal(t, 1, s.UnreadMentions)
		assert.Equal(t, 1, s.AssignedTasks)
		assert.True(t, s.HasUrgentWork)
	case <-time.After(time.Second):
		t.Fatal("no summary produced")
	}

	// Urgent work flips the idle agent to active and stamps the heartbeat.
	agent, err := st.GetAgent(ctx, "agent-001")
	require.NoError(t, err)
	assert.Equal(t, store.AgentStatusActive, agent.Status)
	require.NotNil(t, agent.LastHeartbeat)
}

func TestSweep_NoUrgentWorkMeansIdle(t *testing.T) {
	d, st := newTestDaemon(t)
	ctx := t.Context()

	seedAgent(t, st, "agent-001", "shuri", store.AgentStatusActive, "")

	d.Sweep(ctx)

	agent, err := st.GetAgent(ctx, "agent-001")
	require.NoError(t, err)
	assert.Equal(t, store.AgentStatusIdle, agent.Status)
}

func TestSweep_ExecutingAgentUntouched(t *testing.T) {
	d, st := newTestDaemon(t)
	ctx := t.Context()

	seedAgent(t, st, "agent-001", "shuri", store.AgentStatusActive, "task-001")
	d.SetExecutionChecker(&fakeChecker{running: map[string]bool{"task-001": true}})

	// Even with urgent work, a mid-run agent keeps its executor-owned state.
	require.NoError(t, st.CreateNotification(ctx, &store.Notification{
		ID: "notif-001", AgentID: "agent-001", Type: store.NotificationTypeMention,
		CreatedAt: time.Now().UTC(),
	}))

	d.Sweep(ctx)

	agent, err := st.GetAgent(ctx, "agent-001")
	require.NoError(t, err)
	assert.Equal(t, store.AgentStatusActive, agent.Status)
	assert.Equal(t, "task-001", agent.CurrentTaskID)
	require.NotNil(t, agent.LastHeartbeat)
}

func TestSweep_PublishesBusEvents(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := bus.NewBus(nil)
	t.Cleanup(b.Close)
	d := New(st, b, metrics.New(), time.Minute)

	seedAgent(t, st, "agent-001", "shuri", store.AgentStatusIdle, "")

	events, _ := b.Subscribe(t.Context())
	d.Sweep(t.Context())

	select {
	case event := <-events:
		require.Equal(t, bus.EventHeartbeatSummary, event.Type)
		assert.Equal(t, "shuri", event.HeartbeatSummary.AgentName)
	case <-time.After(time.Second):
		t.Fatal("no heartbeat event published")
	}
}

func TestTriggerHeartbeat_SingleAgent(t *testing.T) {
	d, st := newTestDaemon(t)
	ctx := t.Context()

	seedAgent(t, st, "agent-001", "shuri", store.AgentStatusIdle, "")
	seedAgent(t, st, "agent-002", "jarvis", store.AgentStatusIdle, "")

	d.TriggerHeartbeat(ctx, "agent-001")

	first, err := st.GetAgent(ctx, "agent-001")
	require.NoError(t, err)
	assert.NotNil(t, first.LastHeartbeat)

	second, err := st.GetAgent(ctx, "agent-002")
	require.NoError(t, err)
	assert.Nil(t, second.LastHeartbeat, "untriggered agent must not be touched")
}

func TestSweep_SingleFlight(t *testing.T) {
	d, st := newTestDaemon(t)
	ctx := t.Context()

	seedAgent(t, st, "agent-001", "shuri", store.AgentStatusIdle, "")

	// Hold the busy flag as a running sweep would.
	require.True(t, d.busy.CompareAndSwap(false, true))
	d.Sweep(ctx)
	d.busy.Store(false)

	// The skipped sweep touched nothing.
	agent, err := st.GetAgent(ctx, "agent-001")
	require.NoError(t, err)
	assert.Nil(t, agent.LastHeartbeat)
}

func TestCheckAgent_UnknownAgentReturnsError(t *testing.T) {
	d, st := newTestDaemon(t)
	ctx := t.Context()

	err := d.checkAgent(ctx, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// A failed triggered check is logged, not propagated, and later sweeps
	// still work.
	d.TriggerHeartbeat(ctx, "ghost")

	seedAgent(t, st, "agent-001", "shuri", store.AgentStatusIdle, "")
	d.Sweep(ctx)

	agent, err := st.GetAgent(ctx, "agent-001")
	require.NoError(t, err)
	assert.NotNil(t, agent.LastHeartbeat)
}
