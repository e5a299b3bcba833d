// ABOUTME: Tests for task persistence
// ABOUTME: Covers CRUD, filtered listing, cascade delete, and aggregate counts

package store

import (
	"context"
	"testing"
	"time"
)

func TestCreateAndGetTask(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	task := &Task{
		ID:          "task-001",
		Title:       "Write report",
		Description: "quarterly numbers",
		Status:      TaskStatusInbox,
		Priority:    PriorityHigh,
		AssigneeIDs: []string{"agent-001", "agent-002"},
		BlockedBy:   []string{"task-000"},
		CreatedAt:   now,
	}

	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	got, err := store.GetTask(ctx, "task-001")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}

	if got.Title != task.Title {
		t.Errorf("Title mismatch: got %q, want %q", got.Title, task.Title)
	}
	if got.Status != TaskStatusInbox {
		t.Errorf("Status mismatch: got %q, want %q", got.Status, TaskStatusInbox)
	}
	if got.Priority != PriorityHigh {
		t.Errorf("Priority mismatch: got %q, want %q", got.Priority, PriorityHigh)
	}
	if len(got.AssigneeIDs) != 2 {
		t.Errorf("AssigneeIDs mismatch: got %v", got.AssigneeIDs)
	}
	if len(got.BlockedBy) != 1 || got.BlockedBy[0] != "task-000" {
		t.Errorf("BlockedBy mismatch: got %v", got.BlockedBy)
	}
	if got.StartedAt != nil || got.CompletedAt != nil {
		t.Errorf("expected nil timestamps, got started=%v completed=%v", got.StartedAt, got.CompletedAt)
	}
}

func TestGetTask_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	_, err := store.GetTask(context.Background(), "nonexistent")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateTask_Timestamps(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	task := testTask("task-001", TaskStatusAssigned, PriorityMedium)
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	started := time.Now().UTC().Truncate(time.Second)
	task.Status = TaskStatusInProgress
	task.StartedAt = &started
	if err := store.UpdateTask(ctx, task); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}

	got, err := store.GetTask(ctx, "task-001")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != TaskStatusInProgress {
		t.Errorf("Status mismatch: got %q", got.Status)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt mismatch: got %v, want %v", got.StartedAt, started)
	}
}

func TestUpdateTask_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	err := store.UpdateTask(context.Background(), testTask("nonexistent", TaskStatusInbox, PriorityLow))
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListTasks_Filters(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	seed := []*Task{
		testTask("task-001", TaskStatusInbox, PriorityLow),
		testTask("task-002", TaskStatusInProgress, PriorityHigh),
		testTask("task-003", TaskStatusInProgress, PriorityLow),
	}
	seed[1].AssigneeIDs = []string{"agent-001"}
	for _, task := range seed {
		if err := store.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask %s failed: %v", task.ID, err)
		}
	}

	all, err := store.ListTasks(ctx, TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 tasks, got %d", len(all))
	}

	inProgress, err := store.ListTasks(ctx, TaskFilter{Status: TaskStatusInProgress})
	if err != nil {
		t.Fatalf("ListTasks by status failed: %v", err)
	}
	if len(inProgress) != 2 {
		t.Errorf("expected 2 in_progress tasks, got %d", len(inProgress))
	}

	low, err := store.ListTasks(ctx, TaskFilter{Priority: PriorityLow})
	if err != nil {
		t.Fatalf("ListTasks by priority failed: %v", err)
	}
	if len(low) != 2 {
		t.Errorf("expected 2 low tasks, got %d", len(low))
	}

	mine, err := store.ListTasks(ctx, TaskFilter{AssigneeID: "agent-001"})
	if err != nil {
		t.Fatalf("ListTasks by assignee failed: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != "task-002" {
		t.Errorf("assignee filter returned wrong tasks: %v", taskIDs(mine))
	}
}

func TestDeleteTask_RemovesMessages(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.CreateTask(ctx, testTask("task-001", TaskStatusInbox, PriorityLow)); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	msg := &Message{
		ID:          "msg-001",
		TaskID:      "task-001",
		FromAgentID: "agent-001",
		Content:     "first",
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	if err := store.DeleteTask(ctx, "task-001"); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}

	if _, err := store.GetTask(ctx, "task-001"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	msgs, err := store.ListTaskMessages(ctx, "task-001", 0)
	if err != nil {
		t.Fatalf("ListTaskMessages failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages after task delete, got %d", len(msgs))
	}
}

func TestDeleteTask_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	err := store.DeleteTask(context.Background(), "nonexistent")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCountTasks(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	seed := []*Task{
		testTask("task-001", TaskStatusInbox, PriorityLow),
		testTask("task-002", TaskStatusInbox, PriorityHigh),
		testTask("task-003", TaskStatusDone, PriorityHigh),
	}
	for _, task := range seed {
		if err := store.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask %s failed: %v", task.ID, err)
		}
	}

	counts, err := store.CountTasks(ctx)
	if err != nil {
		t.Fatalf("CountTasks failed: %v", err)
	}
	if counts.ByStatus[TaskStatusInbox] != 2 {
		t.Errorf("inbox count: got %d, want 2", counts.ByStatus[TaskStatusInbox])
	}
	if counts.ByStatus[TaskStatusDone] != 1 {
		t.Errorf("done count: got %d, want 1", counts.ByStatus[TaskStatusDone])
	}
	if counts.ByPriority[PriorityHigh] != 2 {
		t.Errorf("high count: got %d, want 2", counts.ByPriority[PriorityHigh])
	}
}

func testTask(id, status, priority string) *Task {
	return &Task{
		ID:        id,
		Title:     "task " + id,
		Status:    status,
		Priority:  priority,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func taskIDs(tasks []*Task) []string {
	ids := make([]string, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}
	return ids
}
