// ABOUTME: Task lifecycle manager: creation, assignment, and the status state machine
// ABOUTME: Validates transitions, stamps lifecycle timestamps, and fans out assignment notifications

package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/troupe/internal/activity"
	"github.com/2389/troupe/internal/store"
)

// ErrInvalidTransition is returned for a status change not permitted by the
// state machine. The task is left unchanged.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrTaskRunning is returned when deleting a task with a live execution.
var ErrTaskRunning = errors.New("task has a running execution")

// ErrNoAssignees is returned when assigning a task to an empty agent set.
var ErrNoAssignees = errors.New("at least one assignee is required")

// ErrEmptyTitle is returned when creating a task without a title.
var ErrEmptyTitle = errors.New("task title is required")

// ErrUnknownPriority is returned for a priority outside the known set.
var ErrUnknownPriority = errors.New("unknown priority")

// ErrUnknownStatus is returned for a status outside the known set.
var ErrUnknownStatus = errors.New("unknown task status")

// transitions is the edge table of the task state machine. done is terminal.
// Any non-terminal status may additionally move to blocked.
var transitions = map[string][]string{
	store.TaskStatusInbox:      {store.TaskStatusAssigned},
	store.TaskStatusAssigned:   {store.TaskStatusInProgress},
	store.TaskStatusInProgress: {store.TaskStatusReview, store.TaskStatusBlocked},
	store.TaskStatusReview:     {store.TaskStatusDone, store.TaskStatusInProgress},
	store.TaskStatusBlocked:    {store.TaskStatusAssigned},
	store.TaskStatusDone:       {},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to string) bool {
	if from == store.TaskStatusDone {
		return false
	}
	if to == store.TaskStatusBlocked {
		return true
	}
	return slices.Contains(transitions[from], to)
}

// HeartbeatTrigger performs an out-of-band work check for one agent.
// The heartbeat daemon satisfies this; it is wired in after construction.
type HeartbeatTrigger interface {
	TriggerHeartbeat(ctx context.Context, agentID string)
}

// ExecutionChecker reports whether a task currently has a live execution.
type ExecutionChecker interface {
	IsRunning(taskID string) bool
}

// Manager owns the task lifecycle.
type Manager struct {
	store    store.Store
	activity *activity.Log
	trigger  HeartbeatTrigger
	checker  ExecutionChecker
	logger   *slog.Logger
}

// New creates a task lifecycle manager.
func New(st store.Store, log *activity.Log) *Manager {
	return &Manager{
		store:    st,
		activity: log,
		logger:   slog.Default().With("component", "tasks"),
	}
}

// SetHeartbeatTrigger wires in the out-of-band heartbeat check used after
// assignment. Optional: without it, assignees wait for the next timer tick.
func (m *Manager) SetHeartbeatTrigger(t HeartbeatTrigger) {
	m.trigger = t
}

// SetExecutionChecker wires in the running-task check used by Delete.
func (m *Manager) SetExecutionChecker(c ExecutionChecker) {
	m.checker = c
}

// Create adds a new task in inbox status. An empty priority defaults to
// medium; an unknown priority is rejected.
func (m *Manager) Create(ctx context.Context, title, description, priority string, blockedBy []string) (*store.Task, error) {
	if strings.TrimSpace(title) == "" {
		return nil, ErrEmptyTitle
	}
	if priority == "" {
		priority = store.PriorityMedium
	}
	switch priority {
	case store.PriorityLow, store.PriorityMedium, store.PriorityHigh, store.PriorityUrgent:
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownPriority, priority)
	}

	task := &store.Task{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Status:      store.TaskStatusInbox,
		Priority:    priority,
		BlockedBy:   blockedBy,
		CreatedAt:   time.Now().UTC(),
	}

	if err := m.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	if _, err := m.activity.Record(ctx, activity.TypeTaskCreated, "", task.ID,
		fmt.Sprintf("Task %q created (%s)", task.Title, task.Priority)); err != nil {
		m.logger.Warn("failed to record task creation", "task_id", task.ID, "error", err)
	}

	m.logger.Info("task created", "id", task.ID, "title", task.Title, "priority", task.Priority)
	return task, nil
}

// Get retrieves a task by ID.
func (m *Manager) Get(ctx context.Context, id string) (*store.Task, error) {
	return m.store.GetTask(ctx, id)
}

// List returns tasks matching the filter, newest first.
func (m *Manager) List(ctx context.Context, filter store.TaskFilter) ([]*store.Task, error) {
	return m.store.ListTasks(ctx, filter)
}

// Assign replaces the task's assignee set. Every assignee must be a known
// agent. An inbox task moves to assigned; newly added assignees each get an
// assignment notification and an immediate out-of-band heartbeat check.
func (m *Manager) Assign(ctx context.Context, taskID string, assigneeIDs []string) (*store.Task, error) {
	if len(assigneeIDs) == 0 {
		return nil, ErrNoAssignees
	}

	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(assigneeIDs))
	for _, agentID := range assigneeIDs {
		agent, err := m.store.GetAgent(ctx, agentID)
		if err != nil {
			return nil, fmt.Errorf("assignee %s: %w", agentID, err)
		}
		names = append(names, agent.Name)
	}

	previous := task.AssigneeIDs
	task.AssigneeIDs = assigneeIDs
	if task.Status == store.TaskStatusInbox {
		task.Status = store.TaskStatusAssigned
	}

	if err := m.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}

	if _, err := m.activity.Record(ctx, activity.TypeTaskAssigned, "", task.ID,
		fmt.Sprintf("Task %q assigned to %s", task.Title, strings.Join(names, ", "))); err != nil {
		m.logger.Warn("failed to record assignment", "task_id", task.ID, "error", err)
	}

	for _, agentID := range assigneeIDs {
		if slices.Contains(previous, agentID) {
			continue
		}
		n := &store.Notification{
			ID:        uuid.New().String(),
			AgentID:   agentID,
			Type:      store.NotificationTypeAssignment,
			CreatedAt: time.Now().UTC(),
		}
		if err := m.store.CreateNotification(ctx, n); err != nil {
			m.logger.Warn("failed to create assignment notification",
				"task_id", task.ID, "agent_id", agentID, "error", err)
		}
		if m.trigger != nil {
			m.trigger.TriggerHeartbeat(ctx, agentID)
		}
	}

	m.logger.Info("task assigned", "id", task.ID, "assignees", assigneeIDs)
	return task, nil
}

// UpdateStatus attempts a status transition. An illegal edge returns
// ErrInvalidTransition and leaves the task untouched. started_at is stamped
// on first entry into in_progress, completed_at on entry into done.
// agentID attributes the change in the activity log; empty means the change
// came from outside any agent (an operator or the system).
func (m *Manager) UpdateStatus(ctx context.Context, taskID, newStatus, agentID string) (*store.Task, error) {
	switch newStatus {
	case store.TaskStatusInbox, store.TaskStatusAssigned, store.TaskStatusInProgress,
		store.TaskStatusReview, store.TaskStatusDone, store.TaskStatusBlocked:
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownStatus, newStatus)
	}

	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(task.Status, newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, task.Status, newStatus)
	}

	oldStatus := task.Status
	task.Status = newStatus
	now := time.Now().UTC()
	if newStatus == store.TaskStatusInProgress && task.StartedAt == nil {
		task.StartedAt = &now
	}
	if newStatus == store.TaskStatusDone {
		task.CompletedAt = &now
	}

	if err := m.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}

	if _, err := m.activity.Record(ctx, activity.TypeStatusChanged, agentID, task.ID,
		fmt.Sprintf("Task %q moved %s -> %s", task.Title, oldStatus, newStatus)); err != nil {
		m.logger.Warn("failed to record status change", "task_id", task.ID, "error", err)
	}

	m.logger.Info("task status changed", "id", task.ID, "from", oldStatus, "to", newStatus, "agent_id", agentID)
	return task, nil
}

// Delete removes a task and its messages. Returns ErrTaskRunning while the
// task has a live execution.
func (m *Manager) Delete(ctx context.Context, taskID string) error {
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	if m.checker != nil && m.checker.IsRunning(taskID) {
		return ErrTaskRunning
	}

	if err := m.store.DeleteTask(ctx, taskID); err != nil {
		return err
	}

	if _, err := m.activity.Record(ctx, activity.TypeTaskDeleted, "", taskID,
		fmt.Sprintf("Task %q deleted", task.Title)); err != nil {
		m.logger.Warn("failed to record task deletion", "task_id", taskID, "error", err)
	}

	m.logger.Info("task deleted", "id", taskID)
	return nil
}

// Stats returns aggregate task counts by status and priority.
func (m *Manager) Stats(ctx context.Context) (*store.TaskCounts, error) {
	return m.store.CountTasks(ctx)
}
