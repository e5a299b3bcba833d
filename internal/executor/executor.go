// ABOUTME: Task executor: claims exclusive execution rights and drives the runner
// ABOUTME: Streams chunks through the bus and settles task/agent state on completion

package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/troupe/internal/activity"
	"github.com/2389/troupe/internal/bus"
	"github.com/2389/troupe/internal/metrics"
	"github.com/2389/troupe/internal/runner"
	"github.com/2389/troupe/internal/store"
	"github.com/2389/troupe/internal/tasks"
)

// ErrAlreadyRunning is returned when a task already has a live execution.
var ErrAlreadyRunning = errors.New("task already has a running execution")

// ErrNotRunnable is returned when the task's status does not permit a claim.
var ErrNotRunnable = errors.New("task is not in a runnable status")

// Terminal statuses carried on the task_completed event.
const (
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusStopped   = "stopped"
)

// promptMessageLimit bounds how much recent discussion goes into the prompt.
const promptMessageLimit = 20

// handle is one live execution claim. It exists only in memory: a process
// restart loses all claims (RecoverStale repairs the orphaned tasks).
type handle struct {
	taskID  string
	agentID string
	cancel  context.CancelFunc
	done    chan struct{}

	mu         sync.Mutex
	stopped    bool
	transcript []runner.Chunk
}

func (h *handle) appendChunk(c runner.Chunk) {
	h.mu.Lock()
	h.transcript = append(h.transcript, c)
	h.mu.Unlock()
}

func (h *handle) markStopped() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
}

func (h *handle) wasStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// RunningInfo describes one live execution for the API.
type RunningInfo struct {
	TaskID    string    `json:"task_id"`
	AgentID   string    `json:"agent_id"`
	StartedAt time.Time `json:"started_at"`
}

// Executor owns the transient execution-handle table. At most one live
// execution exists per task ID; the claim is acquired atomically under the
// table mutex before any state changes happen.
type Executor struct {
	store    store.Store
	bus      *bus.Bus
	activity *activity.Log
	runner   runner.Runner
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	running  map[string]*handle
	started  map[string]time.Time
	lastRuns map[string][]runner.Chunk
}

// New creates a task executor.
func New(st store.Store, b *bus.Bus, log *activity.Log, r runner.Runner, m *metrics.Metrics) *Executor {
	return &Executor{
		store:    st,
		bus:      b,
		activity: log,
		runner:   r,
		metrics:  m,
		logger:   slog.Default().With("component", "executor"),
		running:  make(map[string]*handle),
		started:  make(map[string]time.Time),
		lastRuns: make(map[string][]runner.Chunk),
	}
}

// Execute starts running a task with an agent. Returns ErrAlreadyRunning if
// the task has a live execution; no task or agent state changes in that case.
// In background mode Execute returns once the run is underway; otherwise it
// blocks until the run settles.
func (e *Executor) Execute(ctx context.Context, taskID, agentID string, background bool) error {
	// A live run holds the task in in_progress, so the claim table must be
	// consulted before the status gate: a double run is a conflict on the
	// execution, not a bad transition.
	e.mu.Lock()
	_, live := e.running[taskID]
	e.mu.Unlock()
	if live {
		return ErrAlreadyRunning
	}

	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	agent, err := e.store.GetAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("agent %s: %w", agentID, err)
	}
	if !tasks.CanTransition(task.Status, store.TaskStatusInProgress) {
		return fmt.Errorf("%w: status is %s", ErrNotRunnable, task.Status)
	}

	// Claim is atomic check-and-set under the table lock.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &handle{
		taskID:  taskID,
		agentID: agentID,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	e.mu.Lock()
	if _, live := e.running[taskID]; live {
		e.mu.Unlock()
		cancel()
		return ErrAlreadyRunning
	}
	e.running[taskID] = h
	e.started[taskID] = time.Now().UTC()
	e.mu.Unlock()

	if err := e.markStarted(ctx, task, agent); err != nil {
		e.release(h)
		cancel()
		return err
	}

	prompt, promptCtx := e.buildPrompt(ctx, task)
	req := runner.Request{
		TaskID:    taskID,
		AgentID:   agentID,
		AgentName: agent.Name,
		Prompt:    prompt,
		Context:   promptCtx,
	}

	stream, err := e.runner.Run(runCtx, req)
	if err != nil {
		e.settle(context.WithoutCancel(ctx), h, StatusError, fmt.Sprintf("starting runner: %v", err))
		e.release(h)
		cancel()
		close(h.done)
		return nil
	}

	e.metrics.ExecutionsStarted.Inc()
	e.metrics.RunningExecutions.Inc()

	startedEvent := bus.New(bus.EventTaskStarted)
	startedEvent.TaskStarted = &bus.TaskStarted{
		TaskID:    taskID,
		AgentID:   agentID,
		AgentName: agent.Name,
		TaskTitle: task.Title,
	}
	e.bus.Publish(startedEvent)
	e.metrics.EventsPublished.Inc()

	go e.consume(h, stream)

	if !background {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.done:
		}
	}
	return nil
}

// consume drains the chunk stream and settles the run. It is the only place
// that publishes the terminal task_completed event, so exactly one terminal
// event exists per run.
func (e *Executor) consume(h *handle, stream <-chan runner.Chunk) {
	// A fresh context: the claim must be released and state settled even
	// though the run context is already cancelled.
	settleCtx := context.Background()

	status := StatusCompleted
	errMsg := ""

	for chunk := range stream {
		if chunk.Terminal() {
			if chunk.Kind == runner.ChunkError {
				status = StatusError
				errMsg = chunk.Error
			}
			break
		}

		h.appendChunk(chunk)
		event := bus.New(bus.EventTaskOutput)
		event.TaskOutput = &bus.TaskOutput{
			TaskID:     h.taskID,
			Content:    chunk.Content,
			OutputType: chunk.Kind,
		}
		e.bus.Publish(event)
		e.metrics.EventsPublished.Inc()
	}

	if h.wasStopped() {
		status = StatusStopped
		errMsg = ""
	}

	e.settle(settleCtx, h, status, errMsg)
	e.release(h)
	h.cancel()
	e.metrics.RunningExecutions.Dec()
	close(h.done)
}

// settle writes the terminal task/agent state and publishes task_completed.
func (e *Executor) settle(ctx context.Context, h *handle, status, errMsg string) {
	taskStatus := store.TaskStatusDone
	if status != StatusCompleted {
		taskStatus = store.TaskStatusBlocked
	}

	if task, err := e.store.GetTask(ctx, h.taskID); err != nil {
		e.logger.Error("settling run: task lookup failed", "task_id", h.taskID, "error", err)
	} else {
		task.Status = taskStatus
		now := time.Now().UTC()
		if taskStatus == store.TaskStatusDone {
			task.CompletedAt = &now
		}
		if err := e.store.UpdateTask(ctx, task); err != nil {
			e.logger.Error("settling run: task update failed", "task_id", h.taskID, "error", err)
		}
	}

	if agent, err := e.store.GetAgent(ctx, h.agentID); err != nil {
		e.logger.Error("settling run: agent lookup failed", "agent_id", h.agentID, "error", err)
	} else {
		agent.Status = store.AgentStatusIdle
		agent.CurrentTaskID = ""
		agent.UpdatedAt = time.Now().UTC()
		if err := e.store.UpdateAgent(ctx, agent); err != nil {
			e.logger.Error("settling run: agent update failed", "agent_id", h.agentID, "error", err)
		}
	}

	message := fmt.Sprintf("Execution %s for task %s", status, h.taskID)
	if errMsg != "" {
		message = fmt.Sprintf("Execution %s for task %s: %s", status, h.taskID, errMsg)
	}
	if _, err := e.activity.Record(ctx, activity.TypeExecutionEvent, h.agentID, h.taskID, message); err != nil {
		e.logger.Warn("failed to record execution outcome", "task_id", h.taskID, "error", err)
	}

	event := bus.New(bus.EventTaskCompleted)
	event.TaskCompleted = &bus.TaskCompleted{
		TaskID:  h.taskID,
		AgentID: h.agentID,
		Status:  status,
		Error:   errMsg,
	}
	e.bus.Publish(event)
	e.metrics.EventsPublished.Inc()
	e.metrics.ExecutionsCompleted.WithLabelValues(status).Inc()

	e.logger.Info("execution settled", "task_id", h.taskID, "agent_id", h.agentID, "status", status)
}

// markStarted transitions the task to in_progress and the agent to active.
func (e *Executor) markStarted(ctx context.Context, task *store.Task, agent *store.Agent) error {
	now := time.Now().UTC()
	task.Status = store.TaskStatusInProgress
	if task.StartedAt == nil {
		task.StartedAt = &now
	}
	if err := e.store.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("marking task in progress: %w", err)
	}

	agent.Status = store.AgentStatusActive
	agent.CurrentTaskID = task.ID
	agent.UpdatedAt = now
	if err := e.store.UpdateAgent(ctx, agent); err != nil {
		return fmt.Errorf("marking agent active: %w", err)
	}
	return nil
}

// buildPrompt assembles the run prompt from the task plus recent messages.
func (e *Executor) buildPrompt(ctx context.Context, task *store.Task) (prompt, promptCtx string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s", task.Title)
	if task.Description != "" {
		fmt.Fprintf(&b, "\n\n%s", task.Description)
	}

	msgs, err := e.store.ListTaskMessages(ctx, task.ID, promptMessageLimit)
	if err != nil {
		e.logger.Warn("failed to load messages for prompt", "task_id", task.ID, "error", err)
		return b.String(), ""
	}
	if len(msgs) == 0 {
		return b.String(), ""
	}

	var cb strings.Builder
	for _, msg := range msgs {
		fmt.Fprintf(&cb, "[%s] %s\n", msg.FromAgentID, msg.Content)
	}
	return b.String(), cb.String()
}

// Stop cancels a live execution. A no-op when the task is not running: stop
// is idempotent from the caller's point of view.
func (e *Executor) Stop(taskID string) {
	e.mu.Lock()
	h, live := e.running[taskID]
	e.mu.Unlock()
	if !live {
		return
	}

	h.markStopped()
	h.cancel()
	e.logger.Info("execution stop requested", "task_id", taskID)
}

// IsRunning reports whether a task has a live execution handle.
func (e *Executor) IsRunning(taskID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, live := e.running[taskID]
	return live
}

// ListRunning returns the live execution handles.
func (e *Executor) ListRunning() []RunningInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	infos := make([]RunningInfo, 0, len(e.running))
	for taskID, h := range e.running {
		infos = append(infos, RunningInfo{
			TaskID:    taskID,
			AgentID:   h.agentID,
			StartedAt: e.started[taskID],
		})
	}
	return infos
}

// Transcript returns the chunks collected for a task's live run, or the
// retained transcript of its most recent finished run.
func (e *Executor) Transcript(taskID string) []runner.Chunk {
	e.mu.Lock()
	defer e.mu.Unlock()

	if h, live := e.running[taskID]; live {
		h.mu.Lock()
		out := make([]runner.Chunk, len(h.transcript))
		copy(out, h.transcript)
		h.mu.Unlock()
		return out
	}
	return e.lastRuns[taskID]
}

// Wait blocks until the task's live run settles. Returns immediately when
// nothing is running.
func (e *Executor) Wait(ctx context.Context, taskID string) error {
	e.mu.Lock()
	h, live := e.running[taskID]
	e.mu.Unlock()
	if !live {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return nil
	}
}

// release drops the claim and retains the transcript for later inspection.
func (e *Executor) release(h *handle) {
	h.mu.Lock()
	transcript := h.transcript
	h.mu.Unlock()

	e.mu.Lock()
	delete(e.running, h.taskID)
	delete(e.started, h.taskID)
	e.lastRuns[h.taskID] = transcript
	e.mu.Unlock()
}

// RecoverStale repairs tasks stuck in in_progress from a previous process:
// the execution claim table is memory-only, so a restart mid-run leaves the
// task in_progress with no live executor. Such tasks move to blocked.
func (e *Executor) RecoverStale(ctx context.Context) error {
	stale, err := e.store.ListTasks(ctx, store.TaskFilter{Status: store.TaskStatusInProgress})
	if err != nil {
		return fmt.Errorf("listing in-progress tasks: %w", err)
	}

	for _, task := range stale {
		if e.IsRunning(task.ID) {
			continue
		}
		task.Status = store.TaskStatusBlocked
		if err := e.store.UpdateTask(ctx, task); err != nil {
			e.logger.Error("failed to recover stale task", "task_id", task.ID, "error", err)
			continue
		}
		if _, err := e.activity.Record(ctx, activity.TypeExecutionEvent, "", task.ID,
			fmt.Sprintf("Task %q found in progress with no live execution; moved to blocked", task.Title)); err != nil {
			e.logger.Warn("failed to record stale recovery", "task_id", task.ID, "error", err)
		}
		e.logger.Warn("recovered stale in-progress task", "task_id", task.ID)
	}
	return nil
}
