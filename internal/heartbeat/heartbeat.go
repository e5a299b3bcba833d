// ABOUTME: Heartbeat daemon: recurring single-flight sweep over all agents
// ABOUTME: Computes per-agent work summaries and adjusts idle/active status

package heartbeat

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/troupe/internal/bus"
	"github.com/2389/troupe/internal/metrics"
	"github.com/2389/troupe/internal/store"
)

const (
	// DefaultInterval between sweeps.
	DefaultInterval = 15 * time.Minute
	// defaultParallelism bounds concurrent per-agent checks within a sweep.
	defaultParallelism = 4
	// summaryBufferSize is the capacity of the Summaries channel. When no
	// consumer keeps up, older summaries are dropped rather than blocking
	// the sweep.
	summaryBufferSize = 256
)

// Summary is one agent's work summary from a heartbeat check.
type Summary struct {
	AgentID        string
	AgentName      string
	UnreadMentions int
	AssignedTasks  int
	HasUrgentWork  bool
	CheckedAt      time.Time
}

// ExecutionChecker reports whether a task currently has a live execution.
type ExecutionChecker interface {
	IsRunning(taskID string) bool
}

// Daemon sweeps all registered agents on a timer. Sweeps never overlap: a
// tick that fires while the previous sweep is still running is skipped.
type Daemon struct {
	store       store.Store
	bus         *bus.Bus
	checker     ExecutionChecker
	metrics     *metrics.Metrics
	interval    time.Duration
	parallelism int
	logger      *slog.Logger

	busy      atomic.Bool
	summaries chan Summary
}

// New creates a heartbeat daemon. A non-positive interval uses the default.
func New(st store.Store, b *bus.Bus, m *metrics.Metrics, interval time.Duration) *Daemon {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Daemon{
		store:       st,
		bus:         b,
		metrics:     m,
		interval:    interval,
		parallelism: defaultParallelism,
		logger:      slog.Default().With("component", "heartbeat"),
		summaries:   make(chan Summary, summaryBufferSize),
	}
}

// SetExecutionChecker wires in the running-task check.
func (d *Daemon) SetExecutionChecker(c ExecutionChecker) {
	d.checker = c
}

// SetParallelism bounds concurrent per-agent checks within a sweep.
// Non-positive values keep the default.
func (d *Daemon) SetParallelism(n int) {
	if n > 0 {
		d.parallelism = n
	}
}

// Summaries exposes the per-agent summaries as a bounded channel. Any number
// of consumers may drain it; a full channel drops summaries silently.
func (d *Daemon) Summaries() <-chan Summary {
	return d.summaries
}

// Run sweeps on the configured interval until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) {
	d.logger.Info("heartbeat daemon started", "interval", d.interval)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("heartbeat daemon stopped")
			return
		case <-ticker.C:
			d.Sweep(ctx)
		}
	}
}

// Sweep checks every agent once. Returns immediately when a sweep is already
// in flight: ticks are skipped, never queued.
func (d *Daemon) Sweep(ctx context.Context) {
	if !d.busy.CompareAndSwap(false, true) {
		d.metrics.HeartbeatSkips.Inc()
		d.logger.Debug("sweep skipped, previous still running")
		return
	}
	defer d.busy.Store(false)

	d.metrics.HeartbeatTicks.Inc()

	agents, err := d.store.ListAgents(ctx)
	if err != nil {
		d.logger.Error("sweep aborted, agent list failed", "error", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallelism)
	for _, agent := range agents {
		g.Go(func() error {
			// A failed check is logged, never propagated: one broken agent
			// must not abort the rest of the sweep.
			if err := d.checkAgent(gctx, agent.ID); err != nil {
				d.logger.Error("agent check failed", "agent_id", agent.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	d.logger.Debug("sweep finished", "agents", len(agents))
}

// TriggerHeartbeat checks one agent out of band, without waiting for the
// timer. Used right after task assignment.
func (d *Daemon) TriggerHeartbeat(ctx context.Context, agentID string) {
	if err := d.checkAgent(ctx, agentID); err != nil {
		d.logger.Error("triggered check failed", "agent_id", agentID, "error", err)
	}
}

// checkAgent computes the work summary for one agent, adjusts its status,
// stamps last_heartbeat, and fans the summary out.
func (d *Daemon) checkAgent(ctx context.Context, agentID string) error {
	agent, err := d.store.GetAgent(ctx, agentID)
	if err != nil {
		return err
	}

	unread, err := d.store.CountUnreadMentions(ctx, agentID)
	if err != nil {
		return err
	}

	assigned, err := d.store.ListTasks(ctx, store.TaskFilter{AssigneeID: agentID})
	if err != nil {
		return err
	}
	open := 0
	for _, task := range assigned {
		if task.Status != store.TaskStatusDone {
			open++
		}
	}

	now := time.Now().UTC()
	summary := Summary{
		AgentID:        agent.ID,
		AgentName:      agent.Name,
		UnreadMentions: unread,
		AssignedTasks:  open,
		HasUrgentWork:  unread > 0,
		CheckedAt:      now,
	}

	executing := agent.CurrentTaskID != "" && d.checker != nil && d.checker.IsRunning(agent.CurrentTaskID)

	agent.LastHeartbeat = &now
	switch {
	case executing:
		// Mid-run state belongs to the executor; only the timestamp moves.
	case summary.HasUrgentWork:
		agent.Status = store.AgentStatusActive
	default:
		agent.Status = store.AgentStatusIdle
	}
	agent.UpdatedAt = now

	if err := d.store.UpdateAgent(ctx, agent); err != nil {
		return err
	}

	select {
	case d.summaries <- summary:
	default:
		d.logger.Debug("summary dropped, channel full", "agent_id", agent.ID)
	}

	event := bus.New(bus.EventHeartbeatSummary)
	event.HeartbeatSummary = &bus.HeartbeatSummary{
		AgentID:        summary.AgentID,
		AgentName:      summary.AgentName,
		UnreadMentions: summary.UnreadMentions,
		AssignedTasks:  summary.AssignedTasks,
		HasUrgentWork:  summary.HasUrgentWork,
	}
	d.bus.Publish(event)
	d.metrics.EventsPublished.Inc()

	return nil
}
