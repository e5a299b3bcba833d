// ABOUTME: Append-only activity log service
// ABOUTME: Persists entries through the store then announces them on the bus

package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/troupe/internal/bus"
	"github.com/2389/troupe/internal/store"
)

// Entry type constants
const (
	TypeAgentCreated   = "agent_created"
	TypeAgentUpdated   = "agent_updated"
	TypeAgentDeleted   = "agent_deleted"
	TypeTaskCreated    = "task_created"
	TypeTaskAssigned   = "task_assigned"
	TypeTaskDeleted    = "task_deleted"
	TypeStatusChanged  = "status_changed"
	TypeMessagePosted  = "message_posted"
	TypeExecutionEvent = "execution"
	TypeHeartbeat      = "heartbeat"
	TypeDocumentSaved  = "document_saved"
)

// Log records what happened in the system. Entries are immutable: there is
// no way to edit or remove one once written.
type Log struct {
	store  store.Store
	bus    *bus.Bus
	logger *slog.Logger
}

// NewLog creates an activity log backed by the given store and bus.
func NewLog(st store.Store, b *bus.Bus) *Log {
	return &Log{
		store:  st,
		bus:    b,
		logger: slog.Default().With("component", "activity"),
	}
}

// Record appends one entry and publishes it. The bus publish happens only
// after the store write succeeds, so subscribers never see an entry that
// failed to persist.
func (l *Log) Record(ctx context.Context, entryType, agentID, taskID, message string) (*store.Activity, error) {
	entry := &store.Activity{
		ID:        uuid.New().String(),
		Type:      entryType,
		AgentID:   agentID,
		TaskID:    taskID,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}

	if err := l.store.AppendActivity(ctx, entry); err != nil {
		return nil, fmt.Errorf("recording activity: %w", err)
	}

	event := bus.New(bus.EventActivityCreated)
	event.ActivityCreated = &bus.ActivityCreated{
		ActivityID: entry.ID,
		Type:       entry.Type,
		AgentID:    entry.AgentID,
		TaskID:     entry.TaskID,
		Message:    entry.Message,
	}
	l.bus.Publish(event)

	return entry, nil
}

// Feed returns the most recent entries, newest first.
func (l *Log) Feed(ctx context.Context, limit int) ([]*store.Activity, error) {
	return l.store.ListActivities(ctx, limit)
}
