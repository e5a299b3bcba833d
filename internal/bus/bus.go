// ABOUTME: In-memory fan-out event bus for server-wide awareness
// ABOUTME: Publishes typed events to all subscribers over buffered channels

package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// EventType discriminates the Event variant.
type EventType string

const (
	EventTaskStarted      EventType = "task_started"
	EventTaskOutput       EventType = "task_output"
	EventTaskCompleted    EventType = "task_completed"
	EventActivityCreated  EventType = "activity_created"
	EventHeartbeatSummary EventType = "heartbeat_summary"
)

// TaskStarted announces that an agent began executing a task.
type TaskStarted struct {
	TaskID    string `json:"task_id"`
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	TaskTitle string `json:"task_title"`
}

// TaskOutput carries one streamed output chunk from a running execution.
type TaskOutput struct {
	TaskID     string `json:"task_id"`
	Content    string `json:"content"`
	OutputType string `json:"output_type"` // message, tool_use, tool_result
}

// TaskCompleted is the single terminal event of an execution.
type TaskCompleted struct {
	TaskID  string `json:"task_id"`
	AgentID string `json:"agent_id"`
	Status  string `json:"status"` // completed, error, stopped
	Error   string `json:"error,omitempty"`
}

// ActivityCreated announces a new activity log entry.
type ActivityCreated struct {
	ActivityID string `json:"activity_id"`
	Type       string `json:"type"`
	AgentID    string `json:"agent_id,omitempty"`
	TaskID     string `json:"task_id,omitempty"`
	Message    string `json:"message"`
}

// HeartbeatSummary reports one agent's work summary from a heartbeat check.
type HeartbeatSummary struct {
	AgentID        string `json:"agent_id"`
	AgentName      string `json:"agent_name"`
	UnreadMentions int    `json:"unread_mentions"`
	AssignedTasks  int    `json:"assigned_tasks"`
	HasUrgentWork  bool   `json:"has_urgent_work"`
}

// Event is a tagged variant: Type names the case and exactly one of the
// payload pointers is non-nil.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	TaskStarted      *TaskStarted      `json:"task_started,omitempty"`
	TaskOutput       *TaskOutput       `json:"task_output,omitempty"`
	TaskCompleted    *TaskCompleted    `json:"task_completed,omitempty"`
	ActivityCreated  *ActivityCreated  `json:"activity_created,omitempty"`
	HeartbeatSummary *HeartbeatSummary `json:"heartbeat_summary,omitempty"`
}

// New builds an event envelope with a fresh ID and timestamp.
func New(t EventType) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now().UTC(),
	}
}

// Bus provides in-memory pub/sub for server events. All subscribers see all
// events; each subscriber's channel is FIFO with respect to publish order.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan *Event // subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewBus creates a bus. Pass nil logger for default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string]chan *Event),
		logger:      logger.With("component", "bus"),
	}
}

// Subscribe registers a subscriber. Returns a channel that receives events
// and a subscription ID for later unsubscription. The subscription is
// automatically cleaned up when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *Event, string) {
	subID := uuid.New().String()
	ch := make(chan *Event, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish sends an event to all subscribers.
// Non-blocking: events are dropped for subscribers whose channels are full.
// Sends happen under the read lock; Unsubscribe and Close take the write
// lock, so a channel is never closed mid-send.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber channel full — drop event for this subscriber
			b.logger.Debug("dropped event for slow subscriber",
				"event_type", event.Type,
				"event_id", event.ID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, exists := b.subscribers[subID]
	if !exists {
		return
	}

	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close shuts down the bus and closes all subscriber channels.
// Publishing after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
	}

	b.logger.Debug("bus closed")
}
