// ABOUTME: Store interface and data types for troupe persistence
// ABOUTME: Defines Agent, Task, Message, Document, Activity, Notification and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateName is returned when creating an agent whose name is already taken
var ErrDuplicateName = errors.New("agent name already exists")

// Agent status constants
const (
	AgentStatusIdle    = "idle"
	AgentStatusActive  = "active"
	AgentStatusBlocked = "blocked"
	AgentStatusOffline = "offline"
)

// Task status constants
const (
	TaskStatusInbox      = "inbox"
	TaskStatusAssigned   = "assigned"
	TaskStatusInProgress = "in_progress"
	TaskStatusReview     = "review"
	TaskStatusDone       = "done"
	TaskStatusBlocked    = "blocked"
)

// Task priority constants
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Notification type constants
const (
	NotificationTypeMention    = "mention"
	NotificationTypeAssignment = "assignment"
)

// Agent represents one AI worker identity.
// CurrentTaskID is non-empty only while the agent is actively executing a task.
type Agent struct {
	ID            string
	Name          string
	Role          string
	Description   string
	Status        string // idle, active, blocked, offline
	CurrentTaskID string // empty when no task is running
	Specialties   []string
	LastHeartbeat *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Task represents a unit of work moving through the lifecycle state machine.
type Task struct {
	ID          string
	Title       string
	Description string
	Status      string // inbox, assigned, in_progress, review, done, blocked
	Priority    string // low, medium, high, urgent
	AssigneeIDs []string
	BlockedBy   []string // task ids this task is waiting on
	CreatedAt   time.Time
	StartedAt   *time.Time // set on first entry into in_progress
	CompletedAt *time.Time // set on entry into done
}

// Message is a comment attached to a task. The mention set is resolved from
// the content at creation time and never changes afterwards.
type Message struct {
	ID          string
	TaskID      string
	FromAgentID string
	Content     string
	Mentions    []string // resolved agent ids
	CreatedAt   time.Time
}

// Document is a shared deliverable with a monotonic version counter.
type Document struct {
	ID        string
	Title     string
	Content   string
	Type      string
	TaskID    string // empty when not attached to a task
	AuthorID  string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Activity is one immutable log entry. Seq is assigned by the store and
// breaks ties between entries sharing a created_at timestamp.
type Activity struct {
	ID        string
	Seq       int64
	Type      string
	AgentID   string
	TaskID    string // empty when not task-related
	Message   string
	CreatedAt time.Time
}

// Notification is a delivery obligation to one agent.
// Invariants: Delivered implies DeliveredAt set; Read implies Delivered.
type Notification struct {
	ID              string
	AgentID         string
	Type            string // mention, assignment
	SourceMessageID string
	Delivered       bool
	Read            bool
	CreatedAt       time.Time
	DeliveredAt     *time.Time
}

// TaskFilter narrows ListTasks results. Zero values mean no filtering.
type TaskFilter struct {
	Status     string
	Priority   string
	AssigneeID string
}

// NotificationFilter narrows ListNotifications results.
// Nil pointers mean no filtering on that flag.
type NotificationFilter struct {
	Delivered *bool
	Read      *bool
}

// TaskCounts holds aggregate task counts for the stats endpoint.
type TaskCounts struct {
	ByStatus   map[string]int
	ByPriority map[string]int
}

// Store defines the interface for troupe persistence.
// Implementations must make every method safe for concurrent use and every
// write atomic: a crashed process never leaves a partial record behind.
type Store interface {
	// Agents
	CreateAgent(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	GetAgentByName(ctx context.Context, name string) (*Agent, error)
	ListAgents(ctx context.Context) ([]*Agent, error)
	UpdateAgent(ctx context.Context, agent *Agent) error
	DeleteAgent(ctx context.Context, id string) error

	// Tasks
	CreateTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error)
	UpdateTask(ctx context.Context, task *Task) error
	DeleteTask(ctx context.Context, id string) error
	CountTasks(ctx context.Context) (*TaskCounts, error)

	// Messages
	SaveMessage(ctx context.Context, msg *Message) error
	ListTaskMessages(ctx context.Context, taskID string, limit int) ([]*Message, error)

	// Documents
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context, taskID string) ([]*Document, error)
	// UpdateDocumentContent replaces title/content and bumps the version
	// counter in a single atomic statement. Returns the updated document.
	UpdateDocumentContent(ctx context.Context, id, title, content string) (*Document, error)

	// Activities (append-only; no update or delete exists)
	AppendActivity(ctx context.Context, entry *Activity) error
	ListActivities(ctx context.Context, limit int) ([]*Activity, error)

	// Notifications
	CreateNotification(ctx context.Context, n *Notification) error
	GetNotification(ctx context.Context, id string) (*Notification, error)
	ListNotifications(ctx context.Context, agentID string, filter NotificationFilter) ([]*Notification, error)
	// MarkNotificationDelivered and MarkNotificationRead are idempotent and
	// monotonic: repeated calls are no-ops and flags never reset to false.
	MarkNotificationDelivered(ctx context.Context, id string) error
	MarkNotificationRead(ctx context.Context, id string) error
	CountUnreadMentions(ctx context.Context, agentID string) (int, error)

	// Close releases any resources held by the store
	Close() error
}
