// ABOUTME: Mention parsing and notification service
// ABOUTME: Resolves @name tokens in message content and fans out mention notifications

package mentions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/troupe/internal/activity"
	"github.com/2389/troupe/internal/store"
)

// ErrEmptyContent is returned when posting a message with no content.
var ErrEmptyContent = errors.New("message content is required")

// tokenPattern matches @name tokens. Name characters follow the agent name
// alphabet, so punctuation after a mention is not swallowed.
var tokenPattern = regexp.MustCompile(`@([A-Za-z0-9_-]+)`)

// ParseMentions resolves the @name tokens in content against the known agent
// names. The special token @all expands to every assignee except the sender.
// Matching is case-insensitive. The result is a pure function of its inputs:
// deduplicated, order of first occurrence, sender excluded from @all but not
// from a direct mention.
func ParseMentions(content, senderID string, namesToIDs map[string]string, assigneeIDs []string) []string {
	var mentioned []string
	seen := make(map[string]bool)
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			mentioned = append(mentioned, id)
		}
	}

	for _, match := range tokenPattern.FindAllStringSubmatch(content, -1) {
		token := strings.ToLower(match[1])
		if token == "all" {
			for _, id := range assigneeIDs {
				if id != senderID {
					add(id)
				}
			}
			continue
		}
		if id, ok := namesToIDs[token]; ok {
			add(id)
		}
	}
	return mentioned
}

// Service posts task messages and manages the notifications they produce.
type Service struct {
	store    store.Store
	activity *activity.Log
	logger   *slog.Logger
}

// New creates a mention service.
func New(st store.Store, log *activity.Log) *Service {
	return &Service{
		store:    st,
		activity: log,
		logger:   slog.Default().With("component", "mentions"),
	}
}

// PostMessage stores a message on a task, resolves its mention set, and
// creates one mention notification per resolved agent. The mention set is
// fixed at creation time; later renames do not change it.
func (s *Service) PostMessage(ctx context.Context, taskID, fromAgentID, content string) (*store.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	sender, err := s.store.GetAgent(ctx, fromAgentID)
	if err != nil {
		return nil, fmt.Errorf("sender %s: %w", fromAgentID, err)
	}

	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	namesToIDs := make(map[string]string, len(agents))
	for _, a := range agents {
		namesToIDs[strings.ToLower(a.Name)] = a.ID
	}

	msg := &store.Message{
		ID:          uuid.New().String(),
		TaskID:      taskID,
		FromAgentID: fromAgentID,
		Content:     content,
		Mentions:    ParseMentions(content, fromAgentID, namesToIDs, task.AssigneeIDs),
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}

	for _, agentID := range msg.Mentions {
		n := &store.Notification{
			ID:              uuid.New().String(),
			AgentID:         agentID,
			Type:            store.NotificationTypeMention,
			SourceMessageID: msg.ID,
			CreatedAt:       time.Now().UTC(),
		}
		if err := s.store.CreateNotification(ctx, n); err != nil {
			s.logger.Warn("failed to create mention notification",
				"message_id", msg.ID, "agent_id", agentID, "error", err)
		}
	}

	if _, err := s.activity.Record(ctx, activity.TypeMessagePosted, fromAgentID, taskID,
		fmt.Sprintf("%s commented on %q", sender.Name, task.Title)); err != nil {
		s.logger.Warn("failed to record message", "message_id", msg.ID, "error", err)
	}

	s.logger.Info("message posted", "id", msg.ID, "task_id", taskID, "mentions", len(msg.Mentions))
	return msg, nil
}

// Messages returns the most recent messages for a task, oldest first.
func (s *Service) Messages(ctx context.Context, taskID string, limit int) ([]*store.Message, error) {
	return s.store.ListTaskMessages(ctx, taskID, limit)
}

// NotificationsForAgent returns an agent's notifications, filterable by
// delivered and read state.
func (s *Service) NotificationsForAgent(ctx context.Context, agentID string, filter store.NotificationFilter) ([]*store.Notification, error) {
	return s.store.ListNotifications(ctx, agentID, filter)
}

// MarkDelivered marks a notification delivered. Idempotent.
func (s *Service) MarkDelivered(ctx context.Context, notificationID string) error {
	return s.store.MarkNotificationDelivered(ctx, notificationID)
}

// MarkRead marks a notification read (and delivered). Idempotent.
func (s *Service) MarkRead(ctx context.Context, notificationID string) error {
	return s.store.MarkNotificationRead(ctx, notificationID)
}

// UnreadMentionCount counts unread mention notifications for one agent.
func (s *Service) UnreadMentionCount(ctx context.Context, agentID string) (int, error) {
	return s.store.CountUnreadMentions(ctx, agentID)
}
