// ABOUTME: Notification persistence for the SQLite store
// ABOUTME: Delivery and read flags only move forward; re-marking is idempotent

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateNotification inserts a new undelivered, unread notification.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO notifications (id, agent_id, type, source_message_id, delivered, read, created_at)
		VALUES (?, ?, ?, ?, 0, 0, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		n.ID,
		n.AgentID,
		n.Type,
		nullString(n.SourceMessageID),
		formatTime(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}

	s.logger.Debug("created notification", "id", n.ID, "type", n.Type, "agent_id", n.AgentID)
	return nil
}

const notificationColumns = `id, agent_id, type, source_message_id, delivered, read, created_at, delivered_at`

// GetNotification retrieves a notification by ID.
func (s *SQLiteStore) GetNotification(ctx context.Context, id string) (*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`
	n, err := scanNotification(s.db.QueryRowContext(ctx, query, id).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying notification: %w", err)
	}
	return n, nil
}

// ListNotifications returns an agent's notifications, newest first,
// optionally filtered by delivered or read state.
func (s *SQLiteStore) ListNotifications(ctx context.Context, agentID string, filter NotificationFilter) ([]*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE agent_id = ?`
	args := []any{agentID}

	if filter.Delivered != nil {
		query += ` AND delivered = ?`
		args = append(args, boolToInt(*filter.Delivered))
	}
	if filter.Read != nil {
		query += ` AND read = ?`
		args = append(args, boolToInt(*filter.Read))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning notification row: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notification rows: %w", err)
	}
	return notifications, nil
}

// MarkNotificationDelivered sets the delivered flag and timestamp.
// Calling it again changes nothing, and it never clears the read flag.
func (s *SQLiteStore) MarkNotificationDelivered(ctx context.Context, id string) error {
	query := `
		UPDATE notifications
		SET delivered = 1, delivered_at = ?
		WHERE id = ? AND delivered = 0
	`

	result, err := s.db.ExecContext(ctx, query, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("marking notification delivered: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		// Already delivered is fine; a missing row is not.
		return s.checkNotificationExists(ctx, id)
	}
	return nil
}

// MarkNotificationRead sets the read flag and implies delivery: a read
// notification is always delivered, even if delivery was never reported.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id string) error {
	query := `
		UPDATE notifications
		SET read = 1,
		    delivered = 1,
		    delivered_at = COALESCE(delivered_at, ?)
		WHERE id = ? AND read = 0
	`

	result, err := s.db.ExecContext(ctx, query, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return s.checkNotificationExists(ctx, id)
	}
	return nil
}

// CountUnreadMentions counts unread mention notifications for one agent.
func (s *SQLiteStore) CountUnreadMentions(ctx context.Context, agentID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM notifications
		WHERE agent_id = ? AND type = ? AND read = 0
	`

	var count int
	if err := s.db.QueryRowContext(ctx, query, agentID, NotificationTypeMention).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting unread mentions: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) checkNotificationExists(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM notifications WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking notification existence: %w", err)
	}
	return nil
}

func scanNotification(scan func(dest ...any) error) (*Notification, error) {
	var n Notification
	var sourceMessageID, deliveredAt sql.NullString
	var delivered, read int
	var createdAt string

	err := scan(
		&n.ID, &n.AgentID, &n.Type, &sourceMessageID,
		&delivered, &read, &createdAt, &deliveredAt,
	)
	if err != nil {
		return nil, err
	}

	n.SourceMessageID = sourceMessageID.String
	n.Delivered = delivered != 0
	n.Read = read != 0
	if n.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if n.DeliveredAt, err = parseTimePtr(deliveredAt); err != nil {
		return nil, err
	}
	return &n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
