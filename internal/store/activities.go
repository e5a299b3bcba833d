// ABOUTME: Activity log persistence for the SQLite store
// ABOUTME: Strictly append-only; ordering is created_at then insertion sequence

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// AppendActivity inserts one activity entry and fills in its sequence number.
// There is deliberately no update or delete counterpart.
func (s *SQLiteStore) AppendActivity(ctx context.Context, entry *Activity) error {
	query := `
		INSERT INTO activities (id, type, agent_id, task_id, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.Type,
		nullString(entry.AgentID),
		nullString(entry.TaskID),
		entry.Message,
		formatTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting activity: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting activity sequence: %w", err)
	}
	entry.Seq = seq

	s.logger.Debug("appended activity", "id", entry.ID, "type", entry.Type, "seq", seq)
	return nil
}

// ListActivities returns the most recent entries, newest first.
// A limit of 0 or less uses a default of 100, capped at 1000.
func (s *SQLiteStore) ListActivities(ctx context.Context, limit int) ([]*Activity, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `
		SELECT seq, id, type, agent_id, task_id, message, created_at
		FROM activities
		ORDER BY created_at DESC, seq DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying activities: %w", err)
	}
	defer rows.Close()

	var entries []*Activity
	for rows.Next() {
		var a Activity
		var agentID, taskID sql.NullString
		var createdAt string

		if err := rows.Scan(&a.Seq, &a.ID, &a.Type, &agentID, &taskID, &a.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning activity row: %w", err)
		}
		a.AgentID = agentID.String
		a.TaskID = taskID.String
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity rows: %w", err)
	}
	return entries, nil
}
