// ABOUTME: Task persistence for the SQLite store
// ABOUTME: CRUD, filtered listing, and aggregate counts by status and priority

package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
)

const taskColumns = `id, title, description, status, priority, assignee_ids, blocked_by, created_at, started_at, completed_at`

// scanTask scans one task row from a row scanner.
func scanTask(scan func(dest ...any) error) (*Task, error) {
	var t Task
	var description, assignees, blockedBy, startedAt, completedAt sql.NullString
	var createdAt string

	if err := scan(&t.ID, &t.Title, &description, &t.Status, &t.Priority,
		&assignees, &blockedBy, &createdAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}

	t.Description = description.String
	t.AssigneeIDs = decodeStrings(assignees)
	t.BlockedBy = decodeStrings(blockedBy)

	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.StartedAt, err = parseTimePtr(startedAt); err != nil {
		return nil, err
	}
	if t.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTask inserts a new task.
func (s *SQLiteStore) CreateTask(ctx context.Context, task *Task) error {
	query := `
		INSERT INTO tasks (id, title, description, status, priority, assignee_ids, blocked_by, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		encodeStrings(task.AssigneeIDs),
		encodeStrings(task.BlockedBy),
		formatTime(task.CreatedAt),
		formatTimePtr(task.StartedAt),
		formatTimePtr(task.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}

	s.logger.Debug("created task", "id", task.ID, "title", task.Title)
	return nil
}

// GetTask retrieves a task by ID.
// Returns ErrNotFound if the task doesn't exist.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)

	task, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks matching the filter, newest first.
// Assignee filtering happens in Go because assignee_ids is a JSON column.
func (s *SQLiteStore) ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var conds []string
	var args []any

	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		conds = append(conds, "priority = ?")
		args = append(args, filter.Priority)
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning task row: %w", err)
		}
		if filter.AssigneeID != "" && !slices.Contains(task.AssigneeIDs, filter.AssigneeID) {
			continue
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating task rows: %w", err)
	}
	return tasks, nil
}

// UpdateTask rewrites all mutable task fields.
// Returns ErrNotFound if the task doesn't exist.
func (s *SQLiteStore) UpdateTask(ctx context.Context, task *Task) error {
	query := `
		UPDATE tasks
		SET title = ?, description = ?, status = ?, priority = ?,
		    assignee_ids = ?, blocked_by = ?, started_at = ?, completed_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		encodeStrings(task.AssigneeIDs),
		encodeStrings(task.BlockedBy),
		formatTimePtr(task.StartedAt),
		formatTimePtr(task.CompletedAt),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("updating task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated task", "id", task.ID, "status", task.Status)
	return nil
}

// DeleteTask removes a task and its messages.
// Returns ErrNotFound if the task doesn't exist.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("deleting task messages: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing task delete: %w", err)
	}

	s.logger.Debug("deleted task", "id", id)
	return nil
}

// CountTasks returns aggregate counts grouped by status and by priority.
func (s *SQLiteStore) CountTasks(ctx context.Context) (*TaskCounts, error) {
	counts := &TaskCounts{
		ByStatus:   make(map[string]int),
		ByPriority: make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting tasks by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts.ByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status counts: %w", err)
	}

	prows, err := s.db.QueryContext(ctx, `SELECT priority, COUNT(*) FROM tasks GROUP BY priority`)
	if err != nil {
		return nil, fmt.Errorf("counting tasks by priority: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var priority string
		var n int
		if err := prows.Scan(&priority, &n); err != nil {
			return nil, fmt.Errorf("scanning priority count: %w", err)
		}
		counts.ByPriority[priority] = n
	}
	if err := prows.Err(); err != nil {
		return nil, fmt.Errorf("iterating priority counts: %w", err)
	}

	return counts, nil
}
