// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides schema creation, agent persistence, and shared scan helpers

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS agents (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL,
			role            TEXT NOT NULL,
			description     TEXT,
			status          TEXT NOT NULL DEFAULT 'idle',
			current_task_id TEXT,
			specialties     TEXT,
			last_heartbeat  TEXT,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL,

			CHECK (status IN ('idle', 'active', 'blocked', 'offline'))
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_agents_name
			ON agents(name COLLATE NOCASE);

		CREATE TABLE IF NOT EXISTS tasks (
			id           TEXT PRIMARY KEY,
			title        TEXT NOT NULL,
			description  TEXT,
			status       TEXT NOT NULL DEFAULT 'inbox',
			priority     TEXT NOT NULL DEFAULT 'medium',
			assignee_ids TEXT,
			blocked_by   TEXT,
			created_at   TEXT NOT NULL,
			started_at   TEXT,
			completed_at TEXT,

			CHECK (status IN ('inbox', 'assigned', 'in_progress', 'review', 'done', 'blocked')),
			CHECK (priority IN ('low', 'medium', 'high', 'urgent'))
		);

		CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
		CREATE INDEX IF NOT EXISTS idx_tasks_priority ON tasks(priority);

		CREATE TABLE IF NOT EXISTS messages (
			id            TEXT PRIMARY KEY,
			task_id       TEXT NOT NULL,
			from_agent_id TEXT NOT NULL,
			content       TEXT NOT NULL,
			mentions      TEXT,
			created_at    TEXT NOT NULL,

			FOREIGN KEY (task_id) REFERENCES tasks(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_task_created
			ON messages(task_id, created_at);

		CREATE TABLE IF NOT EXISTS documents (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			content    TEXT NOT NULL,
			type       TEXT,
			task_id    TEXT,
			author_id  TEXT NOT NULL,
			version    INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_documents_task ON documents(task_id);

		CREATE TABLE IF NOT EXISTS activities (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			type       TEXT NOT NULL,
			agent_id   TEXT,
			task_id    TEXT,
			message    TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_activities_created ON activities(created_at DESC);

		CREATE TABLE IF NOT EXISTS notifications (
			id                TEXT PRIMARY KEY,
			agent_id          TEXT NOT NULL,
			type              TEXT NOT NULL,
			source_message_id TEXT,
			delivered         INTEGER NOT NULL DEFAULT 0,
			read              INTEGER NOT NULL DEFAULT 0,
			created_at        TEXT NOT NULL,
			delivered_at      TEXT,

			CHECK (type IN ('mention', 'assignment'))
		);

		CREATE INDEX IF NOT EXISTS idx_notifications_agent
			ON notifications(agent_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// encodeStrings serializes a string slice to its JSON column representation.
// Empty slices map to NULL so that older rows and absent values look alike.
func encodeStrings(vals []string) any {
	if len(vals) == 0 {
		return nil
	}
	b, _ := json.Marshal(vals)
	return string(b)
}

// decodeStrings parses a JSON string-array column, tolerating NULL.
func decodeStrings(raw sql.NullString) []string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var vals []string
	if err := json.Unmarshal([]byte(raw.String), &vals); err != nil {
		return nil
	}
	return vals
}

// formatTime renders a timestamp in the canonical RFC3339 column format.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses an RFC3339 column value.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// formatTimePtr renders an optional timestamp, mapping nil to NULL.
func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// parseTimePtr parses an optional timestamp column.
func parseTimePtr(raw sql.NullString) (*time.Time, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	t, err := parseTime(raw.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateAgent inserts a new agent. Returns ErrDuplicateName if an agent with
// the same name (case-insensitive) already exists.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *Agent) error {
	query := `
		INSERT INTO agents (id, name, role, description, status, current_task_id, specialties, last_heartbeat, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		agent.ID,
		agent.Name,
		agent.Role,
		agent.Description,
		agent.Status,
		nullString(agent.CurrentTaskID),
		encodeStrings(agent.Specialties),
		formatTimePtr(agent.LastHeartbeat),
		formatTime(agent.CreatedAt),
		formatTime(agent.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("inserting agent: %w", err)
	}

	s.logger.Debug("created agent", "id", agent.ID, "name", agent.Name)
	return nil
}

const agentColumns = `id, name, role, description, status, current_task_id, specialties, last_heartbeat, created_at, updated_at`

// scanAgent scans one agent row from a row scanner.
func scanAgent(scan func(dest ...any) error) (*Agent, error) {
	var a Agent
	var description, currentTask, specialties, lastHeartbeat sql.NullString
	var createdAt, updatedAt string

	if err := scan(&a.ID, &a.Name, &a.Role, &description, &a.Status,
		&currentTask, &specialties, &lastHeartbeat, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	a.Description = description.String
	a.CurrentTaskID = currentTask.String
	a.Specialties = decodeStrings(specialties)

	var err error
	if a.LastHeartbeat, err = parseTimePtr(lastHeartbeat); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAgent retrieves an agent by ID.
// Returns ErrNotFound if the agent doesn't exist.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)

	agent, err := scanAgent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}
	return agent, nil
}

// GetAgentByName retrieves an agent by name, case-insensitively.
// Returns ErrNotFound if no agent has that name.
func (s *SQLiteStore) GetAgentByName(ctx context.Context, name string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE name = ? COLLATE NOCASE`, name)

	agent, err := scanAgent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent by name: %w", err)
	}
	return agent, nil
}

// ListAgents returns all agents ordered by name.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+agentColumns+` FROM agents ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		agent, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent rows: %w", err)
	}
	return agents, nil
}

// UpdateAgent rewrites all mutable agent fields.
// Returns ErrNotFound if the agent doesn't exist, ErrDuplicateName if the
// new name collides with another agent.
func (s *SQLiteStore) UpdateAgent(ctx context.Context, agent *Agent) error {
	query := `
		UPDATE agents
		SET name = ?, role = ?, description = ?, status = ?, current_task_id = ?,
		    specialties = ?, last_heartbeat = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		agent.Name,
		agent.Role,
		agent.Description,
		agent.Status,
		nullString(agent.CurrentTaskID),
		encodeStrings(agent.Specialties),
		formatTimePtr(agent.LastHeartbeat),
		formatTime(time.Now()),
		agent.ID,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("updating agent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated agent", "id", agent.ID, "status", agent.Status)
	return nil
}

// DeleteAgent removes an agent.
// Returns ErrNotFound if the agent doesn't exist.
func (s *SQLiteStore) DeleteAgent(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting agent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted agent", "id", id)
	return nil
}

// nullString returns nil for empty strings, otherwise the string itself
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
