// ABOUTME: Message and document persistence for the SQLite store
// ABOUTME: Messages are immutable after insert; documents carry a monotonic version counter

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveMessage inserts a task message. Messages are immutable: there is no
// corresponding update operation.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO messages (id, task_id, from_agent_id, content, mentions, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.TaskID,
		msg.FromAgentID,
		msg.Content,
		encodeStrings(msg.Mentions),
		formatTime(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("saved message", "id", msg.ID, "task_id", msg.TaskID)
	return nil
}

// ListTaskMessages retrieves the most recent messages for a task in
// chronological order (oldest first). A limit of 0 or less returns all.
func (s *SQLiteStore) ListTaskMessages(ctx context.Context, taskID string, limit int) ([]*Message, error) {
	var query string
	var args []any

	if limit > 0 {
		query = `
			SELECT id, task_id, from_agent_id, content, mentions, created_at
			FROM (
				SELECT id, task_id, from_agent_id, content, mentions, created_at
				FROM messages
				WHERE task_id = ?
				ORDER BY created_at DESC
				LIMIT ?
			)
			ORDER BY created_at ASC
		`
		args = []any{taskID, limit}
	} else {
		query = `
			SELECT id, task_id, from_agent_id, content, mentions, created_at
			FROM messages
			WHERE task_id = ?
			ORDER BY created_at ASC
		`
		args = []any{taskID}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var mentions sql.NullString
		var createdAt string

		if err := rows.Scan(&msg.ID, &msg.TaskID, &msg.FromAgentID, &msg.Content, &mentions, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msg.Mentions = decodeStrings(mentions)
		if msg.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}

const documentColumns = `id, title, content, type, task_id, author_id, version, created_at, updated_at`

// scanDocument scans one document row from a row scanner.
func scanDocument(scan func(dest ...any) error) (*Document, error) {
	var d Document
	var docType, taskID sql.NullString
	var createdAt, updatedAt string

	if err := scan(&d.ID, &d.Title, &d.Content, &docType, &taskID,
		&d.AuthorID, &d.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	d.Type = docType.String
	d.TaskID = taskID.String

	var err error
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDocument inserts a new document at version 1.
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *Document) error {
	query := `
		INSERT INTO documents (id, title, content, type, task_id, author_id, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		doc.ID,
		doc.Title,
		doc.Content,
		nullString(doc.Type),
		nullString(doc.TaskID),
		doc.AuthorID,
		formatTime(doc.CreatedAt),
		formatTime(doc.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}

	s.logger.Debug("created document", "id", doc.ID, "title", doc.Title)
	return nil
}

// GetDocument retrieves a document by ID.
// Returns ErrNotFound if the document doesn't exist.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)

	doc, err := scanDocument(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns documents, optionally filtered by task, most
// recently updated first.
func (s *SQLiteStore) ListDocuments(ctx context.Context, taskID string) ([]*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents`
	var args []any
	if taskID != "" {
		query += ` WHERE task_id = ?`
		args = append(args, taskID)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}
	return docs, nil
}

// UpdateDocumentContent replaces title and content and bumps the version
// counter. The bump happens inside the UPDATE itself so two concurrent
// writers can never produce the same version.
// Returns ErrNotFound if the document doesn't exist.
func (s *SQLiteStore) UpdateDocumentContent(ctx context.Context, id, title, content string) (*Document, error) {
	query := `
		UPDATE documents
		SET title = ?, content = ?, version = version + 1, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, title, content, formatTime(time.Now()), id)
	if err != nil {
		return nil, fmt.Errorf("updating document: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrNotFound
	}

	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("updated document", "id", id, "version", doc.Version)
	return doc, nil
}
