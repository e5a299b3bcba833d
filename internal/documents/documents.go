// ABOUTME: Shared document service with monotonic versioning
// ABOUTME: Renders markdown document content to HTML for dashboard display

package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"github.com/2389/troupe/internal/activity"
	"github.com/2389/troupe/internal/store"
)

// ErrEmptyTitle is returned when creating a document without a title.
var ErrEmptyTitle = errors.New("document title is required")

// Service manages shared deliverable documents.
type Service struct {
	store    store.Store
	activity *activity.Log
	logger   *slog.Logger
}

// New creates a document service.
func New(st store.Store, log *activity.Log) *Service {
	return &Service{
		store:    st,
		activity: log,
		logger:   slog.Default().With("component", "documents"),
	}
}

// Create stores a new document at version 1.
func (s *Service) Create(ctx context.Context, title, content, docType, taskID, authorID string) (*store.Document, error) {
	if strings.TrimSpace(title) == "" {
		return nil, ErrEmptyTitle
	}
	if taskID != "" {
		if _, err := s.store.GetTask(ctx, taskID); err != nil {
			return nil, fmt.Errorf("task %s: %w", taskID, err)
		}
	}

	now := time.Now().UTC()
	doc := &store.Document{
		ID:        uuid.New().String(),
		Title:     title,
		Content:   content,
		Type:      docType,
		TaskID:    taskID,
		AuthorID:  authorID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	doc.Version = 1

	if _, err := s.activity.Record(ctx, activity.TypeDocumentSaved, authorID, taskID,
		fmt.Sprintf("Document %q created", title)); err != nil {
		s.logger.Warn("failed to record document creation", "document_id", doc.ID, "error", err)
	}

	s.logger.Info("document created", "id", doc.ID, "title", title)
	return doc, nil
}

// Get retrieves a document by ID.
func (s *Service) Get(ctx context.Context, id string) (*store.Document, error) {
	return s.store.GetDocument(ctx, id)
}

// List returns documents, optionally filtered to one task.
func (s *Service) List(ctx context.Context, taskID string) ([]*store.Document, error) {
	return s.store.ListDocuments(ctx, taskID)
}

// Update replaces a document's title and content, bumping the version.
func (s *Service) Update(ctx context.Context, id, title, content string) (*store.Document, error) {
	if strings.TrimSpace(title) == "" {
		return nil, ErrEmptyTitle
	}

	doc, err := s.store.UpdateDocumentContent(ctx, id, title, content)
	if err != nil {
		return nil, err
	}

	if _, err := s.activity.Record(ctx, activity.TypeDocumentSaved, doc.AuthorID, doc.TaskID,
		fmt.Sprintf("Document %q updated to v%d", doc.Title, doc.Version)); err != nil {
		s.logger.Warn("failed to record document update", "document_id", doc.ID, "error", err)
	}

	return doc, nil
}

// RenderHTML converts a document's markdown content to HTML.
func (s *Service) RenderHTML(ctx context.Context, id string) (string, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return "", err
	}

	var htmlBuf bytes.Buffer
	if err := goldmark.Convert([]byte(doc.Content), &htmlBuf); err != nil {
		return "", fmt.Errorf("rendering document %s: %w", id, err)
	}
	return htmlBuf.String(), nil
}
