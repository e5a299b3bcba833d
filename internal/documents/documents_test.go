// ABOUTME: Tests for the document service
// ABOUTME: Covers versioning, task attachment, and markdown rendering

package documents

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/troupe/internal/activity"
	"github.com/2389/troupe/internal/bus"
	"github.com/2389/troupe/internal/store"
)

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := bus.NewBus(nil)
	t.Cleanup(b.Close)

	return New(st, activity.NewLog(st, b)), st
}

func TestCreateAndUpdate_VersionsAdvance(t *testing.T) {
	s, _ := newTestService(t)
	ctx := t.Context()

	doc, err := s.Create(ctx, "Report", "draft one", "markdown", "", "agent-001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Version)

	updated, err := s.Update(ctx, doc.ID, "Report", "draft two")
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, "draft two", updated.Content)
}

func TestCreate_Validation(t *testing.T) {
	s, st := newTestService(t)
	ctx := t.Context()

	_, err := s.Create(ctx, "  ", "content", "", "", "agent-001")
	assert.ErrorIs(t, err, ErrEmptyTitle)

	_, err = s.Create(ctx, "Report", "content", "", "no-such-task", "agent-001")
	assert.ErrorIs(t, err, store.ErrNotFound)

	task := &store.Task{ID: "task-001", Title: "Research", Status: store.TaskStatusInbox,
		Priority: store.PriorityLow, CreatedAt: time.Now().UTC()}
	require.NoError(t, st.CreateTask(ctx, task))

	doc, err := s.Create(ctx, "Report", "content", "", "task-001", "agent-001")
	require.NoError(t, err)
	assert.Equal(t, "task-001", doc.TaskID)
}

func TestRenderHTML(t *testing.T) {
	s, _ := newTestService(t)
	ctx := t.Context()

	doc, err := s.Create(ctx, "Report", "# Findings\n\nAll **good**.", "markdown", "", "agent-001")
	require.NoError(t, err)

	html, err := s.RenderHTML(ctx, doc.ID)
	require.NoError(t, err)
	assert.Contains(t, html, "<h1")
	assert.Contains(t, html, "<strong>good</strong>")

	_, err = s.RenderHTML(ctx, "no-such-doc")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
