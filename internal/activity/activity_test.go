// ABOUTME: Tests for the activity log service
// ABOUTME: Covers record-then-publish ordering and feed retrieval

package activity

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/troupe/internal/bus"
	"github.com/2389/troupe/internal/store"
)

func newTestLog(t *testing.T) (*Log, *bus.Bus) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := bus.NewBus(nil)
	t.Cleanup(b.Close)

	return NewLog(st, b), b
}

func TestRecord_PersistsAndPublishes(t *testing.T) {
	log, b := newTestLog(t)

	ch, _ := b.Subscribe(t.Context())

	entry, err := log.Record(t.Context(), TypeTaskCreated, "agent-001", "task-001", "created task")
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.NotZero(t, entry.Seq)

	select {
	case event := <-ch:
		require.NotNil(t, event.ActivityCreated)
		assert.Equal(t, entry.ID, event.ActivityCreated.ActivityID)
		assert.Equal(t, TypeTaskCreated, event.ActivityCreated.Type)
		assert.Equal(t, "task-001", event.ActivityCreated.TaskID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for activity event")
	}
}

func TestFeed_NewestFirst(t *testing.T) {
	log, _ := newTestLog(t)
	ctx := t.Context()

	_, err := log.Record(ctx, TypeTaskCreated, "", "task-001", "first")
	require.NoError(t, err)
	_, err = log.Record(ctx, TypeTaskAssigned, "agent-001", "task-001", "second")
	require.NoError(t, err)

	entries, err := log.Feed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Message)
	assert.Equal(t, "first", entries[1].Message)
}
