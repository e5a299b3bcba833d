// ABOUTME: Tests for the SQLite store implementation
// ABOUTME: Covers agent CRUD, duplicate name handling, and schema setup

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestCreateAndGetAgent(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	agent := &Agent{
		ID:          "agent-001",
		Name:        "scout",
		Role:        "researcher",
		Description: "finds things out",
		Status:      AgentStatusIdle,
		Specialties: []string{"search", "summarize"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := store.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}

	got, err := store.GetAgent(ctx, "agent-001")
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}

	if got.Name != agent.Name {
		t.Errorf("Name mismatch: got %q, want %q", got.Name, agent.Name)
	}
	if got.Role != agent.Role {
		t.Errorf("Role mismatch: got %q, want %q", got.Role, agent.Role)
	}
	if got.Status != AgentStatusIdle {
		t.Errorf("Status mismatch: got %q, want %q", got.Status, AgentStatusIdle)
	}
	if len(got.Specialties) != 2 || got.Specialties[0] != "search" {
		t.Errorf("Specialties mismatch: got %v", got.Specialties)
	}
	if got.LastHeartbeat != nil {
		t.Errorf("expected nil LastHeartbeat, got %v", got.LastHeartbeat)
	}
}

func TestGetAgent_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	_, err := store.GetAgent(context.Background(), "nonexistent")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateAgent_DuplicateName(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.CreateAgent(ctx, testAgent("agent-001", "scout")); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}

	err := store.CreateAgent(ctx, testAgent("agent-002", "scout"))
	if err != ErrDuplicateName {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
}

func TestCreateAgent_DuplicateNameCaseInsensitive(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.CreateAgent(ctx, testAgent("agent-001", "Scout")); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}

	err := store.CreateAgent(ctx, testAgent("agent-002", "scout"))
	if err != ErrDuplicateName {
		t.Errorf("expected ErrDuplicateName for case-insensitive duplicate, got %v", err)
	}
}

func TestGetAgentByName(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.CreateAgent(ctx, testAgent("agent-001", "Scout")); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}

	got, err := store.GetAgentByName(ctx, "scout")
	if err != nil {
		t.Fatalf("GetAgentByName failed: %v", err)
	}
	if got.ID != "agent-001" {
		t.Errorf("ID mismatch: got %q, want %q", got.ID, "agent-001")
	}

	if _, err := store.GetAgentByName(ctx, "ghost"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateAgent(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	agent := testAgent("agent-001", "scout")
	if err := store.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}

	hb := time.Now().UTC().Truncate(time.Second)
	agent.Status = AgentStatusActive
	agent.CurrentTaskID = "task-001"
	agent.LastHeartbeat = &hb
	agent.UpdatedAt = hb

	if err := store.UpdateAgent(ctx, agent); err != nil {
		t.Fatalf("UpdateAgent failed: %v", err)
	}

	got, err := store.GetAgent(ctx, "agent-001")
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if got.Status != AgentStatusActive {
		t.Errorf("Status mismatch: got %q, want %q", got.Status, AgentStatusActive)
	}
	if got.CurrentTaskID != "task-001" {
		t.Errorf("CurrentTaskID mismatch: got %q, want %q", got.CurrentTaskID, "task-001")
	}
	if got.LastHeartbeat == nil || !got.LastHeartbeat.Equal(hb) {
		t.Errorf("LastHeartbeat mismatch: got %v, want %v", got.LastHeartbeat, hb)
	}
}

func TestUpdateAgent_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	err := store.UpdateAgent(context.Background(), testAgent("nonexistent", "ghost"))
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteAgent(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.CreateAgent(ctx, testAgent("agent-001", "scout")); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}

	if err := store.DeleteAgent(ctx, "agent-001"); err != nil {
		t.Fatalf("DeleteAgent failed: %v", err)
	}

	if _, err := store.GetAgent(ctx, "agent-001"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Name should be reusable after deletion.
	if err := store.CreateAgent(ctx, testAgent("agent-002", "scout")); err != nil {
		t.Errorf("CreateAgent with freed name failed: %v", err)
	}
}

func TestDeleteAgent_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	err := store.DeleteAgent(context.Background(), "nonexistent")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListAgents(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	for _, name := range []string{"scout", "builder", "critic"} {
		if err := store.CreateAgent(ctx, testAgent("agent-"+name, name)); err != nil {
			t.Fatalf("CreateAgent %s failed: %v", name, err)
		}
	}

	agents, err := store.ListAgents(ctx)
	if err != nil {
		t.Fatalf("ListAgents failed: %v", err)
	}
	if len(agents) != 3 {
		t.Errorf("expected 3 agents, got %d", len(agents))
	}
}

// testAgent builds a minimal valid agent for tests.
func testAgent(id, name string) *Agent {
	now := time.Now().UTC().Truncate(time.Second)
	return &Agent{
		ID:        id,
		Name:      name,
		Role:      "worker",
		Status:    AgentStatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// newTestStore creates a SQLite store backed by a temp file.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	return store
}
