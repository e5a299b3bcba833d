// ABOUTME: Agent registry service: CRUD over agent identities
// ABOUTME: Enforces name uniqueness, status invariants, and delete-while-running protection

package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/2389/troupe/internal/activity"
	"github.com/2389/troupe/internal/store"
)

// ErrInvalidName is returned when an agent name is empty or contains
// characters outside [A-Za-z0-9_-].
var ErrInvalidName = errors.New("agent name must be non-empty and contain only letters, digits, underscore, or hyphen")

// ErrAgentBusy is returned when deleting an agent that owns a running task.
var ErrAgentBusy = errors.New("agent has a running task")

// ErrUnknownStatus is returned for a status outside the known set.
var ErrUnknownStatus = errors.New("unknown agent status")

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ExecutionChecker reports whether a task currently has a live execution.
// The executor satisfies this; it is wired in after construction because the
// executor itself depends on the registry.
type ExecutionChecker interface {
	IsRunning(taskID string) bool
}

// Registry manages agent identities.
type Registry struct {
	store    store.Store
	activity *activity.Log
	checker  ExecutionChecker
	logger   *slog.Logger
}

// New creates an agent registry.
func New(st store.Store, log *activity.Log) *Registry {
	return &Registry{
		store:    st,
		activity: log,
		logger:   slog.Default().With("component", "registry"),
	}
}

// SetExecutionChecker wires in the running-task check. Until it is set,
// deletes proceed without the busy check.
func (r *Registry) SetExecutionChecker(c ExecutionChecker) {
	r.checker = c
}

// Create registers a new agent in idle status.
// Returns ErrInvalidName for a malformed name and store.ErrDuplicateName
// when the name is already taken (case-insensitive).
func (r *Registry) Create(ctx context.Context, name, role, description string, specialties []string) (*store.Agent, error) {
	if !namePattern.MatchString(name) {
		return nil, ErrInvalidName
	}

	now := time.Now().UTC()
	agent := &store.Agent{
		ID:          uuid.New().String(),
		Name:        name,
		Role:        role,
		Description: description,
		Status:      store.AgentStatusIdle,
		Specialties: specialties,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := r.store.CreateAgent(ctx, agent); err != nil {
		return nil, err
	}

	if _, err := r.activity.Record(ctx, activity.TypeAgentCreated, agent.ID, "",
		fmt.Sprintf("Agent %s (%s) joined", agent.Name, agent.Role)); err != nil {
		r.logger.Warn("failed to record agent creation", "agent_id", agent.ID, "error", err)
	}

	r.logger.Info("agent created", "id", agent.ID, "name", agent.Name, "role", agent.Role)
	return agent, nil
}

// Get retrieves an agent by ID.
func (r *Registry) Get(ctx context.Context, id string) (*store.Agent, error) {
	return r.store.GetAgent(ctx, id)
}

// GetByName retrieves an agent by name, case-insensitively.
func (r *Registry) GetByName(ctx context.Context, name string) (*store.Agent, error) {
	return r.store.GetAgentByName(ctx, name)
}

// List returns all registered agents.
func (r *Registry) List(ctx context.Context) ([]*store.Agent, error) {
	return r.store.ListAgents(ctx)
}

// UpdateFields holds the mutable agent fields for Update. Nil pointers
// leave the corresponding field unchanged.
type UpdateFields struct {
	Role        *string
	Description *string
	Status      *string
	Specialties *[]string
}

// Update applies field changes to an agent. The name is not updatable:
// other records reference agents by name in mention tokens.
func (r *Registry) Update(ctx context.Context, id string, fields UpdateFields) (*store.Agent, error) {
	agent, err := r.store.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}

	if fields.Role != nil {
		agent.Role = *fields.Role
	}
	if fields.Description != nil {
		agent.Description = *fields.Description
	}
	if fields.Status != nil {
		switch *fields.Status {
		case store.AgentStatusIdle, store.AgentStatusActive, store.AgentStatusBlocked, store.AgentStatusOffline:
		default:
			return nil, fmt.Errorf("%w %q", ErrUnknownStatus, *fields.Status)
		}
		agent.Status = *fields.Status
	}
	if fields.Specialties != nil {
		agent.Specialties = *fields.Specialties
	}
	agent.UpdatedAt = time.Now().UTC()

	if err := r.store.UpdateAgent(ctx, agent); err != nil {
		return nil, err
	}

	if _, err := r.activity.Record(ctx, activity.TypeAgentUpdated, agent.ID, "",
		fmt.Sprintf("Agent %s updated", agent.Name)); err != nil {
		r.logger.Warn("failed to record agent update", "agent_id", agent.ID, "error", err)
	}

	return agent, nil
}

// Delete removes an agent. Returns ErrAgentBusy while the agent owns a live
// task execution.
func (r *Registry) Delete(ctx context.Context, id string) error {
	agent, err := r.store.GetAgent(ctx, id)
	if err != nil {
		return err
	}

	if agent.CurrentTaskID != "" && r.checker != nil && r.checker.IsRunning(agent.CurrentTaskID) {
		return ErrAgentBusy
	}

	if err := r.store.DeleteAgent(ctx, id); err != nil {
		return err
	}

	if _, err := r.activity.Record(ctx, activity.TypeAgentDeleted, id, "",
		fmt.Sprintf("Agent %s removed", agent.Name)); err != nil {
		r.logger.Warn("failed to record agent deletion", "agent_id", id, "error", err)
	}

	r.logger.Info("agent deleted", "id", id, "name", agent.Name)
	return nil
}

// RecordHeartbeat stores the heartbeat timestamp. An active agent with no
// current task drops back to idle: active without work is a stale state.
func (r *Registry) RecordHeartbeat(ctx context.Context, id string, at time.Time) error {
	agent, err := r.store.GetAgent(ctx, id)
	if err != nil {
		return err
	}

	agent.LastHeartbeat = &at
	if agent.Status == store.AgentStatusActive && agent.CurrentTaskID == "" {
		agent.Status = store.AgentStatusIdle
	}
	agent.UpdatedAt = time.Now().UTC()

	return r.store.UpdateAgent(ctx, agent)
}
