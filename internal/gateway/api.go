// ABOUTME: HTTP API handlers for agents, tasks, messages, notifications, and documents
// ABOUTME: Maps service errors to status codes and serializes store records as JSON

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/troupe/internal/documents"
	"github.com/2389/troupe/internal/executor"
	"github.com/2389/troupe/internal/mentions"
	"github.com/2389/troupe/internal/registry"
	"github.com/2389/troupe/internal/store"
	"github.com/2389/troupe/internal/tasks"
)

// CreateAgentRequest is the JSON request body for POST /api/agents.
type CreateAgentRequest struct {
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Description string   `json:"description,omitempty"`
	Specialties []string `json:"specialties,omitempty"`
}

// UpdateAgentRequest is the JSON request body for PATCH /api/agents/{id}.
// Nil fields are left unchanged. Name is immutable: mentions reference it.
type UpdateAgentRequest struct {
	Role        *string   `json:"role,omitempty"`
	Description *string   `json:"description,omitempty"`
	Status      *string   `json:"status,omitempty"`
	Specialties *[]string `json:"specialties,omitempty"`
}

// AgentResponse is the JSON representation of an agent.
type AgentResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Role          string     `json:"role"`
	Description   string     `json:"description,omitempty"`
	Status        string     `json:"status"`
	CurrentTaskID string     `json:"current_task_id,omitempty"`
	Specialties   []string   `json:"specialties,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// CreateTaskRequest is the JSON request body for POST /api/tasks.
type CreateTaskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	BlockedBy   []string `json:"blocked_by,omitempty"`
}

// AssignTaskRequest is the JSON request body for POST /api/tasks/{id}/assign.
type AssignTaskRequest struct {
	AssigneeIDs []string `json:"assignee_ids"`
}

// UpdateStatusRequest is the JSON request body for POST /api/tasks/{id}/status.
// AgentID attributes the change in the activity feed; optional.
type UpdateStatusRequest struct {
	Status  string `json:"status"`
	AgentID string `json:"agent_id,omitempty"`
}

// TaskResponse is the JSON representation of a task.
type TaskResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	AssigneeIDs []string   `json:"assignee_ids,omitempty"`
	BlockedBy   []string   `json:"blocked_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// PostMessageRequest is the JSON request body for POST /api/tasks/{id}/messages.
type PostMessageRequest struct {
	FromAgentID string `json:"from_agent_id"`
	Content     string `json:"content"`
}

// MessageResponse is the JSON representation of a task message.
type MessageResponse struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	FromAgentID string    `json:"from_agent_id"`
	Content     string    `json:"content"`
	Mentions    []string  `json:"mentions,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NotificationResponse is the JSON representation of a notification.
type NotificationResponse struct {
	ID              string     `json:"id"`
	AgentID         string     `json:"agent_id"`
	Type            string     `json:"type"`
	SourceMessageID string     `json:"source_message_id,omitempty"`
	Delivered       bool       `json:"delivered"`
	Read            bool       `json:"read"`
	CreatedAt       time.Time  `json:"created_at"`
	DeliveredAt     *time.Time `json:"delivered_at,omitempty"`
}

// CreateDocumentRequest is the JSON request body for POST /api/documents.
type CreateDocumentRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content,omitempty"`
	Type     string `json:"type,omitempty"`
	TaskID   string `json:"task_id,omitempty"`
	AuthorID string `json:"author_id,omitempty"`
}

// UpdateDocumentRequest is the JSON request body for PUT /api/documents/{id}.
type UpdateDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

// DocumentResponse is the JSON representation of a document.
type DocumentResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	Type      string    `json:"type,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	AuthorID  string    `json:"author_id,omitempty"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActivityResponse is the JSON representation of an activity entry.
type ActivityResponse struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	Type      string    `json:"type"`
	AgentID   string    `json:"agent_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// RunTaskRequest is the JSON request body for POST /api/tasks/{id}/run.
type RunTaskRequest struct {
	AgentID string `json:"agent_id"`
	Wait    bool   `json:"wait,omitempty"`
}

// StatsResponse is the JSON response for GET /api/stats.
type StatsResponse struct {
	ByStatus   map[string]int `json:"by_status"`
	ByPriority map[string]int `json:"by_priority"`
}

func agentResponse(a *store.Agent) AgentResponse {
	return AgentResponse{
		ID:            a.ID,
		Name:          a.Name,
		Role:          a.Role,
		Description:   a.Description,
		Status:        a.Status,
		CurrentTaskID: a.CurrentTaskID,
		Specialties:   a.Specialties,
		LastHeartbeat: a.LastHeartbeat,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func taskResponse(t *store.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		AssigneeIDs: t.AssigneeIDs,
		BlockedBy:   t.BlockedBy,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}

func messageResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:          m.ID,
		TaskID:      m.TaskID,
		FromAgentID: m.FromAgentID,
		Content:     m.Content,
		Mentions:    m.Mentions,
		CreatedAt:   m.CreatedAt,
	}
}

func notificationResponse(n *store.Notification) NotificationResponse {
	return NotificationResponse{
		ID:              n.ID,
		AgentID:         n.AgentID,
		Type:            n.Type,
		SourceMessageID: n.SourceMessageID,
		Delivered:       n.Delivered,
		Read:            n.Read,
		CreatedAt:       n.CreatedAt,
		DeliveredAt:     n.DeliveredAt,
	}
}

func documentResponse(d *store.Document) DocumentResponse {
	return DocumentResponse{
		ID:        d.ID,
		Title:     d.Title,
		Content:   d.Content,
		Type:      d.Type,
		TaskID:    d.TaskID,
		AuthorID:  d.AuthorID,
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func activityResponse(a *store.Activity) ActivityResponse {
	return ActivityResponse{
		ID:        a.ID,
		Seq:       a.Seq,
		Type:      a.Type,
		AgentID:   a.AgentID,
		TaskID:    a.TaskID,
		Message:   a.Message,
		CreatedAt: a.CreatedAt,
	}
}

// sendJSON writes a JSON response with the given status.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// sendServiceError maps a service error to an HTTP status code.
func (g *Gateway) sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrInvalidName),
		errors.Is(err, registry.ErrUnknownStatus),
		errors.Is(err, tasks.ErrEmptyTitle),
		errors.Is(err, tasks.ErrUnknownPriority),
		errors.Is(err, tasks.ErrUnknownStatus),
		errors.Is(err, tasks.ErrNoAssignees),
		errors.Is(err, mentions.ErrEmptyContent),
		errors.Is(err, documents.ErrEmptyTitle):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrDuplicateName),
		errors.Is(err, registry.ErrAgentBusy),
		errors.Is(err, tasks.ErrInvalidTransition),
		errors.Is(err, tasks.ErrTaskRunning),
		errors.Is(err, executor.ErrAlreadyRunning),
		errors.Is(err, executor.ErrNotRunnable):
		g.sendJSONError(w, http.StatusConflict, err.Error())
	default:
		g.logger.Error("request failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON decodes a request body into v, rejecting malformed JSON.
func (g *Gateway) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// handleListAgents handles GET /api/agents.
func (g *Gateway) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := g.registry.List(r.Context())
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	response := make([]AgentResponse, 0, len(agents))
	for _, a := range agents {
		response = append(response, agentResponse(a))
	}
	g.sendJSON(w, http.StatusOK, response)
}

// handleCreateAgent handles POST /api/agents.
func (g *Gateway) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}

	agent, err := g.registry.Create(r.Context(), req.Name, req.Role, req.Description, req.Specialties)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusCreated, agentResponse(agent))
}

// handleGetAgent handles GET /api/agents/{id}. The path value may be an
// agent id or a name; ids are tried first.
func (g *Gateway) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	agent, err := g.registry.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		agent, err = g.registry.GetByName(r.Context(), id)
	}
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, agentResponse(agent))
}

// handleUpdateAgent handles PATCH /api/agents/{id}.
func (g *Gateway) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var req UpdateAgentRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}

	agent, err := g.registry.Update(r.Context(), r.PathValue("id"), registry.UpdateFields{
		Role:        req.Role,
		Description: req.Description,
		Status:      req.Status,
		Specialties: req.Specialties,
	})
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, agentResponse(agent))
}

// handleDeleteAgent handles DELETE /api/agents/{id}.
func (g *Gateway) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := g.registry.Delete(r.Context(), r.PathValue("id")); err != nil {
		g.sendServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTriggerHeartbeat handles POST /api/agents/{id}/heartbeat.
// Runs an out-of-band heartbeat check for the agent.
func (g *Gateway) handleTriggerHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := g.registry.Get(r.Context(), id); err != nil {
		g.sendServiceError(w, err)
		return
	}

	g.heartbeat.TriggerHeartbeat(r.Context(), id)
	w.WriteHeader(http.StatusAccepted)
}

// handleListNotifications handles GET /api/agents/{id}/notifications.
// Supports ?delivered=true|false and ?read=true|false filters.
func (g *Gateway) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	filter := store.NotificationFilter{}
	if v := r.URL.Query().Get("delivered"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "invalid delivered filter")
			return
		}
		filter.Delivered = &b
	}
	if v := r.URL.Query().Get("read"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "invalid read filter")
			return
		}
		filter.Read = &b
	}

	id := r.PathValue("id")
	if _, err := g.registry.Get(r.Context(), id); err != nil {
		g.sendServiceError(w, err)
		return
	}

	notifs, err := g.mentions.NotificationsForAgent(r.Context(), id, filter)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	response := make([]NotificationResponse, 0, len(notifs))
	for _, n := range notifs {
		response = append(response, notificationResponse(n))
	}
	g.sendJSON(w, http.StatusOK, response)
}

// handleMarkDelivered handles POST /api/notifications/{id}/delivered.
func (g *Gateway) handleMarkDelivered(w http.ResponseWriter, r *http.Request) {
	if err := g.mentions.MarkDelivered(r.Context(), r.PathValue("id")); err != nil {
		g.sendServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMarkRead handles POST /api/notifications/{id}/read.
func (g *Gateway) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := g.mentions.MarkRead(r.Context(), r.PathValue("id")); err != nil {
		g.sendServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListTasks handles GET /api/tasks.
// Supports ?status=X, ?priority=X, and ?assignee=X filters.
func (g *Gateway) handleListTasks(w http.ResponseWriter, r *http.Request) {
	filter := store.TaskFilter{
		Status:     r.URL.Query().Get("status"),
		Priority:   r.URL.Query().Get("priority"),
		AssigneeID: r.URL.Query().Get("assignee"),
	}

	list, err := g.tasks.List(r.Context(), filter)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	response := make([]TaskResponse, 0, len(list))
	for _, t := range list {
		response = append(response, taskResponse(t))
	}
	g.sendJSON(w, http.StatusOK, response)
}

// handleCreateTask handles POST /api/tasks.
func (g *Gateway) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}

	task, err := g.tasks.Create(r.Context(), req.Title, req.Description, req.Priority, req.BlockedBy)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusCreated, taskResponse(task))
}

// handleGetTask handles GET /api/tasks/{id}.
func (g *Gateway) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := g.tasks.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, taskResponse(task))
}

// handleDeleteTask handles DELETE /api/tasks/{id}.
func (g *Gateway) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := g.tasks.Delete(r.Context(), r.PathValue("id")); err != nil {
		g.sendServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAssignTask handles POST /api/tasks/{id}/assign.
func (g *Gateway) handleAssignTask(w http.ResponseWriter, r *http.Request) {
	var req AssignTaskRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}

	task, err := g.tasks.Assign(r.Context(), r.PathValue("id"), req.AssigneeIDs)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, taskResponse(task))
}

// handleUpdateTaskStatus handles POST /api/tasks/{id}/status.
func (g *Gateway) handleUpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}

	task, err := g.tasks.UpdateStatus(r.Context(), r.PathValue("id"), req.Status, req.AgentID)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, taskResponse(task))
}

// handleListMessages handles GET /api/tasks/{id}/messages.
// Supports ?limit=N; messages are returned in chronological order.
func (g *Gateway) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			g.sendJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	id := r.PathValue("id")
	if _, err := g.tasks.Get(r.Context(), id); err != nil {
		g.sendServiceError(w, err)
		return
	}

	msgs, err := g.mentions.Messages(r.Context(), id, limit)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	response := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		response = append(response, messageResponse(m))
	}
	g.sendJSON(w, http.StatusOK, response)
}

// handlePostMessage handles POST /api/tasks/{id}/messages.
func (g *Gateway) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}

	msg, err := g.mentions.PostMessage(r.Context(), r.PathValue("id"), req.FromAgentID, req.Content)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusCreated, messageResponse(msg))
}

// handleRunTask handles POST /api/tasks/{id}/run.
// Starts an execution in the background unless wait is set.
func (g *Gateway) handleRunTask(w http.ResponseWriter, r *http.Request) {
	var req RunTaskRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}
	if req.AgentID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	taskID := r.PathValue("id")
	if err := g.executor.Execute(r.Context(), taskID, req.AgentID, !req.Wait); err != nil {
		g.sendServiceError(w, err)
		return
	}

	task, err := g.tasks.Get(r.Context(), taskID)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusAccepted, taskResponse(task))
}

// handleStopTask handles POST /api/tasks/{id}/stop.
// Stopping a task with no live execution is a no-op.
func (g *Gateway) handleStopTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if _, err := g.tasks.Get(r.Context(), taskID); err != nil {
		g.sendServiceError(w, err)
		return
	}

	g.executor.Stop(taskID)
	w.WriteHeader(http.StatusAccepted)
}

// handleTranscript handles GET /api/tasks/{id}/transcript.
// Returns the chunks of the live or most recent execution.
func (g *Gateway) handleTranscript(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if _, err := g.tasks.Get(r.Context(), taskID); err != nil {
		g.sendServiceError(w, err)
		return
	}

	g.sendJSON(w, http.StatusOK, g.executor.Transcript(taskID))
}

// handleListRunning handles GET /api/tasks/running.
func (g *Gateway) handleListRunning(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, g.executor.ListRunning())
}

// handleListDocuments handles GET /api/documents.
// Supports ?task_id=X to list documents attached to a task.
func (g *Gateway) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := g.documents.List(r.Context(), r.URL.Query().Get("task_id"))
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	response := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		response = append(response, documentResponse(d))
	}
	g.sendJSON(w, http.StatusOK, response)
}

// handleCreateDocument handles POST /api/documents.
func (g *Gateway) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}

	doc, err := g.documents.Create(r.Context(), req.Title, req.Content, req.Type, req.TaskID, req.AuthorID)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusCreated, documentResponse(doc))
}

// handleGetDocument handles GET /api/documents/{id}.
func (g *Gateway) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := g.documents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, documentResponse(doc))
}

// handleUpdateDocument handles PUT /api/documents/{id}.
func (g *Gateway) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var req UpdateDocumentRequest
	if !g.decodeJSON(w, r, &req) {
		return
	}

	doc, err := g.documents.Update(r.Context(), r.PathValue("id"), req.Title, req.Content)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, documentResponse(doc))
}

// handleDocumentHTML handles GET /api/documents/{id}/html.
// Renders the document's markdown content as HTML.
func (g *Gateway) handleDocumentHTML(w http.ResponseWriter, r *http.Request) {
	html, err := g.documents.RenderHTML(r.Context(), r.PathValue("id"))
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(html))
}

// handleActivityFeed handles GET /api/activity. Supports ?limit=N.
func (g *Gateway) handleActivityFeed(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			g.sendJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := g.activity.Feed(r.Context(), limit)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}

	response := make([]ActivityResponse, 0, len(entries))
	for _, e := range entries {
		response = append(response, activityResponse(e))
	}
	g.sendJSON(w, http.StatusOK, response)
}

// handleStats handles GET /api/stats.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := g.tasks.Stats(r.Context())
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, StatsResponse{
		ByStatus:   counts.ByStatus,
		ByPriority: counts.ByPriority,
	})
}
