// ABOUTME: SSE endpoint streaming live bus events to connected clients
// ABOUTME: Bridges the in-process event bus to text/event-stream responses

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/2389/troupe/internal/bus"
)

// keepaliveInterval is how often a comment line is written to hold idle
// connections open through proxies.
const keepaliveInterval = 30 * time.Second

// handleEvents handles GET /api/events.
// Streams every bus event as an SSE event named after the event type.
// Supports ?type=X to receive only one event type.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	typeFilter := bus.EventType(r.URL.Query().Get("type"))

	events, subID := g.bus.Subscribe(r.Context())
	defer g.bus.Unsubscribe(subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()

		case event, ok := <-events:
			if !ok {
				return
			}
			if typeFilter != "" && event.Type != typeFilter {
				continue
			}
			g.writeSSEEvent(w, string(event.Type), event)
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
