// ABOUTME: Agent-runner boundary: the contract between the executor and the model backend
// ABOUTME: Defines the chunk stream protocol shared by all runner implementations

package runner

import (
	"context"
	"time"
)

// Chunk kinds. A run is a finite stream of output chunks followed by exactly
// one terminal chunk (done or error).
const (
	ChunkMessage    = "message"
	ChunkToolUse    = "tool_use"
	ChunkToolResult = "tool_result"
	ChunkDone       = "done"
	ChunkError      = "error"
)

// Chunk is one unit of streamed runner output.
type Chunk struct {
	Kind      string    `json:"kind"`
	Content   string    `json:"content,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Terminal reports whether this chunk ends the stream.
func (c Chunk) Terminal() bool {
	return c.Kind == ChunkDone || c.Kind == ChunkError
}

// Request describes one run: the prompt built from the task plus recent
// conversation context.
type Request struct {
	TaskID    string `json:"task_id"`
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	Prompt    string `json:"prompt"`
	Context   string `json:"context,omitempty"`
}

// Runner produces a lazy, finite, non-restartable sequence of output chunks
// for one run. The returned channel is closed after the terminal chunk.
// Cancelling ctx stops the stream at the next chunk boundary; the runner
// still closes the channel.
type Runner interface {
	Run(ctx context.Context, req Request) (<-chan Chunk, error)
}

func messageChunk(content string) Chunk {
	return Chunk{Kind: ChunkMessage, Content: content, Timestamp: time.Now().UTC()}
}

func doneChunk() Chunk {
	return Chunk{Kind: ChunkDone, Timestamp: time.Now().UTC()}
}

func errorChunk(err error) Chunk {
	return Chunk{Kind: ChunkError, Error: err.Error(), Timestamp: time.Now().UTC()}
}
