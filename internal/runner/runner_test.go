// ABOUTME: Tests for the runner chunk protocol and stub runner
// ABOUTME: Covers terminal chunks, scripted output, and cancellation between chunks

package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTerminal(t *testing.T) {
	assert.True(t, Chunk{Kind: ChunkDone}.Terminal())
	assert.True(t, Chunk{Kind: ChunkError}.Terminal())
	assert.False(t, Chunk{Kind: ChunkMessage}.Terminal())
	assert.False(t, Chunk{Kind: ChunkToolUse}.Terminal())
	assert.False(t, Chunk{Kind: ChunkToolResult}.Terminal())
}

func collect(t *testing.T, ch <-chan Chunk) []Chunk {
	t.Helper()
	var chunks []Chunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return chunks
			}
			chunks = append(chunks, chunk)
		case <-timeout:
			t.Fatal("timed out draining chunk stream")
		}
	}
}

func TestStubRunner_DefaultScriptEndsInDone(t *testing.T) {
	r := &StubRunner{}
	ch, err := r.Run(t.Context(), Request{TaskID: "task-001", AgentName: "shuri", Prompt: "Research"})
	require.NoError(t, err)

	chunks := collect(t, ch)
	require.NotEmpty(t, chunks)

	last := chunks[len(chunks)-1]
	assert.Equal(t, ChunkDone, last.Kind)
	for _, chunk := range chunks[:len(chunks)-1] {
		assert.False(t, chunk.Terminal(), "only the last chunk may be terminal")
	}
}

func TestStubRunner_FailEndsInError(t *testing.T) {
	r := &StubRunner{Fail: true}
	ch, err := r.Run(t.Context(), Request{TaskID: "task-001"})
	require.NoError(t, err)

	chunks := collect(t, ch)
	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	assert.Equal(t, ChunkError, last.Kind)
	assert.NotEmpty(t, last.Error)
}

func TestStubRunner_ScriptEmittedVerbatim(t *testing.T) {
	script := []Chunk{
		{Kind: ChunkMessage, Content: "one"},
		{Kind: ChunkMessage, Content: "two"},
		{Kind: ChunkDone},
	}
	r := &StubRunner{Script: script}
	ch, err := r.Run(t.Context(), Request{})
	require.NoError(t, err)

	chunks := collect(t, ch)
	require.Len(t, chunks, 3)
	assert.Equal(t, "one", chunks[0].Content)
	assert.Equal(t, "two", chunks[1].Content)
	assert.Equal(t, ChunkDone, chunks[2].Kind)
}

func TestStubRunner_CancellationStopsStream(t *testing.T) {
	r := &StubRunner{Delay: 50 * time.Millisecond}
	ctx, cancel := context.WithCancel(t.Context())

	ch, err := r.Run(ctx, Request{})
	require.NoError(t, err)

	// Take one chunk, then cancel mid-stream.
	first, ok := <-ch
	require.True(t, ok)
	assert.False(t, first.Terminal())
	cancel()

	chunks := collect(t, ch)
	// The stream closes without a terminal chunk; the executor owns the
	// stopped outcome.
	for _, chunk := range chunks {
		assert.False(t, chunk.Kind == ChunkDone, "cancelled run must not report done")
	}
}

func TestSubprocessRunner_RequiresCommand(t *testing.T) {
	r := &SubprocessRunner{}
	_, err := r.Run(t.Context(), Request{})
	assert.Error(t, err)
}
