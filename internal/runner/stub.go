// ABOUTME: Deterministic stub runner for tests and demos
// ABOUTME: Emits scripted chunks with an optional inter-chunk delay

package runner

import (
	"context"
	"fmt"
	"time"
)

// StubRunner emits a fixed chunk script without calling any backend.
// With no script configured it produces a plausible three-step run.
type StubRunner struct {
	// Script, when non-empty, is emitted verbatim (terminal chunk included).
	Script []Chunk
	// Delay is the pause between chunks. Useful to exercise cancellation.
	Delay time.Duration
	// Fail makes the default script end in an error chunk.
	Fail bool
}

func (r *StubRunner) Run(ctx context.Context, req Request) (<-chan Chunk, error) {
	script := r.Script
	if len(script) == 0 {
		script = []Chunk{
			messageChunk(fmt.Sprintf("%s picking up %q", req.AgentName, req.Prompt)),
			{Kind: ChunkToolUse, Content: "think", Timestamp: time.Now().UTC()},
			{Kind: ChunkToolResult, Content: "worked through the request", Timestamp: time.Now().UTC()},
			messageChunk("all done"),
		}
		if r.Fail {
			script = append(script, errorChunk(fmt.Errorf("stub runner configured to fail")))
		} else {
			script = append(script, doneChunk())
		}
	}

	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		for _, chunk := range script {
			if r.Delay > 0 {
				timer := time.NewTimer(r.Delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			select {
			case <-ctx.Done():
				return
			case ch <- chunk:
			}
		}
	}()
	return ch, nil
}
