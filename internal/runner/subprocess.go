// ABOUTME: Subprocess runner: spawns a local agent binary per run
// ABOUTME: stdin carries one JSON request, stdout streams NDJSON chunks per line

package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// SubprocessRunner runs a local agent binary. The request is written to the
// child's stdin as a single JSON line; each stdout line is parsed as a Chunk.
// Unparseable lines become message chunks so plain-text agents still work.
type SubprocessRunner struct {
	Command string
	Args    []string
	// Timeout bounds the child's lifetime. Zero means context only.
	Timeout time.Duration

	logger *slog.Logger
}

// NewSubprocessRunner creates a runner for the given command.
func NewSubprocessRunner(command string, args ...string) *SubprocessRunner {
	return &SubprocessRunner{
		Command: command,
		Args:    args,
		logger:  slog.Default().With("component", "runner", "kind", "subprocess"),
	}
}

func (r *SubprocessRunner) Run(ctx context.Context, req Request) (<-chan Chunk, error) {
	if r.Command == "" {
		return nil, errors.New("subprocess command is required")
	}
	if r.logger == nil {
		r.logger = slog.Default().With("component", "runner", "kind", "subprocess")
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if r.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
	}

	cmd := exec.CommandContext(runCtx, r.Command, r.Args...)

	reqJSON, err := json.Marshal(req)
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	cmd.Stdin = strings.NewReader(string(reqJSON) + "\n")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, fmt.Errorf("opening stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, fmt.Errorf("starting %s: %w", r.Command, err)
	}

	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		if cancel != nil {
			defer cancel()
		}

		terminalSeen := false
		sc := bufio.NewScanner(stdout)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}

			var chunk Chunk
			if err := json.Unmarshal([]byte(line), &chunk); err != nil || chunk.Kind == "" {
				chunk = messageChunk(line)
			}
			if chunk.Timestamp.IsZero() {
				chunk.Timestamp = time.Now().UTC()
			}

			select {
			case <-runCtx.Done():
				if cmd.Process != nil {
					_ = cmd.Process.Kill()
				}
				_ = cmd.Wait()
				return
			case ch <- chunk:
			}
			if chunk.Terminal() {
				terminalSeen = true
				break
			}
		}

		scanErr := sc.Err()
		waitErr := cmd.Wait()

		if terminalSeen {
			if waitErr != nil {
				r.logger.Warn("subprocess exited with error after terminal chunk", "error", waitErr)
			}
			return
		}
		// The child exited without a terminal chunk: synthesize one.
		switch {
		case runCtx.Err() != nil:
			return
		case scanErr != nil:
			sendChunk(runCtx, ch, errorChunk(fmt.Errorf("reading subprocess output: %w", scanErr)))
		case waitErr != nil:
			sendChunk(runCtx, ch, errorChunk(fmt.Errorf("subprocess failed: %w", waitErr)))
		default:
			sendChunk(runCtx, ch, doneChunk())
		}
	}()
	return ch, nil
}

func sendChunk(ctx context.Context, ch chan<- Chunk, chunk Chunk) {
	select {
	case <-ctx.Done():
	case ch <- chunk:
	}
}
