// ABOUTME: Minimal fake runner for E2E testing — reads a task request, echoes chunks as NDJSON.
// ABOUTME: Usage: fake-runner [-delay 50ms] [-fail]

package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/2389/troupe/internal/runner"
)

func main() {
	delay := flag.Duration("delay", 50*time.Millisecond, "Pause between chunks")
	fail := flag.Bool("fail", false, "End the run with an error chunk")
	flag.Parse()

	if err := run(*delay, *fail); err != nil {
		log.Fatal(err)
	}
}

func run(delay time.Duration, fail bool) error {
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading request: %w", err)
	}

	var req runner.Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		return fmt.Errorf("decoding request: %w", err)
	}

	fmt.Fprintf(os.Stderr, "running task %s for %s\n", req.TaskID, req.AgentName)

	out := json.NewEncoder(os.Stdout)
	emit := func(c runner.Chunk) error {
		if c.Timestamp.IsZero() {
			c.Timestamp = time.Now().UTC()
		}
		if err := out.Encode(c); err != nil {
			return err
		}
		time.Sleep(delay)
		return nil
	}

	chunks := []runner.Chunk{
		{Kind: runner.ChunkMessage, Content: fmt.Sprintf("%s picking up %q", req.AgentName, req.Prompt)},
		{Kind: runner.ChunkToolUse, Content: "inspect"},
		{Kind: runner.ChunkToolResult, Content: echoReply(req.Prompt)},
		{Kind: runner.ChunkMessage, Content: "wrapping up"},
	}
	for _, c := range chunks {
		if err := emit(c); err != nil {
			return err
		}
	}

	if fail {
		return emit(runner.Chunk{Kind: runner.ChunkError, Error: "fake runner configured to fail"})
	}
	return emit(runner.Chunk{Kind: runner.ChunkDone})
}

func echoReply(prompt string) string {
	lower := strings.ToLower(prompt)
	if strings.Contains(lower, "review") {
		return "Looked it over. Two nits, nothing blocking."
	}
	return fmt.Sprintf("Worked through %q and wrote up the result.", prompt)
}
