// ABOUTME: Admin CLI for the troupe orchestration server
// ABOUTME: Talks to the HTTP API to manage agents, tasks, and executions

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// baseURL resolves the server address from flags or environment.
var serverURL string

var rootCmd = &cobra.Command{
	Use:   "troupe-admin",
	Short: "Manage a troupe orchestration server",
	Long: `troupe-admin is the operator CLI for a running troupe-server.

It manages the agent roster, creates and assigns tasks, posts messages,
starts and stops executions, and tails the activity feed.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	defaultURL := os.Getenv("TROUPE_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultURL, "Base URL of the troupe server")

	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(activityCmd)
	rootCmd.AddCommand(statsCmd)
}

func main() {
	Execute()
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

// apiError is the JSON error envelope returned by the server.
type apiError struct {
	Error string `json:"error"`
}

// call performs a JSON request against the server and decodes the response
// into out when out is non-nil.
func call(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, serverURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// formatTime renders a timestamp compactly for table output.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("Jan 02 15:04")
}
