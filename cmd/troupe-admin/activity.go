// ABOUTME: Activity feed and stats subcommands for troupe-admin
// ABOUTME: Reads the shared log and task counters over the HTTP API

package main

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// activityRecord mirrors the server's activity JSON.
type activityRecord struct {
	Seq       int64     `json:"seq"`
	Type      string    `json:"type"`
	AgentID   string    `json:"agent_id"`
	TaskID    string    `json:"task_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

var activityLimit int

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show the recent activity feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("/api/activity?limit=%d", activityLimit)

		var entries []activityRecord
		if err := call(http.MethodGet, path, nil, &entries); err != nil {
			return err
		}

		for _, e := range entries {
			color.HiBlack("%s  [%s]", e.CreatedAt.Local().Format("15:04:05"), e.Type)
			fmt.Println("  " + e.Message)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show task counts by status and priority",
	RunE: func(cmd *cobra.Command, args []string) error {
		var stats struct {
			ByStatus   map[string]int `json:"by_status"`
			ByPriority map[string]int `json:"by_priority"`
		}
		if err := call(http.MethodGet, "/api/stats", nil, &stats); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STATUS\tCOUNT")
		for _, k := range sortedKeys(stats.ByStatus) {
			fmt.Fprintf(w, "%s\t%d\n", k, stats.ByStatus[k])
		}
		fmt.Fprintln(w, "\nPRIORITY\tCOUNT")
		for _, k := range sortedKeys(stats.ByPriority) {
			fmt.Fprintf(w, "%s\t%d\n", k, stats.ByPriority[k])
		}
		return w.Flush()
	},
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	activityCmd.Flags().IntVar(&activityLimit, "limit", 50, "Number of entries to show")
}
