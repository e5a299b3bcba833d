// ABOUTME: Task lifecycle subcommands for troupe-admin
// ABOUTME: Create, assign, transition, message, run, and stop tasks

package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// taskRecord mirrors the server's task JSON.
type taskRecord struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	AssigneeIDs []string   `json:"assignee_ids"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// messageRecord mirrors the server's message JSON.
type messageRecord struct {
	ID          string    `json:"id"`
	FromAgentID string    `json:"from_agent_id"`
	Content     string    `json:"content"`
	Mentions    []string  `json:"mentions"`
	CreatedAt   time.Time `json:"created_at"`
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Manage the task board",
}

var tasksListStatus string

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/api/tasks"
		if tasksListStatus != "" {
			path += "?status=" + tasksListStatus
		}

		var list []taskRecord
		if err := call(http.MethodGet, path, nil, &list); err != nil {
			return err
		}

		if len(list) == 0 {
			fmt.Println("No tasks.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPRIORITY\tASSIGNEES\tCREATED")
		for _, t := range list {
			assignees := "-"
			if len(t.AssigneeIDs) > 0 {
				assignees = strings.Join(t.AssigneeIDs, ",")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				t.ID, t.Title, colorTaskStatus(t.Status), t.Priority, assignees, formatTime(t.CreatedAt))
		}
		return w.Flush()
	},
}

var (
	taskPriority    string
	taskDescription string
)

var tasksCreateCmd = &cobra.Command{
	Use:   "create TITLE",
	Short: "Create a task in the inbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := map[string]any{
			"title":       args[0],
			"description": taskDescription,
			"priority":    taskPriority,
		}
		var task taskRecord
		if err := call(http.MethodPost, "/api/tasks", req, &task); err != nil {
			return err
		}
		color.Green("Created task %s", task.ID)
		return nil
	},
}

var tasksAssignCmd = &cobra.Command{
	Use:   "assign TASK AGENT [AGENT...]",
	Short: "Assign a task to one or more agents",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := map[string]any{"assignee_ids": args[1:]}
		var task taskRecord
		if err := call(http.MethodPost, "/api/tasks/"+args[0]+"/assign", req, &task); err != nil {
			return err
		}
		color.Green("Task %s is now %s", task.ID, task.Status)
		return nil
	},
}

var statusBy string

var tasksStatusCmd = &cobra.Command{
	Use:   "status TASK STATUS",
	Short: "Move a task through the lifecycle",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := map[string]any{"status": args[1]}
		if statusBy != "" {
			req["agent_id"] = statusBy
		}
		var task taskRecord
		if err := call(http.MethodPost, "/api/tasks/"+args[0]+"/status", req, &task); err != nil {
			return err
		}
		color.Green("Task %s is now %s", task.ID, task.Status)
		return nil
	},
}

var messageFrom string

var tasksPostCmd = &cobra.Command{
	Use:   "post TASK CONTENT",
	Short: "Post a message on a task (supports @mentions)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := map[string]any{
			"from_agent_id": messageFrom,
			"content":       args[1],
		}
		var msg messageRecord
		if err := call(http.MethodPost, "/api/tasks/"+args[0]+"/messages", req, &msg); err != nil {
			return err
		}
		if len(msg.Mentions) > 0 {
			fmt.Printf("Posted; notified %d agent(s).\n", len(msg.Mentions))
		} else {
			fmt.Println("Posted.")
		}
		return nil
	},
}

var tasksMessagesCmd = &cobra.Command{
	Use:   "messages TASK",
	Short: "Show a task's message thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var msgs []messageRecord
		if err := call(http.MethodGet, "/api/tasks/"+args[0]+"/messages", nil, &msgs); err != nil {
			return err
		}
		for _, m := range msgs {
			color.HiBlack("%s  %s", formatTime(m.CreatedAt), m.FromAgentID)
			fmt.Println("  " + m.Content)
		}
		return nil
	},
}

var (
	runAgentID string
	runWait    bool
)

var tasksRunCmd = &cobra.Command{
	Use:   "run TASK",
	Short: "Start an execution for a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := map[string]any{
			"agent_id": runAgentID,
			"wait":     runWait,
		}
		var task taskRecord
		if err := call(http.MethodPost, "/api/tasks/"+args[0]+"/run", req, &task); err != nil {
			return err
		}
		color.Green("Task %s: %s", task.ID, task.Status)
		return nil
	},
}

var tasksStopCmd = &cobra.Command{
	Use:   "stop TASK",
	Short: "Stop a running execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(http.MethodPost, "/api/tasks/"+args[0]+"/stop", nil, nil); err != nil {
			return err
		}
		fmt.Println("Stop requested.")
		return nil
	},
}

var tasksRunningCmd = &cobra.Command{
	Use:   "running",
	Short: "List live executions",
	RunE: func(cmd *cobra.Command, args []string) error {
		var running []struct {
			TaskID    string    `json:"task_id"`
			AgentID   string    `json:"agent_id"`
			StartedAt time.Time `json:"started_at"`
		}
		if err := call(http.MethodGet, "/api/tasks/running", nil, &running); err != nil {
			return err
		}

		if len(running) == 0 {
			fmt.Println("Nothing running.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TASK\tAGENT\tSTARTED")
		for _, r := range running {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.TaskID, r.AgentID, formatTime(r.StartedAt))
		}
		return w.Flush()
	},
}

func colorTaskStatus(status string) string {
	switch status {
	case "inbox":
		return color.HiBlackString(status)
	case "assigned":
		return color.CyanString(status)
	case "in_progress":
		return color.YellowString(status)
	case "review":
		return color.MagentaString(status)
	case "done":
		return color.GreenString(status)
	case "blocked":
		return color.RedString(status)
	default:
		return status
	}
}

func init() {
	tasksCreateCmd.Flags().StringVar(&taskPriority, "priority", "", "Priority (low/medium/high/urgent)")
	tasksCreateCmd.Flags().StringVar(&taskDescription, "description", "", "Task description")
	tasksPostCmd.Flags().StringVar(&messageFrom, "from", "", "Sender agent id")
	tasksStatusCmd.Flags().StringVar(&statusBy, "by", "", "Agent id to attribute the change to")
	_ = tasksPostCmd.MarkFlagRequired("from")
	tasksRunCmd.Flags().StringVar(&runAgentID, "agent", "", "Agent id to run as")
	_ = tasksRunCmd.MarkFlagRequired("agent")
	tasksRunCmd.Flags().BoolVar(&runWait, "wait", false, "Block until the run finishes")

	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksCreateCmd)
	tasksCmd.AddCommand(tasksAssignCmd)
	tasksCmd.AddCommand(tasksStatusCmd)
	tasksCmd.AddCommand(tasksPostCmd)
	tasksCmd.AddCommand(tasksMessagesCmd)
	tasksCmd.AddCommand(tasksRunCmd)
	tasksCmd.AddCommand(tasksStopCmd)
	tasksCmd.AddCommand(tasksRunningCmd)

	tasksListCmd.Flags().StringVar(&tasksListStatus, "status", "", "Filter by status")
}
