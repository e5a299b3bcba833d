// ABOUTME: Agent roster subcommands for troupe-admin
// ABOUTME: List, create, delete, and heartbeat agents over the HTTP API

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

// agentRecord mirrors the server's agent JSON.
type agentRecord struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Role          string     `json:"role"`
	Description   string     `json:"description"`
	Status        string     `json:"status"`
	CurrentTaskID string     `json:"current_task_id"`
	Specialties   []string   `json:"specialties"`
	LastHeartbeat *time.Time `json:"last_heartbeat"`
	CreatedAt     time.Time  `json:"created_at"`
}

// notificationRecord mirrors the server's notification JSON.
type notificationRecord struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	SourceMessageID string    `json:"source_message_id"`
	Delivered       bool      `json:"delivered"`
	Read            bool      `json:"read"`
	CreatedAt       time.Time `json:"created_at"`
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Manage the agent roster",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		var agents []agentRecord
		if err := call(http.MethodGet, "/api/agents", nil, &agents); err != nil {
			return err
		}

		if len(agents) == 0 {
			fmt.Println("No agents registered.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tROLE\tSTATUS\tCURRENT TASK\tLAST HEARTBEAT")
		for _, a := range agents {
			hb := "-"
			if a.LastHeartbeat != nil {
				hb = formatTime(*a.LastHeartbeat)
			}
			task := a.CurrentTaskID
			if task == "" {
				task = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.Name, a.Role, colorStatus(a.Status), task, hb)
		}
		return w.Flush()
	},
}

var (
	createRole        string
	createDescription string
	createSpecialties []string
)

var agentsCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Register a new agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := map[string]any{
			"name":        args[0],
			"role":        createRole,
			"description": createDescription,
			"specialties": createSpecialties,
		}
		var agent agentRecord
		if err := call(http.MethodPost, "/api/agents", req, &agent); err != nil {
			return err
		}
		color.Green("Created agent %s (%s)", agent.Name, agent.ID)
		return nil
	},
}

var agentsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Remove an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(http.MethodDelete, "/api/agents/"+args[0], nil, nil); err != nil {
			return err
		}
		fmt.Println("Deleted.")
		return nil
	},
}

var agentsHeartbeatCmd = &cobra.Command{
	Use:   "heartbeat ID",
	Short: "Run an out-of-band heartbeat check for an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(http.MethodPost, "/api/agents/"+args[0]+"/heartbeat", nil, nil); err != nil {
			return err
		}
		fmt.Println("Heartbeat triggered.")
		return nil
	},
}

var agentsInboxCmd = &cobra.Command{
	Use:   "inbox ID",
	Short: "Show an agent's unread notifications",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var notifs []notificationRecord
		if err := call(http.MethodGet, "/api/agents/"+args[0]+"/notifications?read=false", nil, &notifs); err != nil {
			return err
		}

		if len(notifs) == 0 {
			fmt.Println("Inbox empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tDELIVERED\tCREATED")
		for _, n := range notifs {
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", n.ID, n.Type, n.Delivered, formatTime(n.CreatedAt))
		}
		return w.Flush()
	},
}

func colorStatus(status string) string {
	switch strings.ToLower(status) {
	case "idle":
		return color.CyanString(status)
	case "active":
		return color.GreenString(status)
	case "blocked":
		return color.RedString(status)
	case "offline":
		return color.HiBlackString(status)
	default:
		return status
	}
}

func init() {
	agentsCreateCmd.Flags().StringVar(&createRole, "role", "", "Agent role (e.g. engineer, reviewer)")
	agentsCreateCmd.Flags().StringVar(&createDescription, "description", "", "Free-form description")
	agentsCreateCmd.Flags().StringSliceVar(&createSpecialties, "specialty", nil, "Specialty tag (repeatable)")

	agentsCmd.AddCommand(agentsListCmd)
	agentsCmd.AddCommand(agentsCreateCmd)
	agentsCmd.AddCommand(agentsDeleteCmd)
	agentsCmd.AddCommand(agentsHeartbeatCmd)
	agentsCmd.AddCommand(agentsInboxCmd)
}
