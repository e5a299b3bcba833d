// ABOUTME: TUI event viewer for a troupe server — tails the live SSE feed.
// ABOUTME: Usage: troupe-tui [-server http://localhost:8080]

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// busEvent is the JSON envelope streamed from GET /api/events.
type busEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	TaskStarted *struct {
		TaskID    string `json:"task_id"`
		AgentName string `json:"agent_name"`
		TaskTitle string `json:"task_title"`
	} `json:"task_started"`
	TaskOutput *struct {
		TaskID     string `json:"task_id"`
		Content    string `json:"content"`
		OutputType string `json:"output_type"`
	} `json:"task_output"`
	TaskCompleted *struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
		Error  string `json:"error"`
	} `json:"task_completed"`
	ActivityCreated *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"activity_created"`
	HeartbeatSummary *struct {
		AgentName      string `json:"agent_name"`
		UnreadMentions int    `json:"unread_mentions"`
		AssignedTasks  int    `json:"assigned_tasks"`
		HasUrgentWork  bool   `json:"has_urgent_work"`
	} `json:"heartbeat_summary"`
}

// feedLine is one rendered row of the event feed.
type feedLine struct {
	at   time.Time
	kind string
	text string
}

type eventMsg busEvent
type disconnectMsg struct{ err error }

type model struct {
	server string
	lines  []feedLine
	status string
	width  int
	height int

	headerStyle lipgloss.Style
	timeStyle   lipgloss.Style
	kindStyles  map[string]lipgloss.Style
	textStyle   lipgloss.Style
	statusStyle lipgloss.Style
}

const maxLines = 500

func newModel(server string) model {
	return model{
		server: server,
		status: "connecting to " + server,

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("57")).
			Padding(0, 1),
		timeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		kindStyles: map[string]lipgloss.Style{
			"task_started":      lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
			"task_output":       lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
			"task_completed":    lipgloss.NewStyle().Foreground(lipgloss.Color("63")),
			"activity_created":  lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
			"heartbeat_summary": lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		},
		textStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		statusStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case eventMsg:
		m.status = "connected"
		m.lines = append(m.lines, renderEvent(busEvent(msg)))
		if len(m.lines) > maxLines {
			m.lines = m.lines[len(m.lines)-maxLines:]
		}

	case disconnectMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("disconnected: %v", msg.err)
		} else {
			m.status = "disconnected"
		}
	}
	return m, nil
}

func renderEvent(ev busEvent) feedLine {
	line := feedLine{at: ev.Timestamp, kind: ev.Type}
	switch {
	case ev.TaskStarted != nil:
		line.text = fmt.Sprintf("%s started %q (%s)", ev.TaskStarted.AgentName, ev.TaskStarted.TaskTitle, ev.TaskStarted.TaskID)
	case ev.TaskOutput != nil:
		line.text = fmt.Sprintf("[%s] %s", ev.TaskOutput.OutputType, ev.TaskOutput.Content)
	case ev.TaskCompleted != nil:
		line.text = fmt.Sprintf("task %s finished: %s", ev.TaskCompleted.TaskID, ev.TaskCompleted.Status)
		if ev.TaskCompleted.Error != "" {
			line.text += " (" + ev.TaskCompleted.Error + ")"
		}
	case ev.ActivityCreated != nil:
		line.text = ev.ActivityCreated.Message
	case ev.HeartbeatSummary != nil:
		line.text = fmt.Sprintf("%s: %d unread, %d assigned",
			ev.HeartbeatSummary.AgentName, ev.HeartbeatSummary.UnreadMentions, ev.HeartbeatSummary.AssignedTasks)
		if ev.HeartbeatSummary.HasUrgentWork {
			line.text += " [urgent]"
		}
	default:
		line.text = ev.Type
	}
	return line
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(m.headerStyle.Render("troupe events — " + m.server))
	b.WriteString("\n")

	visible := m.lines
	if m.height > 4 && len(visible) > m.height-3 {
		visible = visible[len(visible)-(m.height-3):]
	}
	for _, line := range visible {
		style, ok := m.kindStyles[line.kind]
		if !ok {
			style = m.textStyle
		}
		b.WriteString(m.timeStyle.Render(line.at.Local().Format("15:04:05")))
		b.WriteString(" ")
		b.WriteString(style.Render(line.text))
		b.WriteString("\n")
	}

	b.WriteString(m.statusStyle.Render(m.status + "  (q to quit)"))
	return b.String()
}

// streamEvents reads the SSE feed and forwards each event to the program.
func streamEvents(ctx context.Context, program *tea.Program, server string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+"/api/events", nil)
	if err != nil {
		program.Send(disconnectMsg{err: err})
		return
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		program.Send(disconnectMsg{err: err})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		program.Send(disconnectMsg{err: fmt.Errorf("server returned status %d", resp.StatusCode)})
		return
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var ev busEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}
		program.Send(eventMsg(ev))
	}
	program.Send(disconnectMsg{err: sc.Err()})
}

func main() {
	server := flag.String("server", "http://localhost:8080", "Troupe server URL")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	program := tea.NewProgram(newModel(*server), tea.WithAltScreen())
	go streamEvents(ctx, program, *server)

	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
