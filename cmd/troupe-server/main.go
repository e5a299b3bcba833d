// ABOUTME: Entry point for the troupe orchestration server
// ABOUTME: Manages agents, tasks, and executions behind an HTTP API

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/troupe/internal/config"
	"github.com/2389/troupe/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _
| |_ _ __ ___  _   _ _ __   ___
| __| '__/ _ \| | | | '_ \ / _ \
| |_| | | (_) | |_| | |_) |  __/
 \__|_|  \___/ \__,_| .__/ \___|
                    |_|
`

// getConfigPath returns the path to the server config file.
// Priority: TROUPE_CONFIG env var > XDG_CONFIG_HOME/troupe/server.yaml > ~/.config/troupe/server.yaml
func getConfigPath() string {
	if envPath := os.Getenv("TROUPE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "server.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "troupe", "server.yaml")
}

// getDataPath returns the path to the troupe data directory.
// Priority: XDG_DATA_HOME/troupe > ~/.local/share/troupe
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "troupe")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: troupe-server <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the orchestration server")
		fmt.Println("  init     Create a new config file interactively")
		fmt.Println("  health   Check server health")
		fmt.Println("  version  Print the server version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Printf("troupe-server %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Runner:    %s\n", cfg.Executor.Runner)

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting troupe-server",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"runner", cfg.Executor.Runner,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	// Watch the config file so edits are noticed without a restart. Only
	// logged for now; listeners and the store need a restart to change.
	go func() {
		err := config.Watch(ctx, configPath, logger, func(newCfg *config.Config) {
			logger.Info("config file changed; restart to apply listener or database changes",
				"heartbeat_interval", newCfg.Heartbeat.Interval,
			)
		})
		if err != nil && ctx.Err() == nil {
			logger.Warn("config watcher stopped", "error", err)
		}
	}()

	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(&consoleHandler{level: level, out: os.Stdout})
}

// consoleHandler writes colorized single-line log output.
type consoleHandler struct {
	mu    sync.Mutex
	level slog.Level
	out   io.Writer
	attrs []slog.Attr
}

var levelTags = map[slog.Level]string{
	slog.LevelDebug: color.MagentaString("DBG"),
	slog.LevelInfo:  color.CyanString("INF"),
	slog.LevelWarn:  color.YellowString("WRN"),
	slog.LevelError: color.New(color.FgRed, color.Bold).Sprint("ERR"),
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	tag, ok := levelTags[r.Level]
	if !ok {
		tag = "???"
	}

	var buf strings.Builder
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05")))
	buf.WriteByte(' ')
	buf.WriteString(tag)
	buf.WriteByte(' ')
	buf.WriteString(r.Message)

	writeAttr := func(a slog.Attr) {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	for _, a := range h.attrs {
		writeAttr(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, buf.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &consoleHandler{level: h.level, out: h.out, attrs: merged}
}

// WithGroup is accepted but flattened; grouped keys print ungrouped.
func (h *consoleHandler) WithGroup(string) slog.Handler {
	return h
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, body)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	in := bufio.NewReader(os.Stdin)

	fmt.Println("troupe-server configuration setup")
	fmt.Println("=================================")
	fmt.Println()

	outputFile := ask(in, "Config file path", getConfigPath())
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(ask(in, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server ---")
	httpAddr := ask(in, "HTTP address", "localhost:8080")

	fmt.Println("\n--- Database ---")
	dbPath := ask(in, "SQLite database path", filepath.Join(getDataPath(), "troupe.db"))

	fmt.Println("\n--- Executor ---")
	runnerKind := ask(in, "Runner (stub/subprocess/anthropic)", "stub")
	var runnerCommand string
	if runnerKind == "subprocess" {
		runnerCommand = ask(in, "Runner command", "")
	}

	fmt.Println("\n--- Heartbeat ---")
	hbInterval := ask(in, "Heartbeat interval", "15m")

	fmt.Println("\n--- Tailscale ---")
	tailscaleEnabled := yes(ask(in, "Enable Tailscale?", "no"))
	var tsHostname, tsAuthKey string
	var tsEphemeral bool
	if tailscaleEnabled {
		tsHostname = ask(in, "Tailscale hostname", "troupe")
		tsAuthKey = ask(in, "Tailscale auth key (leave empty for TS_AUTHKEY)", "")
		tsEphemeral = yes(ask(in, "Ephemeral node?", "no"))
	}

	fmt.Println("\n--- Logging ---")
	logLevel := ask(in, "Log level (debug/info/warn/error)", "info")
	logFormat := ask(in, "Log format (text/json)", "text")

	var cfg strings.Builder
	section := func(format string, args ...any) {
		fmt.Fprintf(&cfg, format, args...)
	}

	section("# troupe-server configuration\n# Generated by troupe-server init\n\n")
	section("server:\n  http_addr: %q\n\n", httpAddr)
	section("database:\n  path: %q\n\n", dbPath)
	section("executor:\n  runner: %q\n", runnerKind)
	if runnerCommand != "" {
		section("  command: %q\n", runnerCommand)
	}
	section("\nheartbeat:\n  interval: %q\n\n", hbInterval)
	section("tailscale:\n  enabled: %t\n", tailscaleEnabled)
	if tailscaleEnabled {
		section("  hostname: %q\n", tsHostname)
		if tsAuthKey != "" {
			section("  auth_key: %q\n", tsAuthKey)
		}
		section("  ephemeral: %t\n", tsEphemeral)
	}
	section("\nlogging:\n  level: %q\n  format: %q\n\n", logLevel, logFormat)
	section("metrics:\n  enabled: true\n  path: \"/metrics\"\n")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("Start the server with: troupe-server serve")
	return nil
}

func ask(in *bufio.Reader, question, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", question, defaultValue)
	} else {
		fmt.Printf("%s: ", question)
	}
	answer, err := in.ReadString('\n')
	if err != nil {
		return defaultValue
	}
	if answer = strings.TrimSpace(answer); answer == "" {
		return defaultValue
	}
	return answer
}

func yes(answer string) bool {
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	}
	return false
}
