// ABOUTME: Gateway orchestrator that wires the troupe services to an HTTP server
// ABOUTME: Manages listeners, startup recovery, heartbeat daemon, and shutdown lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tailscale.com/tsnet"

	"github.com/2389/troupe/internal/activity"
	"github.com/2389/troupe/internal/bus"
	"github.com/2389/troupe/internal/config"
	"github.com/2389/troupe/internal/documents"
	"github.com/2389/troupe/internal/executor"
	"github.com/2389/troupe/internal/heartbeat"
	"github.com/2389/troupe/internal/mentions"
	"github.com/2389/troupe/internal/metrics"
	"github.com/2389/troupe/internal/registry"
	"github.com/2389/troupe/internal/runner"
	"github.com/2389/troupe/internal/store"
	"github.com/2389/troupe/internal/tasks"
)

// Gateway owns every troupe component and the HTTP server fronting them.
type Gateway struct {
	config      *config.Config
	store       store.Store
	bus         *bus.Bus
	activity    *activity.Log
	registry    *registry.Registry
	tasks       *tasks.Manager
	mentions    *mentions.Service
	documents   *documents.Service
	executor    *executor.Executor
	heartbeat   *heartbeat.Daemon
	metrics     *metrics.Metrics
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
}

// initStore creates a store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("TROUPE_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// buildRunner selects the agent-runner backend from config.
func buildRunner(cfg *config.Config) (runner.Runner, error) {
	switch cfg.Executor.Runner {
	case "", "stub":
		return &runner.StubRunner{}, nil
	case "subprocess":
		return runner.NewSubprocessRunner(cfg.Executor.Command, cfg.Executor.Args...), nil
	case "anthropic":
		return runner.NewAnthropicRunner(runner.AnthropicConfig{
			APIKey:    cfg.Executor.APIKey,
			Model:     cfg.Executor.Model,
			MaxTokens: cfg.Executor.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown executor.runner %q", cfg.Executor.Runner)
	}
}

// New creates a Gateway with all services constructed and cross-wired.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	r, err := buildRunner(cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	m := metrics.New()
	eventBus := bus.NewBus(logger.With("component", "bus"))
	log := activity.NewLog(s, eventBus)

	reg := registry.New(s, log)
	taskMgr := tasks.New(s, log)
	mentionSvc := mentions.New(s, log)
	docSvc := documents.New(s, log)
	exec := executor.New(s, eventBus, log, r, m)
	hb := heartbeat.New(s, eventBus, m, cfg.Heartbeat.Interval)
	hb.SetParallelism(cfg.Heartbeat.Parallelism)

	// The executor is the source of truth for live executions; everything
	// that needs to ask "is this running" points at it after construction.
	reg.SetExecutionChecker(exec)
	taskMgr.SetExecutionChecker(exec)
	taskMgr.SetHeartbeatTrigger(hb)
	hb.SetExecutionChecker(exec)

	g := &Gateway{
		config:    cfg,
		store:     s,
		bus:       eventBus,
		activity:  log,
		registry:  reg,
		tasks:     taskMgr,
		mentions:  mentionSvc,
		documents: docSvc,
		executor:  exec,
		heartbeat: hb,
		metrics:   m,
		logger:    logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()
	g.registerRoutes(mux)

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// registerRoutes wires every HTTP endpoint onto the mux.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	mux.HandleFunc("GET /api/agents", g.handleListAgents)
	mux.HandleFunc("POST /api/agents", g.handleCreateAgent)
	mux.HandleFunc("GET /api/agents/{id}", g.handleGetAgent)
	mux.HandleFunc("PATCH /api/agents/{id}", g.handleUpdateAgent)
	mux.HandleFunc("DELETE /api/agents/{id}", g.handleDeleteAgent)
	mux.HandleFunc("POST /api/agents/{id}/heartbeat", g.handleTriggerHeartbeat)
	mux.HandleFunc("GET /api/agents/{id}/notifications", g.handleListNotifications)

	mux.HandleFunc("GET /api/tasks", g.handleListTasks)
	mux.HandleFunc("POST /api/tasks", g.handleCreateTask)
	mux.HandleFunc("GET /api/tasks/running", g.handleListRunning)
	mux.HandleFunc("GET /api/tasks/{id}", g.handleGetTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", g.handleDeleteTask)
	mux.HandleFunc("POST /api/tasks/{id}/assign", g.handleAssignTask)
	mux.HandleFunc("POST /api/tasks/{id}/status", g.handleUpdateTaskStatus)
	mux.HandleFunc("GET /api/tasks/{id}/messages", g.handleListMessages)
	mux.HandleFunc("POST /api/tasks/{id}/messages", g.handlePostMessage)
	mux.HandleFunc("POST /api/tasks/{id}/run", g.handleRunTask)
	mux.HandleFunc("POST /api/tasks/{id}/stop", g.handleStopTask)
	mux.HandleFunc("GET /api/tasks/{id}/transcript", g.handleTranscript)

	mux.HandleFunc("POST /api/notifications/{id}/delivered", g.handleMarkDelivered)
	mux.HandleFunc("POST /api/notifications/{id}/read", g.handleMarkRead)

	mux.HandleFunc("GET /api/documents", g.handleListDocuments)
	mux.HandleFunc("POST /api/documents", g.handleCreateDocument)
	mux.HandleFunc("GET /api/documents/{id}", g.handleGetDocument)
	mux.HandleFunc("PUT /api/documents/{id}", g.handleUpdateDocument)
	mux.HandleFunc("GET /api/documents/{id}/html", g.handleDocumentHTML)

	mux.HandleFunc("GET /api/activity", g.handleActivityFeed)
	mux.HandleFunc("GET /api/stats", g.handleStats)
	mux.HandleFunc("GET /api/events", g.handleEvents)

	if g.config.Metrics.Enabled {
		mux.Handle("GET "+g.config.Metrics.Path, promhttp.HandlerFor(
			g.metrics.Registry,
			promhttp.HandlerOpts{},
		))
	}
}

// Run starts the HTTP server and heartbeat daemon and blocks until the
// context is canceled. Returns nil on graceful shutdown, or an error if the
// server fails.
func (g *Gateway) Run(ctx context.Context) error {
	// In-progress tasks from a previous process have no live execution
	// behind them anymore; park them before accepting traffic.
	if err := g.executor.RecoverStale(ctx); err != nil {
		g.logger.Warn("stale execution recovery failed", "error", err)
	}

	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	hbCtx, hbCancel := context.WithCancel(ctx)
	defer hbCancel()
	go g.heartbeat.Run(hbCtx)

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// setupListener creates a listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		return g.setupTailscaleListener(ctx)
	}

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "troupe", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener creates a tsnet node and returns its HTTP listener.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	var tsAddr string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	}
	g.logger.Info("tailscale node ready", "hostname", tsCfg.Hostname, "tailscale_ip", tsAddr)

	ln, err := g.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, nil
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}

	g.bus.Close()
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the store answers queries.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := g.store.ListAgents(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
