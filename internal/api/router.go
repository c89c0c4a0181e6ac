package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/triage-ai/lark-agent/internal/auth"
	"github.com/triage-ai/lark-agent/internal/chread"
	"github.com/triage-ai/lark-agent/internal/config"
	"github.com/triage-ai/lark-agent/internal/engine"
	"github.com/triage-ai/lark-agent/internal/store"
	"github.com/triage-ai/lark-agent/internal/telegram"
)

// TaskRunner runs one free-text task through the orchestrator.
type TaskRunner interface {
	Run(ctx context.Context, req engine.TaskRequest) (*engine.TaskResult, error)
}

// CommandDispatcher executes a structured command.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, command string, params map[string]any) string
}

// ToolProber lists the remote tools to check reachability.
type ToolProber interface {
	Probe(ctx context.Context) (int, error)
}

// UpdateSubmitter hands an inbound update to background processing.
type UpdateSubmitter interface {
	Submit(ctx context.Context, u telegram.Update) telegram.Outcome
}

// ClientAdmin manages API clients.
type ClientAdmin interface {
	CreateClient(ctx context.Context, name string) (*store.APIClient, string, error)
	ListClients(ctx context.Context) ([]*store.APIClient, error)
	RevokeClient(ctx context.Context, id string) (*store.APIClient, error)
	RotateAPIKey(ctx context.Context, id string) (*store.APIClient, string, error)
}

// EventReader queries the task audit trail.
type EventReader interface {
	ListEvents(ctx context.Context, params chread.ListEventsParams) ([]chread.EventRow, int, error)
	GetEvent(ctx context.Context, requestID string) (*chread.EventRow, error)
	GetSummary(ctx context.Context, days int) (*chread.Summary, error)
}

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Config     *config.Config
	Runner     TaskRunner
	Dispatcher CommandDispatcher
	Tools      ToolProber
	Updates    UpdateSubmitter    // nil when Telegram is not configured
	Auth       auth.Authenticator // nil disables API key checks
	Clients    ClientAdmin        // nil without Postgres
	Reader     EventReader        // nil if ClickHouse unavailable
	RunTimeout time.Duration
	Logger     *zap.Logger
}

var endpoints = []string{
	"/health", "/mcp/health", "/mcp/config",
	"/agent/run", "/lark/command", "/telegram/webhook", "/metrics",
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	if deps.RunTimeout <= 0 {
		deps.RunTimeout = 3 * time.Minute
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, RootResp{Message: "Lark MCP Agent API", Endpoints: endpoints})
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /mcp/health", deps.handleMCPHealth)
	mux.HandleFunc("GET /mcp/config", deps.handleMCPConfig)
	mux.Handle("GET /metrics", promhttp.Handler())

	// API key required
	mux.HandleFunc("POST /agent/run", deps.authMiddleware(deps.handleRun))
	mux.HandleFunc("POST /lark/command", deps.authMiddleware(deps.handleCommand))

	// Secret header checked inside when configured
	mux.HandleFunc("POST /telegram/webhook", deps.handleWebhook)

	// Admin routes exist only when an admin token is configured.
	if deps.Config.AdminToken != "" {
		mux.HandleFunc("POST /admin/clients", deps.adminMiddleware(deps.handleCreateClient))
		mux.HandleFunc("GET /admin/clients", deps.adminMiddleware(deps.handleListClients))
		mux.HandleFunc("DELETE /admin/clients/{client_id}", deps.adminMiddleware(deps.handleRevokeClient))
		mux.HandleFunc("POST /admin/clients/{client_id}/rotate-key", deps.adminMiddleware(deps.handleRotateKey))
		mux.HandleFunc("GET /admin/events", deps.adminMiddleware(deps.handleListEvents))
		mux.HandleFunc("GET /admin/events/summary", deps.adminMiddleware(deps.handleEventSummary))
		mux.HandleFunc("GET /admin/events/{request_id}", deps.adminMiddleware(deps.handleGetEvent))
	}

	return corsMiddleware(requestLogging(recoverer(mux, deps.Logger), deps.Logger))
}
