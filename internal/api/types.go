package api

import (
	"time"

	"github.com/triage-ai/lark-agent/internal/chread"
)

// RootResp is the body of GET /.
type RootResp struct {
	Message   string   `json:"message"`
	Endpoints []string `json:"endpoints"`
}

// --- POST /agent/run ---

// RunRequest is the JSON body for POST /agent/run.
type RunRequest struct {
	Prompt      string `json:"prompt"`
	SessionID   string `json:"session_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// TableResp describes the resolved table of a turn.
type TableResp struct {
	Name   string `json:"name,omitempty"`
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
}

// IntentResp describes the analyzed intent of a turn.
type IntentResp struct {
	Category   string `json:"category"`
	Action     string `json:"action"`
	Confidence int    `json:"confidence"`
}

// RunResponse is returned by POST /agent/run.
type RunResponse struct {
	Result      string     `json:"result"`
	RequestID   string     `json:"request_id"`
	Intent      IntentResp `json:"intent"`
	Table       TableResp  `json:"table"`
	Verdict     string     `json:"verdict"`
	ToolCalls   int        `json:"tool_calls"`
	DeniedCalls int        `json:"denied_calls"`
	LatencyMs   float64    `json:"latency_ms"`
}

// --- POST /lark/command ---

// CommandRequest is the JSON body for POST /lark/command.
type CommandRequest struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// CommandResponse is returned by POST /lark/command.
type CommandResponse struct {
	Result string `json:"result"`
}

// --- MCP ---

// MCPConfigResp mirrors the effective remote tool configuration.
type MCPConfigResp struct {
	Mode          string            `json:"mcp_mode"`
	URL           string            `json:"url"`
	Transport     string            `json:"transport"`
	BaseLock      bool              `json:"base_lock"`
	AllowedBaseID string            `json:"allowed_base_id"`
	TableMap      map[string]string `json:"table_map"`
	AllowedTables []string          `json:"allowed_table_ids"`
}

// MCPHealthResp is the healthy body of GET /mcp/health.
type MCPHealthResp struct {
	Status        string `json:"status"`
	ToolCount     int    `json:"tool_count"`
	BaseLock      bool   `json:"base_lock"`
	AllowedBaseID string `json:"allowed_base_id"`
	TableCount    int    `json:"table_count"`
}

// MCPDegradedResp is the failure body of GET /mcp/health.
type MCPDegradedResp struct {
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	MCPConfig MCPDegradedCfg `json:"mcp_config"`
}

// MCPDegradedCfg is the config echoed back when the health probe fails.
type MCPDegradedCfg struct {
	Mode     string `json:"mode"`
	URL      string `json:"url"`
	BaseLock bool   `json:"base_lock"`
}

// --- Admin: clients ---

// CreateClientReq is the JSON body for POST /admin/clients.
type CreateClientReq struct {
	Name string `json:"name"`
}

// ClientResp describes an API client (no plaintext key).
type ClientResp struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	APIKeyPrefix string     `json:"api_key_prefix"`
	RevokedAt    *time.Time `json:"revoked_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ClientWithKeyResp includes the plaintext API key (shown once).
type ClientWithKeyResp struct {
	ClientResp
	APIKey string `json:"api_key"`
}

// --- Admin: events ---

// EventListResp is a page of task audit events.
type EventListResp struct {
	Events   []chread.EventRow `json:"events"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}
