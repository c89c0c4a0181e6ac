// Package config loads the process-wide configuration once at startup.
// The resulting Config is immutable and passed explicitly to every component.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var (
	ErrMissingMCPURL      = errors.New("MCP URL not configured for selected mode")
	ErrBaseLockViolation  = errors.New("MCP URL not allowed by base lock")
	ErrUnknownLLMProvider = errors.New("unknown LLM provider")
)

// Mode selects the remote endpoint and transport variant.
type Mode string

const (
	ModeBase   Mode = "base"   // streamable HTTP at LARK_MCP_BASE_URL
	ModeStream Mode = "stream" // streamable HTTP at LARK_MCP_STREAM_URL
	ModeSSE    Mode = "sse"    // SSE at LARK_MCP_URL
)

// Transport names the wire transport used for a Mode.
type Transport string

const (
	TransportStreamable Transport = "streamable_http"
	TransportSSE        Transport = "sse"
)

// MCPConfig describes how to reach the remote tool server.
type MCPConfig struct {
	Mode       Mode
	BaseURL    string
	StreamURL  string
	SSEURL     string
	AuthHeader string
	AuthValue  string
	Timeout    time.Duration
}

// Endpoint returns the URL and transport for the configured mode.
func (c MCPConfig) Endpoint() (string, Transport) {
	switch c.Mode {
	case ModeBase:
		return c.BaseURL, TransportStreamable
	case ModeStream:
		return c.StreamURL, TransportStreamable
	default:
		return c.SSEURL, TransportSSE
	}
}

// Headers returns the extra HTTP headers sent on every remote request.
func (c MCPConfig) Headers() map[string]string {
	if c.AuthHeader == "" || c.AuthValue == "" {
		return nil
	}
	return map[string]string{c.AuthHeader: c.AuthValue}
}

// BaseLock pins remote traffic to one URL prefix and one base id.
type BaseLock struct {
	Enabled bool
	Prefix  string
	BaseID  string
}

// CheckURL fails when the lock is on, a prefix is configured and url does not start with it.
func (l BaseLock) CheckURL(url string) error {
	if !l.Enabled || l.Prefix == "" {
		return nil
	}
	if !strings.HasPrefix(url, l.Prefix) {
		return fmt.Errorf("%w: url=%s", ErrBaseLockViolation, url)
	}
	return nil
}

// LLMConfig selects and configures the model provider.
type LLMConfig struct {
	Provider       string // "openai" or "anthropic"
	OpenAIKey      string
	OpenAIBaseURL  string
	OpenAIModel    string
	AnthropicKey   string
	AnthropicModel string
	MaxToolRounds  int
	Timeout        time.Duration
}

// TelegramConfig configures the messaging transport.
type TelegramConfig struct {
	Token         string
	APIBase       string
	WebhookSecret string
}

// WebhookConfig configures background processing of inbound updates.
type WebhookConfig struct {
	Workers   int
	QueueSize int
	DedupTTL  time.Duration
}

// RedisConfig configures the optional dedup store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config is the full process configuration.
type Config struct {
	HTTPPort string
	GRPCPort string
	LogLevel string
	Locale   string

	MCP     MCPConfig
	Lock    BaseLock
	Tables  TableMap
	Allowed AllowedTables

	LLM      LLMConfig
	Telegram TelegramConfig
	Webhook  WebhookConfig
	Redis    RedisConfig

	PostgresDSN   string
	StaticAPIKeys []string
	AuthCacheTTL  time.Duration
	AdminToken    string
	ClickHouseDSN string
}

// Load reads an optional .env file and then the process environment.
func Load(logger *zap.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to read .env file", zap.Error(err))
	}
	return FromEnv(os.Getenv, logger)
}

// FromEnv builds a Config from getenv. Malformed table JSON degrades to an
// empty value with a warning; a missing URL for the selected mode is an error.
func FromEnv(getenv func(string) string, logger *zap.Logger) (*Config, error) {
	e := env{getenv: getenv}

	cfg := &Config{
		HTTPPort: e.str("HTTP_PORT", "8080"),
		GRPCPort: e.str("GRPC_PORT", ""),
		LogLevel: e.str("LOG_LEVEL", "info"),
		Locale:   e.str("LOCALE", "th"),
		MCP: MCPConfig{
			Mode:       Mode(strings.ToLower(e.str("MCP_MODE", string(ModeBase)))),
			BaseURL:    e.str("LARK_MCP_BASE_URL", ""),
			StreamURL:  e.str("LARK_MCP_STREAM_URL", ""),
			SSEURL:     e.str("LARK_MCP_URL", "http://lark-mcp:3000/sse"),
			AuthHeader: e.str("LARK_MCP_AUTH_HEADER", ""),
			AuthValue:  e.str("LARK_MCP_AUTH_VALUE", ""),
			Timeout:    e.duration("MCP_TIMEOUT", 30*time.Second),
		},
		Lock: BaseLock{
			Enabled: e.boolean("BASE_LOCK", true),
			Prefix:  e.str("LARK_ALLOWED_BASE_PREFIX", ""),
			BaseID:  e.str("LARK_ALLOWED_BASE_ID", ""),
		},
		LLM: LLMConfig{
			Provider:       strings.ToLower(e.str("LLM_PROVIDER", "openai")),
			OpenAIKey:      e.str("OPENAI_API_KEY", ""),
			OpenAIBaseURL:  e.str("OPENAI_BASE_URL", ""),
			OpenAIModel:    e.str("OPENAI_MODEL", "gpt-4o"),
			AnthropicKey:   e.str("ANTHROPIC_API_KEY", ""),
			AnthropicModel: e.str("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
			MaxToolRounds:  e.integer("LLM_MAX_TOOL_ROUNDS", 8),
			Timeout:        e.duration("MODEL_TIMEOUT", 60*time.Second),
		},
		Telegram: TelegramConfig{
			Token:         e.str("TG_TOKEN", ""),
			APIBase:       strings.TrimSuffix(e.str("TG_API_BASE", "https://api.telegram.org"), "/"),
			WebhookSecret: e.str("TG_WEBHOOK_SECRET", ""),
		},
		Webhook: WebhookConfig{
			Workers:   e.integer("WEBHOOK_WORKERS", 4),
			QueueSize: e.integer("WEBHOOK_QUEUE_SIZE", 256),
			DedupTTL:  e.duration("DEDUP_TTL", 24*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     e.str("REDIS_ADDR", ""),
			Password: e.str("REDIS_PASSWORD", ""),
			DB:       e.integer("REDIS_DB", 0),
		},
		PostgresDSN:   e.str("POSTGRES_DSN", ""),
		StaticAPIKeys: splitList(e.str("AGENT_API_KEYS", "")),
		AuthCacheTTL:  e.duration("AUTH_CACHE_TTL", 30*time.Second),
		AdminToken:    e.str("ADMIN_TOKEN", ""),
		ClickHouseDSN: e.str("CLICKHOUSE_DSN", ""),
	}

	tables, replaced, skipped, err := ParseTableMap(e.str("TABLE_MAP_JSON", "{}"))
	if err != nil {
		logger.Warn("TABLE_MAP_JSON is malformed, using empty table map", zap.Error(err))
	}
	for _, name := range replaced {
		logger.Warn("duplicate table name in TABLE_MAP_JSON, last entry wins", zap.String("name", name))
	}
	for _, name := range skipped {
		logger.Warn("non-string table id in TABLE_MAP_JSON, entry ignored", zap.String("name", name))
	}
	cfg.Tables = tables

	allowed, err := ParseAllowedTables(e.str("ALLOWED_TABLE_IDS_JSON", "[]"))
	if err != nil {
		logger.Warn("ALLOWED_TABLE_IDS_JSON is malformed, allowing every table", zap.Error(err))
	}
	cfg.Allowed = allowed
	if cfg.Allowed.Empty() && cfg.Tables.Len() > 0 {
		logger.Warn("table allowlist is empty, every mapped table is allowed")
	}

	if url, _ := cfg.MCP.Endpoint(); url == "" {
		return nil, fmt.Errorf("%w: mode=%s", ErrMissingMCPURL, cfg.MCP.Mode)
	}
	switch cfg.LLM.Provider {
	case "openai", "anthropic":
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownLLMProvider, cfg.LLM.Provider)
	}

	return cfg, nil
}

type env struct {
	getenv func(string) string
}

func (e env) str(key, defaultVal string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func (e env) integer(key string, defaultVal int) int {
	if v := e.getenv(key); v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return defaultVal
}

func (e env) boolean(key string, defaultVal bool) bool {
	v := strings.ToLower(strings.TrimSpace(e.getenv(key)))
	if v == "" {
		return defaultVal
	}
	switch v {
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}

func (e env) duration(key string, defaultVal time.Duration) time.Duration {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
