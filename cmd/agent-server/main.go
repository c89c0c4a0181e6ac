package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"

	"github.com/triage-ai/lark-agent/internal/api"
	"github.com/triage-ai/lark-agent/internal/auth"
	"github.com/triage-ai/lark-agent/internal/chread"
	"github.com/triage-ai/lark-agent/internal/config"
	"github.com/triage-ai/lark-agent/internal/dedup"
	"github.com/triage-ai/lark-agent/internal/dispatch"
	"github.com/triage-ai/lark-agent/internal/engine"
	"github.com/triage-ai/lark-agent/internal/i18n"
	"github.com/triage-ai/lark-agent/internal/llm"
	"github.com/triage-ai/lark-agent/internal/mcp"
	"github.com/triage-ai/lark-agent/internal/server"
	"github.com/triage-ai/lark-agent/internal/storage"
	"github.com/triage-ai/lark-agent/internal/store"
	"github.com/triage-ai/lark-agent/internal/telegram"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	url, transport := cfg.MCP.Endpoint()
	logger.Info("starting lark agent",
		zap.String("http_port", cfg.HTTPPort),
		zap.String("mcp_mode", string(cfg.MCP.Mode)),
		zap.String("mcp_url", url),
		zap.String("mcp_transport", string(transport)),
		zap.Bool("base_lock", cfg.Lock.Enabled),
		zap.Int("tables", cfg.Tables.Len()),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("locale", cfg.Locale),
	)
	if cfg.Allowed.Empty() {
		logger.Warn("ALLOWED_TABLE_IDS_JSON is empty, every table id is allowed")
	}

	// Localized messages
	bundle, err := i18n.NewBundle()
	if err != nil {
		logger.Fatal("failed to load message catalogues", zap.Error(err))
	}
	T := i18n.LocalizerFunc(bundle, cfg.Locale)

	// Remote tools
	tools, err := mcp.NewClient(cfg.MCP, cfg.Lock, logger)
	if err != nil {
		logger.Fatal("failed to configure MCP client", zap.Error(err))
	}
	defer func() { _ = tools.Close() }()

	// Model
	model, err := llm.New(cfg.LLM, nil, logger)
	if err != nil {
		logger.Fatal("failed to configure model provider", zap.Error(err))
	}

	// Storage: ClickHouse or LogWriter fallback
	writer := openWriter(cfg.ClickHouseDSN, logger)
	defer writer.Close()

	// ClickHouse reader (for /admin/events)
	var reader api.EventReader
	if cfg.ClickHouseDSN != "" {
		chReader, err := chread.NewReader(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = chReader.Close() }()
			reader = chReader
			logger.Info("clickhouse reader connected")
		}
	}

	eng := engine.New(cfg, model, tools, engine.NewSanitizer(i18n.SanitizerConfig(bundle, cfg.Locale)), writer, logger)

	router, err := dispatch.NewRouter(tools, dispatch.Options{
		BaseID:  cfg.Lock.BaseID,
		Allowed: cfg.Allowed,
		Timeout: cfg.MCP.Timeout,
	}, T, writer, logger)
	if err != nil {
		logger.Fatal("failed to build dispatch router", zap.Error(err))
	}

	// Postgres: API key auth and client admin
	var clients api.ClientAdmin
	var authenticator auth.Authenticator
	if cfg.PostgresDSN != "" {
		db, err := store.Open(context.Background(), cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		pgStore := store.NewStore(db)
		if err := pgStore.Migrate(context.Background()); err != nil {
			logger.Fatal("failed to migrate postgres", zap.Error(err))
		}
		clients = pgStore
		authenticator = auth.NewPostgresAuthenticator(pgStore, cfg.AuthCacheTTL, logger)
		logger.Info("postgres connected, API key auth enabled")
	} else if len(cfg.StaticAPIKeys) > 0 {
		authenticator = auth.NewStaticAuthenticator(cfg.StaticAPIKeys)
		logger.Info("static API key auth enabled", zap.Int("keys", len(cfg.StaticAPIKeys)))
	} else {
		logger.Warn("no POSTGRES_DSN or AGENT_API_KEYS set, /agent/run and /lark/command are unauthenticated")
	}

	// Telegram background processing
	var updates api.UpdateSubmitter
	var processor *telegram.Processor
	if cfg.Telegram.Token != "" {
		seen := openDedup(cfg, logger)
		defer func() { _ = seen.Close() }()
		processor = telegram.NewProcessor(eng, router, telegram.NewBotSender(cfg.Telegram, nil), seen, T,
			telegram.ProcessorOptions{
				Workers:   cfg.Webhook.Workers,
				QueueSize: cfg.Webhook.QueueSize,
			}, logger)
		updates = processor
	} else {
		logger.Info("no TG_TOKEN set, telegram webhook disabled")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// gRPC health
	var grpcServer *grpc.Server
	if cfg.GRPCPort != "" {
		health := server.NewHealthServer(tools, 30*time.Second, logger)
		grpcServer = grpc.NewServer()
		health.Register(grpcServer)
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			logger.Fatal("failed to listen for grpc", zap.Error(err))
		}
		go health.Run(ctx)
		go func() {
			logger.Info("grpc health server listening", zap.String("addr", lis.Addr().String()))
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("grpc server failed", zap.Error(err))
			}
		}()
	}

	// HTTP API server
	deps := &api.Dependencies{
		Config:     cfg,
		Runner:     eng,
		Dispatcher: router,
		Tools:      tools,
		Updates:    updates,
		Auth:       authenticator,
		Clients:    clients,
		Reader:     reader,
		Logger:     logger,
	}
	// WriteTimeout covers a full /agent/run model loop.
	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 4 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	stop()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if processor != nil {
		// Accepted updates still get their final message.
		processor.Close()
	}

	logger.Info("lark agent stopped")
}

func openWriter(dsn string, logger *zap.Logger) storage.EventWriter {
	if dsn == "" {
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
		return storage.NewLogWriter(logger)
	}
	chWriter, err := storage.NewClickHouseWriter(dsn, logger)
	if err != nil {
		logger.Warn("clickhouse connection failed, falling back to log writer", zap.Error(err))
		return storage.NewLogWriter(logger)
	}
	logger.Info("clickhouse writer connected")
	return chWriter
}

func openDedup(cfg *config.Config, logger *zap.Logger) dedup.Store {
	if cfg.Redis.Addr == "" {
		logger.Info("no REDIS_ADDR set, using in-memory update dedup")
		return dedup.NewMemoryStore(cfg.Webhook.DedupTTL)
	}
	rs := dedup.NewRedisStore(cfg.Redis, cfg.Webhook.DedupTTL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rs.Ping(ctx); err != nil {
		// Claims fail open, so a Redis outage degrades to processing duplicates.
		logger.Warn("redis ping failed, dedup will fail open until it recovers", zap.Error(err))
	} else {
		logger.Info("redis dedup store connected", zap.String("addr", cfg.Redis.Addr))
	}
	return rs
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
