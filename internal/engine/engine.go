package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/triage-ai/lark-agent/internal/config"
	"github.com/triage-ai/lark-agent/internal/metrics"
	"github.com/triage-ai/lark-agent/internal/storage"
	"go.uber.org/zap"
)

// ErrModelUnavailable is returned when no model capability is configured.
var ErrModelUnavailable = errors.New("model capability not configured")

// Options bounds the model loop.
type Options struct {
	MaxToolRounds int
	ModelTimeout  time.Duration
	ToolTimeout   time.Duration
}

// TaskRequest is one free-text task.
type TaskRequest struct {
	RequestID   string
	Text        string
	SessionID   string
	DisplayName string
	Source      string // "api" or "telegram"
}

// TaskResult is the finalized, sanitized outcome of a task.
type TaskResult struct {
	RequestID   string
	Text        string
	Turn        Turn
	ToolCalls   int
	DeniedCalls int
	Duration    time.Duration
}

// Engine sequences normalize → analyze/resolve → assess → compose → model
// loop → sanitize for a single request. It holds no per-request state and is
// safe for concurrent use.
type Engine struct {
	normalizer *Normalizer
	analyzer   *Analyzer
	resolver   *Resolver
	composer   *Composer
	sanitizer  *Sanitizer
	gate       *ToolGate

	model  ModelInvoker
	tools  ToolCaller
	writer storage.EventWriter
	opts   Options
	logger *zap.Logger
}

// New wires an Engine from the immutable configuration.
func New(cfg *config.Config, model ModelInvoker, tools ToolCaller, sanitizer *Sanitizer, writer storage.EventWriter, logger *zap.Logger) *Engine {
	opts := Options{
		MaxToolRounds: cfg.LLM.MaxToolRounds,
		ModelTimeout:  cfg.LLM.Timeout,
		ToolTimeout:   cfg.MCP.Timeout,
	}
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = 8
	}
	if sanitizer == nil {
		sanitizer = NewSanitizer(DefaultSanitizerConfig())
	}
	if writer == nil {
		writer = storage.NewLogWriter(logger)
	}
	return &Engine{
		normalizer: NewNormalizer(),
		analyzer:   NewAnalyzer(),
		resolver:   NewResolver(cfg.Tables, cfg.Allowed),
		composer:   NewComposer(cfg.Lock, cfg.Tables, cfg.Allowed),
		sanitizer:  sanitizer,
		gate:       NewToolGate(cfg.Lock, cfg.Allowed),
		model:      model,
		tools:      tools,
		writer:     writer,
		opts:       opts,
		logger:     logger,
	}
}

// Prepare runs the deterministic stages. It never calls a remote capability.
func (e *Engine) Prepare(req TaskRequest) Turn {
	normalized := e.normalizer.Normalize(req.Text)
	intent := e.analyzer.Analyze(normalized)
	table := e.resolver.Resolve(normalized)
	return Turn{
		Normalized:  normalized,
		Intent:      intent,
		Table:       table,
		Assessment:  Assess(intent, table),
		SessionID:   req.SessionID,
		DisplayName: req.DisplayName,
	}
}

// SystemMessages returns the composed instructions for a prepared turn.
func (e *Engine) SystemMessages(turn Turn) []Message {
	return e.composer.Compose(turn)
}

// Run executes a task end to end. Errors from either capability are returned
// wrapped; callers convert them to localized text.
func (e *Engine) Run(ctx context.Context, req TaskRequest) (res *TaskResult, err error) {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	turn := e.Prepare(req)
	res = &TaskResult{RequestID: req.RequestID, Turn: turn}
	defer func() {
		res.Duration = time.Since(start)
		e.record(req, res, err)
	}()

	if e.model == nil {
		return res, fmt.Errorf("Run: %w", ErrModelUnavailable)
	}

	specs, err := e.listTools(ctx)
	if err != nil {
		return res, fmt.Errorf("Run: list tools: %w", err)
	}
	known := make(map[string]bool, len(specs))
	for _, s := range specs {
		known[s.Name] = true
	}

	messages := append(e.composer.Compose(turn), Message{Role: RoleUser, Content: req.Text})

	for round := 0; round < e.opts.MaxToolRounds; round++ {
		reply, err := e.invoke(ctx, messages, specs)
		if err != nil {
			return res, fmt.Errorf("Run: invoke model: %w", err)
		}
		messages = append(messages, Message{Role: RoleAssistant, Content: reply.Text, ToolCalls: reply.ToolCalls})
		if len(reply.ToolCalls) == 0 {
			break
		}
		for _, call := range reply.ToolCalls {
			messages = append(messages, e.execute(ctx, req.RequestID, call, known, res))
		}
	}

	res.Text = e.sanitizer.Sanitize(messages, req.DisplayName)
	return res, nil
}

func (e *Engine) listTools(ctx context.Context) ([]ToolSpec, error) {
	ctx, cancel := e.withTimeout(ctx, e.opts.ToolTimeout)
	defer cancel()
	return e.tools.ListTools(ctx)
}

func (e *Engine) invoke(ctx context.Context, messages []Message, specs []ToolSpec) (*Reply, error) {
	ctx, cancel := e.withTimeout(ctx, e.opts.ModelTimeout)
	defer cancel()
	return e.model.Invoke(ctx, messages, specs)
}

// execute gates and runs one tool call, returning the tool message fed back to the model.
func (e *Engine) execute(ctx context.Context, requestID string, call ToolCall, known map[string]bool, res *TaskResult) Message {
	msg := Message{Role: RoleTool, ToolCallID: call.ID, Name: call.Name}
	res.ToolCalls++

	args, err := e.gate.Check(call, known)
	if err != nil {
		res.DeniedCalls++
		metrics.ToolCallsTotal.WithLabelValues(call.Name, "denied").Inc()
		e.logger.Warn("tool call denied",
			zap.String("request_id", requestID),
			zap.String("tool", call.Name),
			zap.Error(err),
		)
		msg.Content = "denied: " + err.Error()
		return msg
	}

	ctx, cancel := e.withTimeout(ctx, e.opts.ToolTimeout)
	defer cancel()

	out, err := e.tools.CallTool(ctx, call.Name, args)
	if err != nil {
		metrics.ToolCallsTotal.WithLabelValues(call.Name, "error").Inc()
		e.logger.Warn("tool call failed",
			zap.String("request_id", requestID),
			zap.String("tool", call.Name),
			zap.Error(err),
		)
		msg.Content = "error: " + err.Error()
		return msg
	}

	metrics.ToolCallsTotal.WithLabelValues(call.Name, "ok").Inc()
	msg.Content = out
	return msg
}

func (e *Engine) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (e *Engine) record(req TaskRequest, res *TaskResult, err error) {
	status := "ok"
	var errMsg string
	if err != nil {
		status = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
		errMsg = err.Error()
		e.logger.Error("task failed",
			zap.String("request_id", req.RequestID),
			zap.String("source", req.Source),
			zap.Error(err),
		)
	}

	verdict := res.Turn.Assessment.Verdict.String()
	metrics.TasksTotal.WithLabelValues(verdict, status).Inc()
	metrics.TaskDuration.WithLabelValues(req.Source).Observe(res.Duration.Seconds())

	hash := sha256.Sum256([]byte(req.Text))
	e.writer.Write(&storage.TaskEvent{
		RequestID:       req.RequestID,
		Timestamp:       time.Now().UTC(),
		Source:          req.Source,
		SessionID:       req.SessionID,
		PromptPreview:   storage.TruncatePayload(req.Text, storage.PromptPreviewLength),
		PromptHash:      hex.EncodeToString(hash[:]),
		Category:        res.Turn.Intent.Category.String(),
		Action:          res.Turn.Intent.Action.String(),
		Confidence:      uint16(res.Turn.Intent.Confidence),
		TableName:       res.Turn.Table.Name,
		TableID:         res.Turn.Table.ID,
		TableStatus:     res.Turn.Table.Status.String(),
		Verdict:         verdict,
		Reason:          res.Turn.Assessment.Reason,
		Status:          status,
		ToolCalls:       uint16(res.ToolCalls),
		DeniedCalls:     uint16(res.DeniedCalls),
		ErrorMessage:    errMsg,
		ResponsePreview: storage.TruncatePayload(res.Text, storage.PromptPreviewLength),
		LatencyMs:       float32(res.Duration.Microseconds()) / 1000,
	})
}
