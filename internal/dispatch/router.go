// Package dispatch maps free-text Lark commands directly onto fixed remote
// operations, bypassing the model.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/triage-ai/lark-agent/internal/config"
	"github.com/triage-ai/lark-agent/internal/i18n"
	"github.com/triage-ai/lark-agent/internal/metrics"
	"github.com/triage-ai/lark-agent/internal/storage"
)

var (
	ErrInvalidParams = errors.New("invalid params")
	ErrNoBaseID      = errors.New("base id not configured")
	ErrTableDenied   = errors.New("table not in allowlist")
)

// Caller invokes a remote operation and returns its decoded result object.
type Caller interface {
	CallStructured(ctx context.Context, tool string, args map[string]any) (map[string]any, error)
}

// Category groups routes in the help text.
type Category string

const (
	CategoryTables    Category = "tables"
	CategoryFields    Category = "fields"
	CategoryRecords   Category = "records"
	CategoryUsers     Category = "users"
	CategoryDocuments Category = "documents"
	CategoryMessaging Category = "messaging"
	CategoryWiki      Category = "wiki"
)

type handlerFunc func(r *Router, ctx context.Context, p Params) (string, error)

// Route is one entry of the dispatch table.
type Route struct {
	Category Category
	Phrase   string // English command phrase
	Local    string // Thai command phrase
	Op       string // short operation name used in messages and metrics
	Tool     string // fully-qualified remote operation
	Bitable  bool   // scoped to the configured base
	Schema   string // JSON schema for params, empty when any params are accepted

	handle handlerFunc
}

// Matches reports whether lower contains either phrase.
func (rt Route) Matches(lower string) bool {
	return strings.Contains(lower, rt.Phrase) || (rt.Local != "" && strings.Contains(lower, rt.Local))
}

// Options configures a Router.
type Options struct {
	BaseID  string
	Allowed config.AllowedTables
	Timeout time.Duration
}

// Router resolves a command to its route and runs the handler.
type Router struct {
	caller  Caller
	opts    Options
	T       i18n.TranslateFunc
	routes  []Route
	schemas map[string]*jsonschema.Schema
	writer  storage.EventWriter
	logger  *zap.Logger
}

// NewRouter builds a Router over the default route table and compiles the
// params schemas.
func NewRouter(caller Caller, opts Options, T i18n.TranslateFunc, writer storage.EventWriter, logger *zap.Logger) (*Router, error) {
	if writer == nil {
		writer = storage.NewLogWriter(logger)
	}
	r := &Router{
		caller:  caller,
		opts:    opts,
		T:       T,
		routes:  defaultRoutes(),
		schemas: make(map[string]*jsonschema.Schema),
		writer:  writer,
		logger:  logger,
	}

	c := jsonschema.NewCompiler()
	for _, rt := range r.routes {
		if rt.Schema == "" {
			continue
		}
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(rt.Schema))
		if err != nil {
			return nil, fmt.Errorf("NewRouter: schema %s: %w", rt.Op, err)
		}
		url := rt.Op + ".json"
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("NewRouter: schema %s: %w", rt.Op, err)
		}
		sch, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("NewRouter: schema %s: %w", rt.Op, err)
		}
		r.schemas[rt.Op] = sch
	}
	return r, nil
}

// Routes returns the dispatch table in declaration order.
func (r *Router) Routes() []Route {
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// Match returns the first route whose phrase appears in command.
func (r *Router) Match(command string) (Route, bool) {
	lower := strings.ToLower(command)
	for _, rt := range r.routes {
		if rt.Matches(lower) {
			return rt, true
		}
	}
	return Route{}, false
}

// Dispatch runs the first matching handler and returns localized text. With
// no match it returns the help text. It never returns raw remote errors.
func (r *Router) Dispatch(ctx context.Context, command string, params map[string]any) string {
	rt, ok := r.Match(command)
	if !ok {
		return r.Help()
	}

	start := time.Now()
	text, err := r.run(ctx, rt, params)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		r.logger.Warn("dispatch failed",
			zap.String("operation", rt.Op),
			zap.String("tool", rt.Tool),
			zap.Error(err),
		)
		text = r.classifyErr(err, rt.Op)
	}

	metrics.DispatchTotal.WithLabelValues(rt.Op, outcome).Inc()
	r.audit(command, rt, outcome, err, text, time.Since(start))
	return text
}

func (r *Router) run(ctx context.Context, rt Route, raw map[string]any) (string, error) {
	p, err := normalizeParams(raw)
	if err != nil {
		return "", err
	}
	if sch, ok := r.schemas[rt.Op]; ok {
		if err := sch.Validate(map[string]any(p)); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
	}
	if rt.Bitable && r.opts.BaseID == "" {
		return "", ErrNoBaseID
	}
	if id := p.String("table_id", ""); id != "" && !r.opts.Allowed.Allows(id) {
		return "", fmt.Errorf("%w: %s", ErrTableDenied, id)
	}

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}
	return rt.handle(r, ctx, p)
}

// normalizeParams round-trips params through JSON so schema validation sees
// plain decoded values.
func normalizeParams(raw map[string]any) (Params, error) {
	if len(raw) == 0 {
		return Params{}, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	var p Params
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return p, nil
}

func (r *Router) classifyErr(err error, op string) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return r.T("error.timeout")
	case errors.Is(err, ErrInvalidParams):
		return r.T("error.validation")
	case errors.Is(err, ErrTableDenied):
		return r.T("error.permission")
	}
	return Classify(r.T, err.Error(), op)
}

// call sends body to tool with useUAT disabled.
func (r *Router) call(ctx context.Context, tool string, body map[string]any) (map[string]any, error) {
	body["useUAT"] = false
	return r.caller.CallStructured(ctx, tool, body)
}

// bitable is call with path.app_token pinned to the configured base.
func (r *Router) bitable(ctx context.Context, tool string, path, body map[string]any) (map[string]any, error) {
	if path == nil {
		path = map[string]any{}
	}
	path["app_token"] = r.opts.BaseID
	body["path"] = path
	return r.call(ctx, tool, body)
}

// Help lists every command grouped by category.
func (r *Router) Help() string {
	var b strings.Builder
	b.WriteString(r.T("help.title"))
	b.WriteString("\n")

	var current Category
	for _, rt := range r.routes {
		if rt.Category != current {
			current = rt.Category
			b.WriteString("\n")
			b.WriteString(r.T("help.category." + string(current)))
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "• `%s` - %s\n", rt.Phrase, r.T("help.op."+rt.Op))
	}

	b.WriteString("\n")
	b.WriteString(r.T("help.footer"))
	return b.String()
}

func (r *Router) audit(command string, rt Route, status string, err error, text string, d time.Duration) {
	var errMsg string
	if err != nil {
		errMsg = err.Error()
	}
	r.writer.Write(&storage.TaskEvent{
		RequestID:       uuid.NewString(),
		Timestamp:       time.Now().UTC(),
		Source:          "dispatch",
		PromptPreview:   storage.TruncatePayload(command, storage.PromptPreviewLength),
		Operation:       rt.Op,
		Status:          status,
		ErrorMessage:    errMsg,
		ResponsePreview: storage.TruncatePayload(text, storage.PromptPreviewLength),
		LatencyMs:       float32(d.Microseconds()) / 1000,
	})
}
