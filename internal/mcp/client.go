// Package mcp is the remote tool capability: a Model Context Protocol client
// for the Lark tool server.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/triage-ai/lark-agent/internal/config"
	"github.com/triage-ai/lark-agent/internal/engine"
)

var (
	ErrNotConnected = errors.New("MCP session not connected")
	ErrToolFailed   = errors.New("MCP tool returned an error")
)

// toolSession is the subset of *mcp.ClientSession the client uses.
type toolSession interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Close() error
}

type connectFunc func(ctx context.Context) (toolSession, error)

const defaultHandshakeTimeout = 30 * time.Second

// liveSession ties a session to the context its transport was opened with.
// The SSE event stream lives as long as that context, so it is cancelled
// only when the session is closed.
type liveSession struct {
	toolSession
	cancel context.CancelFunc
}

func (s *liveSession) Close() error {
	err := s.toolSession.Close()
	s.cancel()
	return err
}

// Client talks to the remote tool server. The session is opened lazily on
// first use and shared by all callers; a closed connection is re-opened once
// per call.
type Client struct {
	cfg     config.MCPConfig
	lock    config.BaseLock
	connect connectFunc
	logger  *zap.Logger

	mu    sync.RWMutex
	sess  toolSession
	group singleflight.Group
}

// NewClient validates the endpoint against the base lock and returns a
// Client. No network call is made until the first ListTools or CallTool.
func NewClient(cfg config.MCPConfig, lock config.BaseLock, logger *zap.Logger) (*Client, error) {
	url, transport := cfg.Endpoint()
	if url == "" {
		return nil, fmt.Errorf("NewClient: %w: mode=%s", config.ErrMissingMCPURL, cfg.Mode)
	}
	if err := lock.CheckURL(url); err != nil {
		return nil, fmt.Errorf("NewClient: %w", err)
	}

	c := &Client{cfg: cfg, lock: lock, logger: logger}
	c.connect = func(ctx context.Context) (toolSession, error) {
		return dial(ctx, url, transport, cfg.Headers())
	}
	return c, nil
}

func dial(ctx context.Context, url string, transport config.Transport, headers map[string]string) (toolSession, error) {
	client := mcp.NewClient(
		&mcp.Implementation{
			Name:    "lark-agent",
			Version: "1.0",
		},
		&mcp.ClientOptions{},
	)
	httpClient := &http.Client{Transport: &headerTransport{headers: headers, base: http.DefaultTransport}}

	var t mcp.Transport
	switch transport {
	case config.TransportSSE:
		t = &mcp.SSEClientTransport{Endpoint: url, HTTPClient: httpClient}
	default:
		t = &mcp.StreamableClientTransport{Endpoint: url, HTTPClient: httpClient}
	}

	session, err := client.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s (%s): %w", url, transport, err)
	}
	return session, nil
}

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) == 0 {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// Endpoint returns the configured URL and transport, for diagnostics.
func (c *Client) Endpoint() (string, config.Transport) {
	return c.cfg.Endpoint()
}

func (c *Client) session(ctx context.Context) (toolSession, error) {
	c.mu.RLock()
	s := c.sess
	c.mu.RUnlock()
	if s != nil {
		return s, nil
	}

	v, err, _ := c.group.Do("connect", func() (any, error) {
		c.mu.RLock()
		existing := c.sess
		c.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		s, err := c.open(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.sess = s
		c.mu.Unlock()
		c.logger.Info("MCP session established", zap.String("mode", string(c.cfg.Mode)))
		return s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return v.(toolSession), nil
}

// open dials a new session on a context detached from the caller, so the
// transport outlives the call that triggered the connect. The handshake is
// bounded separately.
func (c *Client) open(ctx context.Context) (toolSession, error) {
	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	handshake := c.cfg.Timeout
	if handshake <= 0 {
		handshake = defaultHandshakeTimeout
	}
	timer := time.AfterFunc(handshake, cancel)

	s, err := c.connect(connCtx)
	if !timer.Stop() {
		if err == nil {
			_ = s.Close()
		}
		cancel()
		return nil, fmt.Errorf("handshake timed out after %s", handshake)
	}
	if err != nil {
		cancel()
		return nil, err
	}
	return &liveSession{toolSession: s, cancel: cancel}, nil
}

// reset drops s if it is still the current session.
func (c *Client) reset(s toolSession) {
	c.mu.Lock()
	if c.sess == s {
		c.sess = nil
	}
	c.mu.Unlock()
	_ = s.Close()
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

// ListTools discovers every tool the server offers, following pagination.
func (c *Client) ListTools(ctx context.Context) ([]engine.ToolSpec, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var specs []engine.ToolSpec
	err := c.do(ctx, func(s toolSession) error {
		specs = specs[:0]
		params := &mcp.ListToolsParams{}
		for {
			res, err := s.ListTools(ctx, params)
			if err != nil {
				return err
			}
			for _, t := range res.Tools {
				specs = append(specs, toSpec(t))
			}
			if res.NextCursor == "" {
				return nil
			}
			params = &mcp.ListToolsParams{Cursor: res.NextCursor}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("ListTools: %w", err)
	}
	return specs, nil
}

func toSpec(t *mcp.Tool) engine.ToolSpec {
	spec := engine.ToolSpec{Name: t.Name, Description: t.Description}
	if t.InputSchema != nil {
		if raw, err := json.Marshal(t.InputSchema); err == nil {
			_ = json.Unmarshal(raw, &spec.Schema)
		}
	}
	if spec.Schema == nil {
		spec.Schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return spec
}

// CallTool invokes tool and returns its text content. A result flagged as an
// error is returned as ErrToolFailed carrying the server's text.
func (c *Client) CallTool(ctx context.Context, tool string, args map[string]any) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var res *mcp.CallToolResult
	err := c.do(ctx, func(s toolSession) error {
		var err error
		res, err = s.CallTool(ctx, &mcp.CallToolParams{Name: tool, Arguments: args})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("CallTool %s: %w", tool, err)
	}

	text := contentText(res)
	if res.IsError {
		return "", fmt.Errorf("CallTool %s: %w: %s", tool, ErrToolFailed, text)
	}
	return text, nil
}

// CallStructured invokes tool and decodes its JSON result. A Lark envelope
// {"code", "msg", "data"} is unwrapped; a non-zero code is an error.
func (c *Client) CallStructured(ctx context.Context, tool string, args map[string]any) (map[string]any, error) {
	text, err := c.CallTool(ctx, tool, args)
	if err != nil {
		return nil, err
	}
	return decodeResult(tool, text)
}

func decodeResult(tool, text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return map[string]any{}, nil
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("CallStructured %s: %w: result is not a JSON object", tool, ErrToolFailed)
	}

	if code, ok := out["code"].(float64); ok {
		if code != 0 {
			return nil, fmt.Errorf("CallStructured %s: %w: code=%v msg=%v", tool, ErrToolFailed, code, out["msg"])
		}
		if data, ok := out["data"].(map[string]any); ok {
			return data, nil
		}
		return map[string]any{}, nil
	}
	return out, nil
}

func contentText(res *mcp.CallToolResult) string {
	var parts []string
	for _, content := range res.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// do runs fn on the shared session, reconnecting once when the connection
// was closed underneath it.
func (c *Client) do(ctx context.Context, fn func(s toolSession) error) error {
	s, err := c.session(ctx)
	if err != nil {
		return err
	}
	err = fn(s)
	if !reconnectable(err) {
		return err
	}

	c.logger.Warn("MCP connection closed, reconnecting", zap.Error(err))
	c.reset(s)
	s, err = c.session(ctx)
	if err != nil {
		return err
	}
	return fn(s)
}

// reconnectable reports whether err means the session's connection is gone.
func reconnectable(err error) bool {
	return errors.Is(err, mcp.ErrConnectionClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// Probe lists tools and reports how many there are.
func (c *Client) Probe(ctx context.Context) (int, error) {
	start := time.Now()
	specs, err := c.ListTools(ctx)
	if err != nil {
		return 0, err
	}
	c.logger.Debug("MCP probe ok",
		zap.Int("tool_count", len(specs)),
		zap.Duration("latency", time.Since(start)),
	)
	return len(specs), nil
}

// Close closes the session if one is open.
func (c *Client) Close() error {
	c.mu.Lock()
	s := c.sess
	c.sess = nil
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}
