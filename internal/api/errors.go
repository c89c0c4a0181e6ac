package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/triage-ai/lark-agent/internal/config"
	"github.com/triage-ai/lark-agent/internal/engine"
)

const (
	codeInvalidRequest  = "invalid_request"
	codeUnauthorized    = "unauthorized"
	codeTimeout         = "timeout"
	codePolicyViolation = "policy_violation"
	codeUpstream        = "upstream_error"
	codeInternal        = "internal"
)

// classifyRunError maps an orchestrator error to a status, code and a detail
// that never echoes the raw upstream message.
func classifyRunError(err error) (int, string, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, codeTimeout, "Task timed out, please retry"
	case errors.Is(err, config.ErrBaseLockViolation), errors.Is(err, engine.ErrToolDenied):
		return http.StatusForbidden, codePolicyViolation, "Request blocked by base lock policy"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, codeUpstream, "Request cancelled"
	default:
		return http.StatusBadGateway, codeUpstream, "Upstream model or tool server failed"
	}
}
