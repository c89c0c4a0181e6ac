package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/triage-ai/lark-agent/internal/engine"
)

const maxPromptRunes = 4000

func (d *Dependencies) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid JSON body")
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "prompt is required")
		return
	}
	if len([]rune(req.Prompt)) > maxPromptRunes {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "prompt is too long")
		return
	}

	requestID := uuid.NewString()
	logger := d.Logger.With(zap.String("request_id", requestID))
	if p := principalFromContext(r.Context()); p != nil {
		logger = logger.With(zap.String("client_id", p.ClientID))
	}

	ctx, cancel := context.WithTimeout(r.Context(), d.RunTimeout)
	defer cancel()

	res, err := d.Runner.Run(ctx, engine.TaskRequest{
		RequestID:   requestID,
		Text:        req.Prompt,
		SessionID:   req.SessionID,
		DisplayName: req.DisplayName,
		Source:      "api",
	})
	if err != nil {
		status, code, detail := classifyRunError(err)
		logger.Warn("agent run failed", zap.String("code", code), zap.Error(err))
		writeError(w, status, code, detail)
		return
	}

	writeJSON(w, http.StatusOK, runToResp(res))
}

func runToResp(res *engine.TaskResult) RunResponse {
	turn := res.Turn
	return RunResponse{
		Result:    res.Text,
		RequestID: res.RequestID,
		Intent: IntentResp{
			Category:   turn.Intent.Category.String(),
			Action:     turn.Intent.Action.String(),
			Confidence: turn.Intent.Confidence,
		},
		Table: TableResp{
			Name:   turn.Table.Name,
			ID:     turn.Table.ID,
			Status: turn.Table.Status.String(),
		},
		Verdict:     turn.Assessment.Verdict.String(),
		ToolCalls:   res.ToolCalls,
		DeniedCalls: res.DeniedCalls,
		LatencyMs:   float64(res.Duration) / float64(time.Millisecond),
	}
}

func (d *Dependencies) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid JSON body")
		return
	}
	req.Command = strings.TrimSpace(req.Command)
	if req.Command == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "command is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), d.RunTimeout)
	defer cancel()

	writeJSON(w, http.StatusOK, CommandResponse{Result: d.Dispatcher.Dispatch(ctx, req.Command, req.Params)})
}
