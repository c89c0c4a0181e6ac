package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const probeTimeout = 10 * time.Second

func (d *Dependencies) handleMCPHealth(w http.ResponseWriter, r *http.Request) {
	cfg := d.Config
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	count, err := d.Tools.Probe(ctx)
	if err != nil {
		d.Logger.Error("MCP health check failed", zap.Error(err))
		url, _ := cfg.MCP.Endpoint()
		writeJSON(w, http.StatusInternalServerError, MCPDegradedResp{
			Status:  "error",
			Message: err.Error(),
			MCPConfig: MCPDegradedCfg{
				Mode:     string(cfg.MCP.Mode),
				URL:      url,
				BaseLock: cfg.Lock.Enabled,
			},
		})
		return
	}

	writeJSON(w, http.StatusOK, MCPHealthResp{
		Status:        "ok",
		ToolCount:     count,
		BaseLock:      cfg.Lock.Enabled,
		AllowedBaseID: cfg.Lock.BaseID,
		TableCount:    cfg.Tables.Len(),
	})
}

func (d *Dependencies) handleMCPConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := d.Config
	url, transport := cfg.MCP.Endpoint()
	writeJSON(w, http.StatusOK, MCPConfigResp{
		Mode:          string(cfg.MCP.Mode),
		URL:           url,
		Transport:     string(transport),
		BaseLock:      cfg.Lock.Enabled,
		AllowedBaseID: cfg.Lock.BaseID,
		TableMap:      cfg.Tables.AsMap(),
		AllowedTables: cfg.Allowed.IDs(),
	})
}
