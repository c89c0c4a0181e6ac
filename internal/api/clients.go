package api

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/triage-ai/lark-agent/internal/store"
)

func (d *Dependencies) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	if d.Clients == nil {
		writeError(w, http.StatusServiceUnavailable, codeUpstream, "Postgres not configured")
		return
	}
	var req CreateClientReq
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > 255 {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "name must be 1-255 characters")
		return
	}

	c, plainKey, err := d.Clients.CreateClient(r.Context(), req.Name)
	if err != nil {
		d.Logger.Error("failed to create client", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to create client")
		return
	}
	writeJSON(w, http.StatusCreated, ClientWithKeyResp{ClientResp: clientToResp(c), APIKey: plainKey})
}

func (d *Dependencies) handleListClients(w http.ResponseWriter, r *http.Request) {
	if d.Clients == nil {
		writeError(w, http.StatusServiceUnavailable, codeUpstream, "Postgres not configured")
		return
	}
	clients, err := d.Clients.ListClients(r.Context())
	if err != nil {
		d.Logger.Error("failed to list clients", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to list clients")
		return
	}

	resp := make([]ClientResp, 0, len(clients))
	for _, c := range clients {
		resp = append(resp, clientToResp(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleRevokeClient(w http.ResponseWriter, r *http.Request) {
	if d.Clients == nil {
		writeError(w, http.StatusServiceUnavailable, codeUpstream, "Postgres not configured")
		return
	}
	c, err := d.Clients.RevokeClient(r.Context(), r.PathValue("client_id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, codeInvalidRequest, "Client not found")
		return
	}
	if err != nil {
		d.Logger.Error("failed to revoke client", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to revoke client")
		return
	}
	writeJSON(w, http.StatusOK, clientToResp(c))
}

func (d *Dependencies) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	if d.Clients == nil {
		writeError(w, http.StatusServiceUnavailable, codeUpstream, "Postgres not configured")
		return
	}
	c, plainKey, err := d.Clients.RotateAPIKey(r.Context(), r.PathValue("client_id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, codeInvalidRequest, "Client not found or revoked")
		return
	}
	if err != nil {
		d.Logger.Error("failed to rotate key", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to rotate key")
		return
	}
	writeJSON(w, http.StatusOK, ClientWithKeyResp{ClientResp: clientToResp(c), APIKey: plainKey})
}

func clientToResp(c *store.APIClient) ClientResp {
	return ClientResp{
		ID:           c.ID,
		Name:         c.Name,
		APIKeyPrefix: c.APIKeyPrefix,
		RevokedAt:    c.RevokedAt,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}
