package api

import (
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"

	"github.com/triage-ai/lark-agent/internal/telegram"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// handleWebhook acknowledges every well-formed update immediately; processing
// happens in the background processor.
func (d *Dependencies) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if d.Updates == nil {
		writeError(w, http.StatusServiceUnavailable, codeUpstream, "Telegram is not configured")
		return
	}
	if secret := d.Config.Telegram.WebhookSecret; secret != "" {
		got := r.Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid webhook secret")
			return
		}
	}

	var u telegram.Update
	if err := readJSON(w, r, &u); err != nil {
		// Acknowledge anyway so Telegram does not redeliver a body we cannot parse.
		d.Logger.Warn("malformed webhook update", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	outcome := d.Updates.Submit(r.Context(), u)
	d.Logger.Debug("webhook update",
		zap.Int64("update_id", u.UpdateID),
		zap.String("outcome", string(outcome)),
	)
	if outcome == telegram.OutcomeRejected {
		// Shutting down: a non-2xx makes Telegram redeliver to the next instance.
		writeError(w, http.StatusServiceUnavailable, codeUpstream, "Shutting down")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
