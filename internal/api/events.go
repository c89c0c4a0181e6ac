package api

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/triage-ai/lark-agent/internal/chread"
)

func (d *Dependencies) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeError(w, http.StatusServiceUnavailable, codeUpstream, "ClickHouse not configured")
		return
	}

	q := r.URL.Query()
	params := chread.ListEventsParams{
		Page:     queryInt(q, "page", 1),
		PageSize: queryInt(q, "page_size", 50),
	}
	for key, dst := range map[string]**string{
		"source":     &params.Source,
		"status":     &params.Status,
		"category":   &params.Category,
		"session_id": &params.SessionID,
		"table_id":   &params.TableID,
	} {
		if v := q.Get(key); v != "" {
			*dst = &v
		}
	}
	for key, dst := range map[string]**time.Time{
		"start_time": &params.StartTime,
		"end_time":   &params.EndTime,
	} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, key+" must be RFC3339")
			return
		}
		*dst = &t
	}

	params.Normalize()

	events, total, err := d.Reader.ListEvents(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list events", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, EventListResp{
		Events:   events,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}

func (d *Dependencies) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeError(w, http.StatusServiceUnavailable, codeUpstream, "ClickHouse not configured")
		return
	}

	event, err := d.Reader.GetEvent(r.Context(), r.PathValue("request_id"))
	if err != nil {
		d.Logger.Error("failed to get event", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to get event")
		return
	}
	if event == nil {
		writeError(w, http.StatusNotFound, codeInvalidRequest, "Event not found")
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (d *Dependencies) handleEventSummary(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeError(w, http.StatusServiceUnavailable, codeUpstream, "ClickHouse not configured")
		return
	}

	days := min(max(queryInt(r.URL.Query(), "days", 7), 1), 90)
	summary, err := d.Reader.GetSummary(r.Context(), days)
	if err != nil {
		d.Logger.Error("failed to summarize events", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to summarize events")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func queryInt(q interface{ Get(string) string }, key string, defaultVal int) int {
	v := q.Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
