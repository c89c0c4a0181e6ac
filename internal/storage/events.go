package storage

import "time"

// EventWriter persists task audit events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *TaskEvent)
	Close()
}

// TaskEvent records one orchestrated task or dispatched command.
type TaskEvent struct {
	RequestID       string
	Timestamp       time.Time
	Source          string // "api", "telegram" or "dispatch"
	SessionID       string
	PromptPreview   string // first PromptPreviewLength runes of the raw text
	PromptHash      string // SHA256 of the raw text
	Category        string
	Action          string
	Confidence      uint16
	TableName       string
	TableID         string
	TableStatus     string // "none", "allowed" or "denied"
	Verdict         string
	Reason          string
	Status          string // "ok", "error" or "timeout"
	ToolCalls       uint16
	DeniedCalls     uint16
	Operation       string // dispatch operation, empty for model tasks
	ErrorMessage    string
	ResponsePreview string
	LatencyMs       float32
}

// PromptPreviewLength is the max runes stored in prompt_preview and response_preview.
const PromptPreviewLength = 500

// TruncatePayload returns the first maxLen runes of s. It never splits a
// multi-byte UTF-8 character.
func TruncatePayload(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
