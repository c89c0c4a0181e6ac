package storage

import "sync"

// MemoryWriter keeps events in memory. Used by tests and the CLI.
type MemoryWriter struct {
	mu     sync.Mutex
	events []*TaskEvent
}

// Write appends the event.
func (w *MemoryWriter) Write(event *TaskEvent) {
	w.mu.Lock()
	w.events = append(w.events, event)
	w.mu.Unlock()
}

// Close is a no-op.
func (w *MemoryWriter) Close() {}

// Events returns a snapshot of written events.
func (w *MemoryWriter) Events() []*TaskEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*TaskEvent, len(w.events))
	copy(out, w.events)
	return out
}
