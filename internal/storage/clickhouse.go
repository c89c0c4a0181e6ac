package storage

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 5_000
	flushInterval = 500 * time.Millisecond
	flushBatch    = 500
	drainTimeout  = 2 * time.Second
)

// TaskEventsDDL creates the task_events table if it does not exist.
const TaskEventsDDL = `
CREATE TABLE IF NOT EXISTS task_events (
	request_id       String,
	timestamp        DateTime64(3),
	source           LowCardinality(String),
	session_id       String,
	prompt_preview   String,
	prompt_hash      String,
	category         LowCardinality(String),
	action           LowCardinality(String),
	confidence       UInt16,
	table_name       String,
	table_id         String,
	table_status     LowCardinality(String),
	verdict          String,
	reason           String,
	status           LowCardinality(String),
	tool_calls       UInt16,
	denied_calls     UInt16,
	operation        String,
	error_message    String,
	response_preview String,
	latency_ms       Float32
) ENGINE = MergeTree
ORDER BY (timestamp, request_id)
TTL toDateTime(timestamp) + INTERVAL 90 DAY`

// ClickHouseWriter writes task events to the task_events table asynchronously.
type ClickHouseWriter struct {
	conn    driver.Conn
	buffer  chan *TaskEvent
	done    chan struct{}
	flushed chan struct{} // closed by flushLoop when it returns
	logger  *zap.Logger
}

// NewClickHouseWriter connects to ClickHouse and starts the background flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, err
	}
	if err := conn.Exec(ctx, TaskEventsDDL); err != nil {
		return nil, err
	}

	return newClickHouseWriter(conn, logger), nil
}

func newClickHouseWriter(conn driver.Conn, logger *zap.Logger) *ClickHouseWriter {
	w := &ClickHouseWriter{
		conn:    conn,
		buffer:  make(chan *TaskEvent, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}
	go w.flushLoop()
	return w
}

// Write queues an event. It drops the event when the buffer is full.
func (w *ClickHouseWriter) Write(event *TaskEvent) {
	select {
	case w.buffer <- event:
	default:
		w.logger.Warn("clickhouse buffer full, dropping task event",
			zap.String("request_id", event.RequestID),
		)
	}
}

// Close drains buffered events (bounded by drainTimeout) and waits for the
// flush loop to exit. Safe to call once.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*TaskEvent, 0, flushBatch)

	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			deadline := time.After(drainTimeout)
		drain:
			for {
				select {
				case event := <-w.buffer:
					batch = append(batch, event)
				case <-deadline:
					break drain
				default:
					break drain
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) flush(events []*TaskEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO task_events (
			request_id, timestamp, source, session_id,
			prompt_preview, prompt_hash,
			category, action, confidence,
			table_name, table_id, table_status,
			verdict, reason, status,
			tool_calls, denied_calls, operation,
			error_message, response_preview, latency_ms
		)
	`)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range events {
		if err := batch.Append(
			e.RequestID,
			e.Timestamp,
			e.Source,
			e.SessionID,
			e.PromptPreview,
			e.PromptHash,
			e.Category,
			e.Action,
			e.Confidence,
			e.TableName,
			e.TableID,
			e.TableStatus,
			e.Verdict,
			e.Reason,
			e.Status,
			e.ToolCalls,
			e.DeniedCalls,
			e.Operation,
			e.ErrorMessage,
			e.ResponsePreview,
			e.LatencyMs,
		); err != nil {
			w.logger.Error("clickhouse append task event failed",
				zap.String("request_id", e.RequestID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}

// LogWriter is the fallback EventWriter when ClickHouse is not configured.
// It logs events as structured JSON via zap.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *TaskEvent) {
	w.logger.Info("task_event",
		zap.String("request_id", event.RequestID),
		zap.String("source", event.Source),
		zap.String("session_id", event.SessionID),
		zap.String("category", event.Category),
		zap.String("action", event.Action),
		zap.String("table_status", event.TableStatus),
		zap.String("verdict", event.Verdict),
		zap.String("status", event.Status),
		zap.String("operation", event.Operation),
		zap.Uint16("tool_calls", event.ToolCalls),
		zap.Uint16("denied_calls", event.DeniedCalls),
		zap.Float32("latency_ms", event.LatencyMs),
	)
}

func (w *LogWriter) Close() {}
