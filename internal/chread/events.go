package chread

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Reader provides read access to the ClickHouse task_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}

	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventRow is one row of task_events.
type EventRow struct {
	RequestID       string    `json:"request_id"`
	Timestamp       time.Time `json:"timestamp"`
	Source          string    `json:"source"`
	SessionID       string    `json:"session_id"`
	PromptPreview   string    `json:"prompt_preview"`
	Category        string    `json:"category"`
	Action          string    `json:"action"`
	Confidence      uint16    `json:"confidence"`
	TableName       string    `json:"table_name"`
	TableID         string    `json:"table_id"`
	TableStatus     string    `json:"table_status"`
	Verdict         string    `json:"verdict"`
	Status          string    `json:"status"`
	ToolCalls       uint16    `json:"tool_calls"`
	DeniedCalls     uint16    `json:"denied_calls"`
	Operation       string    `json:"operation"`
	ErrorMessage    string    `json:"error_message"`
	ResponsePreview string    `json:"response_preview"`
	LatencyMs       float32   `json:"latency_ms"`
}

const eventColumns = "request_id, timestamp, source, session_id, prompt_preview, " +
	"category, action, confidence, table_name, table_id, table_status, " +
	"verdict, status, tool_calls, denied_calls, operation, " +
	"error_message, response_preview, latency_ms"

func (e *EventRow) dest() []any {
	return []any{
		&e.RequestID, &e.Timestamp, &e.Source, &e.SessionID, &e.PromptPreview,
		&e.Category, &e.Action, &e.Confidence, &e.TableName, &e.TableID, &e.TableStatus,
		&e.Verdict, &e.Status, &e.ToolCalls, &e.DeniedCalls, &e.Operation,
		&e.ErrorMessage, &e.ResponsePreview, &e.LatencyMs,
	}
}

// ListEventsParams holds filters and pagination for event listing.
type ListEventsParams struct {
	Source    *string
	Status    *string
	Category  *string
	SessionID *string
	TableID   *string
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
}

const maxPageSize = 200

// Normalize clamps pagination to sane bounds.
func (p *ListEventsParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 50
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
}

// whereClause builds the filter expression and its named arguments.
func (p ListEventsParams) whereClause() (string, []any) {
	conditions := []string{"1 = 1"}
	var args []any

	add := func(cond, name string, value any) {
		conditions = append(conditions, cond)
		args = append(args, clickhouse.Named(name, value))
	}
	if p.Source != nil {
		add("source = @source", "source", *p.Source)
	}
	if p.Status != nil {
		add("status = @status", "status", *p.Status)
	}
	if p.Category != nil {
		add("category = @category", "category", *p.Category)
	}
	if p.SessionID != nil {
		add("session_id = @session_id", "session_id", *p.SessionID)
	}
	if p.TableID != nil {
		add("table_id = @table_id", "table_id", *p.TableID)
	}
	if p.StartTime != nil {
		add("timestamp >= @start_time", "start_time", *p.StartTime)
	}
	if p.EndTime != nil {
		add("timestamp <= @end_time", "end_time", *p.EndTime)
	}
	return strings.Join(conditions, " AND "), args
}

// ListEvents returns paginated, filtered task events (newest first) and the
// total count.
func (r *Reader) ListEvents(ctx context.Context, params ListEventsParams) ([]EventRow, int, error) {
	params.Normalize()
	where, args := params.whereClause()
	offset := (params.Page - 1) * params.PageSize

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM task_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT %s FROM task_events WHERE %s ORDER BY timestamp DESC LIMIT @limit OFFSET @offset",
		eventColumns, where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEvents query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []EventRow{}
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(e.dest()...); err != nil {
			return nil, 0, fmt.Errorf("ListEvents scan: %w", err)
		}
		events = append(events, e)
	}

	return events, int(total), rows.Err()
}

// GetEvent returns a single event by request ID, or nil if not found.
func (r *Reader) GetEvent(ctx context.Context, requestID string) (*EventRow, error) {
	row := r.conn.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM task_events WHERE request_id = @request_id LIMIT 1", eventColumns),
		clickhouse.Named("request_id", requestID),
	)

	var e EventRow
	if err := row.Scan(e.dest()...); err != nil {
		// ClickHouse reports an empty result as a scan error, not sql.ErrNoRows.
		if strings.Contains(err.Error(), "no rows") {
			return nil, nil
		}
		return nil, fmt.Errorf("GetEvent: %w", err)
	}
	return &e, nil
}

// Summary holds aggregate task counts over a window.
type Summary struct {
	Days        int             `json:"days"`
	Total       int             `json:"total"`
	OK          int             `json:"ok"`
	Errors      int             `json:"errors"`
	Timeouts    int             `json:"timeouts"`
	DeniedCalls int             `json:"denied_calls"`
	P95Ms       float64         `json:"p95_ms"`
	Categories  []CategoryCount `json:"categories"`
}

// CategoryCount holds a category and its count.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// GetSummary aggregates task outcomes for the last days days.
func (r *Reader) GetSummary(ctx context.Context, days int) (*Summary, error) {
	if days < 1 {
		days = 7
	}
	since := clickhouse.Named("since", time.Now().UTC().AddDate(0, 0, -days))
	out := &Summary{Days: days, Categories: []CategoryCount{}}

	var total, ok, errs, timeouts, denied uint64
	var p95 float64
	if err := r.conn.QueryRow(ctx,
		"SELECT count(), countIf(status = 'ok'), countIf(status = 'error'), countIf(status = 'timeout'), "+
			"sum(denied_calls), toFloat64(quantile(0.95)(latency_ms)) "+
			"FROM task_events WHERE timestamp >= @since",
		since,
	).Scan(&total, &ok, &errs, &timeouts, &denied, &p95); err != nil {
		return nil, fmt.Errorf("GetSummary totals: %w", err)
	}
	out.Total, out.OK, out.Errors, out.Timeouts = int(total), int(ok), int(errs), int(timeouts)
	out.DeniedCalls = int(denied)
	out.P95Ms = safeFloat(p95)

	rows, err := r.conn.Query(ctx,
		"SELECT category, count() AS n FROM task_events "+
			"WHERE timestamp >= @since AND category != '' "+
			"GROUP BY category ORDER BY n DESC LIMIT 10",
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("GetSummary categories: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var c CategoryCount
		var n uint64
		if err := rows.Scan(&c.Category, &n); err != nil {
			return nil, fmt.Errorf("GetSummary scan: %w", err)
		}
		c.Count = int(n)
		out.Categories = append(out.Categories, c)
	}
	return out, rows.Err()
}

// safeFloat maps NaN and Inf (quantile over zero rows) to 0.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
