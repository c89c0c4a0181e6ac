package dispatch

import (
	"fmt"
	"sort"
	"strings"
)

const (
	maxListItems     = 5
	maxRecordFields  = 3
	maxFieldValueLen = 50
	maxContentLen    = 1000
)

// Params is the structured payload supplied with a command.
type Params map[string]any

// String returns p[key] when it is a non-empty string, else def.
func (p Params) String(key, def string) string {
	if s, ok := p[key].(string); ok && s != "" {
		return s
	}
	return def
}

// Int returns p[key] as an int when it is numeric, else def.
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// Value returns p[key] when present, else def.
func (p Params) Value(key string, def any) any {
	if v, ok := p[key]; ok && v != nil {
		return v
	}
	return def
}

// List returns p[key] when it is an array, else an empty list.
func (p Params) List(key string) []any {
	if l, ok := p[key].([]any); ok {
		return l
	}
	return []any{}
}

// Object returns p[key] when it is an object, else an empty object.
func (p Params) Object(key string) map[string]any {
	if m, ok := p[key].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// items extracts result["items"] as a list of objects.
func items(result map[string]any) []map[string]any {
	raw, _ := result["items"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, it := range raw {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// object extracts result[key] as an object.
func object(result map[string]any, key string) map[string]any {
	if m, ok := result[key].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// text renders m[key] for display, or def when absent or empty.
func text(m map[string]any, key, def string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return def
	}
	s := display(v)
	if s == "" {
		return def
	}
	return s
}

func display(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}

// truncate cuts s to limit runes, appending suffix when it was cut.
func truncate(s string, limit int, suffix string) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + suffix
}

// list renders header plus at most maxListItems numbered lines and a
// trailing "and N more" line.
func (r *Router) list(header string, rows []map[string]any, line func(i int, row map[string]any) string) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n")
	for i, row := range rows {
		if i == maxListItems {
			b.WriteString(r.T("common.more_items", map[string]any{"Count": len(rows) - maxListItems}))
			b.WriteString("\n")
			break
		}
		b.WriteString(line(i+1, row))
		b.WriteString("\n")
	}
	return b.String()
}

// formatRecords renders up to maxListItems records, each with at most
// maxRecordFields fields in name order and values cut to maxFieldValueLen
// runes followed by "...".
func formatRecords(records []map[string]any) string {
	var b strings.Builder
	for i, rec := range records {
		if i == maxListItems {
			break
		}
		fields, _ := rec["fields"].(map[string]any)
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		if len(names) > maxRecordFields {
			names = names[:maxRecordFields]
		}

		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s: %s", name, truncate(fieldValue(fields[name]), maxFieldValueLen, "...")))
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.Join(parts, " | "))
	}
	return b.String()
}

// fieldValue flattens a record cell: the first element of a list, and the
// "text" of a rich-text segment.
func fieldValue(v any) string {
	if l, ok := v.([]any); ok && len(l) > 0 {
		if seg, ok := l[0].(map[string]any); ok {
			if t, ok := seg["text"]; ok {
				return display(t)
			}
			return display(seg)
		}
		return display(l[0])
	}
	return display(v)
}
