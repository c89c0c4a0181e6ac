package engine

import (
	"strings"

	"github.com/triage-ai/lark-agent/internal/config"
)

// Explicit table markers, English and Thai. Checked in this order.
var tableMarkers = []string{"table:", "ตาราง:", "table ", "ตาราง "}

// Punctuation trimmed from a marker-introduced token (ASCII and full-width).
const markerTokenCutset = "：:，,.;"

// Resolver maps free text to a configured table and applies the allowlist gate.
type Resolver struct {
	tables  config.TableMap
	allowed config.AllowedTables
}

// NewResolver creates a Resolver over the given table map and allowlist.
func NewResolver(tables config.TableMap, allowed config.AllowedTables) *Resolver {
	return &Resolver{tables: tables, allowed: allowed}
}

// Resolve gathers candidates in two phases and returns the first candidate
// that names a mapped table:
//  1. the token following each explicit marker present in the text
//  2. every mapped table name contained in the text, in declaration order
//
// A matched table whose id is outside a non-empty allowlist resolves to
// ResolutionDenied, never to ResolutionNone.
func (r *Resolver) Resolve(text string) ResolvedTable {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return ResolvedTable{}
	}

	for _, cand := range r.candidates(lower) {
		entry, ok := r.tables.Lookup(cand)
		if !ok {
			continue
		}
		if !r.allowed.Allows(entry.ID) {
			return ResolvedTable{Name: entry.Name, Status: ResolutionDenied}
		}
		return ResolvedTable{Name: entry.Name, ID: entry.ID, Status: ResolutionAllowed}
	}
	return ResolvedTable{}
}

func (r *Resolver) candidates(lower string) []string {
	var out []string

	for _, marker := range tableMarkers {
		idx := strings.Index(lower, marker)
		if idx < 0 {
			continue
		}
		fields := strings.Fields(lower[idx+len(marker):])
		if len(fields) == 0 {
			continue
		}
		if tok := strings.Trim(fields[0], markerTokenCutset); tok != "" {
			out = append(out, tok)
		}
	}

	for _, e := range r.tables.Entries() {
		if e.Name == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(e.Name)) {
			out = append(out, e.Name)
		}
	}
	return out
}
