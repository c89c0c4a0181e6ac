package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// TableEntry is one display-name → table-id mapping.
type TableEntry struct {
	Name string
	ID   string
}

// TableMap maps table display names to table ids. Names compare
// case-insensitively and entries keep the order they were declared in.
// A TableMap is never mutated after construction.
type TableMap struct {
	entries []TableEntry
	byLower map[string]int
}

// NewTableMap builds a TableMap from entries. A later entry whose name equals an
// earlier one (ignoring case) replaces it in place; the replaced names are returned.
func NewTableMap(entries ...TableEntry) (TableMap, []string) {
	m := TableMap{byLower: make(map[string]int, len(entries))}
	var replaced []string
	for _, e := range entries {
		key := strings.ToLower(e.Name)
		if i, ok := m.byLower[key]; ok {
			replaced = append(replaced, m.entries[i].Name)
			m.entries[i] = e
			continue
		}
		m.byLower[key] = len(m.entries)
		m.entries = append(m.entries, e)
	}
	return m, replaced
}

// Entries returns a copy of the entries in declaration order.
func (m TableMap) Entries() []TableEntry {
	out := make([]TableEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Len returns the number of tables.
func (m TableMap) Len() int { return len(m.entries) }

// Lookup finds the entry whose name equals name, ignoring case.
func (m TableMap) Lookup(name string) (TableEntry, bool) {
	i, ok := m.byLower[strings.ToLower(name)]
	if !ok {
		return TableEntry{}, false
	}
	return m.entries[i], true
}

// AsMap returns the mapping as a plain map (for JSON rendering).
func (m TableMap) AsMap() map[string]string {
	out := make(map[string]string, len(m.entries))
	for _, e := range m.entries {
		out[e.Name] = e.ID
	}
	return out
}

// ParseTableMap decodes a JSON object of name → id, preserving key order.
// Entries whose value is not a string are skipped and reported in skipped.
func ParseTableMap(raw string) (m TableMap, replaced []string, skipped []string, err error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return TableMap{}, nil, nil, fmt.Errorf("ParseTableMap: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return TableMap{}, nil, nil, errors.New("ParseTableMap: expected a JSON object")
	}

	var entries []TableEntry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return TableMap{}, nil, nil, fmt.Errorf("ParseTableMap: %w", err)
		}
		name, _ := keyTok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return TableMap{}, nil, nil, fmt.Errorf("ParseTableMap: %w", err)
		}
		id, ok := value.(string)
		if !ok {
			skipped = append(skipped, name)
			continue
		}
		entries = append(entries, TableEntry{Name: name, ID: id})
	}
	if _, err := dec.Token(); err != nil {
		return TableMap{}, nil, nil, fmt.Errorf("ParseTableMap: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return TableMap{}, nil, nil, errors.New("ParseTableMap: trailing data after object")
	}

	m, replaced = NewTableMap(entries...)
	return m, replaced, skipped, nil
}

// AllowedTables is the administrator allowlist of table ids.
// An empty allowlist allows every id.
type AllowedTables struct {
	ids   map[string]struct{}
	order []string
}

// NewAllowedTables builds an allowlist from ids.
func NewAllowedTables(ids ...string) AllowedTables {
	a := AllowedTables{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if _, dup := a.ids[id]; dup {
			continue
		}
		a.ids[id] = struct{}{}
		a.order = append(a.order, id)
	}
	return a
}

// ParseAllowedTables decodes a JSON array of table ids.
func ParseAllowedTables(raw string) (AllowedTables, error) {
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return AllowedTables{}, fmt.Errorf("ParseAllowedTables: %w", err)
	}
	return NewAllowedTables(ids...), nil
}

// Empty reports whether no restriction is configured.
func (a AllowedTables) Empty() bool { return len(a.ids) == 0 }

// Allows reports whether id passes the allowlist gate.
func (a AllowedTables) Allows(id string) bool {
	if len(a.ids) == 0 {
		return true
	}
	_, ok := a.ids[id]
	return ok
}

// IDs returns the configured ids in declaration order.
func (a AllowedTables) IDs() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}
