// Package store implements domain.Store over memory, SQLite/libSQL and Postgres.
package store

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"memoire/internal/domain"
)

// Store errors.
var (
	ErrUnknownTable  = errors.New("store: unknown table")
	ErrUnknownColumn = errors.New("store: unknown column")
	ErrMissingValue  = errors.New("store: missing required value")
)

type colKind int

const (
	kindText colKind = iota
	kindInt
	kindBool
	kindTime
)

type column struct {
	name     string
	kind     colKind
	required bool
}

type tableSpec struct {
	name    string
	columns []column
}

// common columns present on every table.
var (
	idColumn      = column{name: domain.FieldID, kind: kindText, required: true}
	ownerColumn   = column{name: domain.FieldOwner, kind: kindText}
	createdColumn = column{name: domain.FieldCreatedAt, kind: kindTime, required: true}
)

func newTable(name string, cols ...column) tableSpec {
	all := append([]column{idColumn, ownerColumn}, cols...)
	return tableSpec{name: name, columns: append(all, createdColumn)}
}

var tables = map[string]tableSpec{
	domain.TableChapters: newTable(domain.TableChapters,
		column{name: "name", kind: kindText, required: true},
		column{name: "position", kind: kindInt},
	),
	domain.TableNotes: newTable(domain.TableNotes,
		column{name: "content", kind: kindText, required: true},
		column{name: "tags", kind: kindText},
	),
	domain.TableObjectives: newTable(domain.TableObjectives,
		column{name: "title", kind: kindText, required: true},
		column{name: "day", kind: kindText, required: true},
	),
	domain.TableSources: newTable(domain.TableSources,
		column{name: "title", kind: kindText, required: true},
		column{name: "authors", kind: kindText},
		column{name: "kind", kind: kindText},
		column{name: "url", kind: kindText},
		column{name: "year", kind: kindInt},
		column{name: "chapter_id", kind: kindText},
	),
	domain.TableTasks: newTable(domain.TableTasks,
		column{name: "title", kind: kindText, required: true},
		column{name: "chapter_id", kind: kindText},
		column{name: "due_date", kind: kindText},
		column{name: "done", kind: kindBool},
	),
	domain.TablePromptLogs: newTable(domain.TablePromptLogs,
		column{name: "original_prompt", kind: kindText, required: true},
		column{name: "refined_prompt", kind: kindText},
		column{name: "reasoning", kind: kindText},
		column{name: "tags", kind: kindText},
	),
}

// tableNames returns every table name in a stable order.
func tableNames() []string {
	names := make([]string, 0, len(tables))
	for n := range tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func lookupTable(name string) (tableSpec, error) {
	spec, ok := tables[name]
	if !ok {
		return tableSpec{}, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return spec, nil
}

func (t tableSpec) column(name string) (column, bool) {
	for _, c := range t.columns {
		if c.name == name {
			return c, true
		}
	}
	return column{}, false
}

// prepare checks rec against the table, and returns a copy carrying a fresh
// id and a created_at timestamp (kept when the caller supplied one).
func (t tableSpec) prepare(rec domain.Record, now time.Time) (domain.Record, error) {
	out := make(domain.Record, len(rec)+2)
	for k, v := range rec {
		if _, ok := t.column(k); !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.name, k)
		}
		out[k] = v
	}
	out[domain.FieldID] = uuid.NewString()
	if ts, ok := out[domain.FieldCreatedAt].(time.Time); !ok || ts.IsZero() {
		out[domain.FieldCreatedAt] = now.UTC()
	}
	for _, c := range t.columns {
		if !c.required {
			continue
		}
		if v, ok := out[c.name]; !ok || v == nil || v == "" {
			return nil, fmt.Errorf("%w: %s.%s", ErrMissingValue, t.name, c.name)
		}
	}
	return out, nil
}

// checkQuery validates the filter and order columns of q.
func (t tableSpec) checkQuery(q domain.Query) error {
	for k := range q.Filter {
		if _, ok := t.column(k); !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.name, k)
		}
	}
	if q.OrderBy != "" {
		if _, ok := t.column(q.OrderBy); !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.name, q.OrderBy)
		}
	}
	return nil
}

// columnNames returns the column names of t in declaration order.
func (t tableSpec) columnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.name
	}
	return names
}

// filterKeys returns the filter keys of q sorted for deterministic SQL.
func filterKeys(q domain.Query) []string {
	keys := make([]string, 0, len(q.Filter))
	for k := range q.Filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
