package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"memoire/internal/domain"
)

// Memory is an in-process domain.Store. It backs the "memory" driver and the
// tests of every package that needs a store.
type Memory struct {
	mu     sync.RWMutex
	tables map[string][]domain.Record
	now    func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string][]domain.Record), now: time.Now}
}

// WithClock overrides the clock used for created_at and returns m.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

// Insert implements domain.Store.
func (m *Memory) Insert(ctx context.Context, table string, rec domain.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	spec, err := lookupTable(table)
	if err != nil {
		return "", err
	}
	row, err := spec.prepare(rec, m.now())
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = append(m.tables[table], row)
	return row.String(domain.FieldID), nil
}

// Query implements domain.Store. Ties in OrderBy keep the most recently
// inserted row first when Desc is set.
func (m *Memory) Query(ctx context.Context, table string, q domain.Query) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	spec, err := lookupTable(table)
	if err != nil {
		return nil, err
	}
	if err := spec.checkQuery(q); err != nil {
		return nil, err
	}

	m.mu.RLock()
	rows := m.tables[table]
	var out []domain.Record
	for i := range rows {
		row := rows[i]
		if q.Desc {
			row = rows[len(rows)-1-i]
		}
		if matches(row, q.Filter) {
			out = append(out, copyRecord(row))
		}
	}
	m.mu.RUnlock()

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c := compare(out[i][q.OrderBy], out[j][q.OrderBy])
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Count returns the number of rows in table.
func (m *Memory) Count(table string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tables[table])
}

func matches(row domain.Record, filter map[string]any) bool {
	for k, want := range filter {
		if fmt.Sprint(row[k]) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func copyRecord(r domain.Record) domain.Record {
	out := make(domain.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// compare orders times, numbers and strings; other values compare by their
// printed form.
func compare(a, b any) int {
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case int:
		if bv, ok := b.(int); ok {
			return av - bv
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

var _ domain.Store = (*Memory)(nil)
