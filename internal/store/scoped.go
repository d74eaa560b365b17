package store

import (
	"context"

	"memoire/internal/domain"
)

// Scoped restricts every operation of an inner store to one owner: inserts
// are stamped with the owner and queries filter on it.
type Scoped struct {
	inner domain.Store
	owner string
}

// NewScoped wraps inner. Panics if inner is nil or owner is empty.
func NewScoped(inner domain.Store, owner string) *Scoped {
	if inner == nil {
		panic("store: inner store must not be nil")
	}
	if owner == "" {
		panic("store: owner must not be empty")
	}
	return &Scoped{inner: inner, owner: owner}
}

// Insert implements domain.Store.
func (s *Scoped) Insert(ctx context.Context, table string, rec domain.Record) (string, error) {
	scoped := copyRecord(rec)
	scoped[domain.FieldOwner] = s.owner
	return s.inner.Insert(ctx, table, scoped)
}

// Query implements domain.Store.
func (s *Scoped) Query(ctx context.Context, table string, q domain.Query) ([]domain.Record, error) {
	filter := make(map[string]any, len(q.Filter)+1)
	for k, v := range q.Filter {
		filter[k] = v
	}
	filter[domain.FieldOwner] = s.owner
	q.Filter = filter
	return s.inner.Query(ctx, table, q)
}

var _ domain.Store = (*Scoped)(nil)
