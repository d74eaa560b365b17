package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"memoire/internal/domain"
)

// Postgres is a domain.Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgres connects to connStr, creates the tables if needed and returns
// the store. Call Close to release the pool.
func NewPostgres(ctx context.Context, connStr string) (*Postgres, error) {
	if connStr == "" {
		return nil, fmt.Errorf("postgres: connection string must not be empty")
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	p := &Postgres{pool: pool, now: time.Now}
	for _, stmt := range postgresDialect.ddl() {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return p, nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Insert implements domain.Store.
func (p *Postgres) Insert(ctx context.Context, table string, rec domain.Record) (string, error) {
	spec, err := lookupTable(table)
	if err != nil {
		return "", err
	}
	row, err := spec.prepare(rec, p.now())
	if err != nil {
		return "", err
	}
	query, cols := postgresDialect.insertSQL(spec, row)
	args := make([]any, len(cols))
	for i, name := range cols {
		args[i] = row[name]
	}
	if _, err := p.pool.Exec(ctx, query, args...); err != nil {
		return "", fmt.Errorf("insert %s: %w", table, err)
	}
	return row.String(domain.FieldID), nil
}

// Query implements domain.Store.
func (p *Postgres) Query(ctx context.Context, table string, q domain.Query) ([]domain.Record, error) {
	spec, err := lookupTable(table)
	if err != nil {
		return nil, err
	}
	if err := spec.checkQuery(q); err != nil {
		return nil, err
	}
	query, keys := postgresDialect.selectSQL(spec, q)
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = q.Filter[k]
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		rec := make(domain.Record, len(values))
		for i, c := range spec.columns {
			switch v := values[i].(type) {
			case nil:
			case int64:
				rec[c.name] = int(v)
			case time.Time:
				rec[c.name] = v.UTC()
			default:
				rec[c.name] = v
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	return out, nil
}

var _ domain.Store = (*Postgres)(nil)
