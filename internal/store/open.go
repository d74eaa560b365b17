package store

import (
	"context"
	"fmt"
	"io"

	"memoire/internal/db"
	"memoire/internal/domain"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

var noopCloser = closerFunc(func() error { return nil })

// Open builds the store described by cfg. The returned Closer releases the
// underlying connection; it is never nil on success.
func Open(ctx context.Context, cfg domain.StoreConfig) (domain.Store, io.Closer, error) {
	var (
		s      domain.Store
		closer io.Closer = noopCloser
	)
	switch cfg.Driver {
	case "", "memory":
		s = NewMemory()
	case "sqlite", "libsql":
		conn, err := db.Connect(ctx, cfg.URL)
		if err != nil {
			return nil, nil, err
		}
		sqlStore, err := NewSQL(ctx, conn)
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		s, closer = sqlStore, conn
	case "postgres":
		pg, err := NewPostgres(ctx, cfg.URL)
		if err != nil {
			return nil, nil, err
		}
		s, closer = pg, pg
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q (use: memory, sqlite, libsql, postgres)", cfg.Driver)
	}
	if cfg.Owner != "" {
		s = NewScoped(s, cfg.Owner)
	}
	return s, closer, nil
}
