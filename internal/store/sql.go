package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"memoire/internal/domain"
)

// timeLayout is fixed-width so created_at sorts lexicographically in SQLite.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// dialect captures the differences between SQLite and Postgres.
type dialect struct {
	placeholder func(i int) string // 1-based
	columnType  func(c column) string
}

var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	columnType: func(c column) string {
		switch c.kind {
		case kindInt, kindBool:
			return "INTEGER"
		default:
			return "TEXT"
		}
	},
}

var postgresDialect = dialect{
	placeholder: func(i int) string { return "$" + strconv.Itoa(i) },
	columnType: func(c column) string {
		switch c.kind {
		case kindInt:
			return "BIGINT"
		case kindBool:
			return "BOOLEAN"
		case kindTime:
			return "TIMESTAMPTZ"
		default:
			return "TEXT"
		}
	},
}

// ddl returns the CREATE statements for every table.
func (d dialect) ddl() []string {
	var stmts []string
	for _, name := range tableNames() {
		spec := tables[name]
		defs := make([]string, 0, len(spec.columns))
		for _, c := range spec.columns {
			def := c.name + " " + d.columnType(c)
			if c.name == domain.FieldID {
				def += " PRIMARY KEY"
			} else if c.required {
				def += " NOT NULL"
			}
			defs = append(defs, def)
		}
		stmts = append(stmts,
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", name, strings.Join(defs, ",\n\t")),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_created_at ON %s(%s)", name, name, domain.FieldCreatedAt),
		)
	}
	return stmts
}

// insertSQL builds an INSERT for the keys of row in table column order.
func (d dialect) insertSQL(spec tableSpec, row domain.Record) (string, []string) {
	var cols, marks []string
	for _, c := range spec.columns {
		if _, ok := row[c.name]; !ok {
			continue
		}
		cols = append(cols, c.name)
		marks = append(marks, d.placeholder(len(cols)))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", spec.name, strings.Join(cols, ", "), strings.Join(marks, ", ")), cols
}

// selectSQL builds a SELECT of every column filtered, ordered and limited per q.
// Column names come from the table spec, never from caller input.
func (d dialect) selectSQL(spec tableSpec, q domain.Query) (string, []string) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(spec.columnNames(), ", "), spec.name)
	keys := filterKeys(q)
	for i, k := range keys {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		fmt.Fprintf(&sb, "%s = %s", k, d.placeholder(i+1))
	}
	if q.OrderBy != "" {
		fmt.Fprintf(&sb, " ORDER BY %s", q.OrderBy)
		if q.Desc {
			sb.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	return sb.String(), keys
}

// SQL is a domain.Store over database/sql (libSQL or modernc SQLite).
type SQL struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQL creates the tables if needed and returns the store.
// Returns an error if db is nil or the migration fails.
func NewSQL(ctx context.Context, db *sql.DB) (*SQL, error) {
	if db == nil {
		return nil, fmt.Errorf("db must not be nil")
	}
	s := &SQL{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("store migrate: %w", err)
	}
	return s, nil
}

func (s *SQL) migrate(ctx context.Context) error {
	for _, stmt := range sqliteDialect.ddl() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Insert implements domain.Store.
func (s *SQL) Insert(ctx context.Context, table string, rec domain.Record) (string, error) {
	spec, err := lookupTable(table)
	if err != nil {
		return "", err
	}
	row, err := spec.prepare(rec, s.now())
	if err != nil {
		return "", err
	}
	query, cols := sqliteDialect.insertSQL(spec, row)
	args := make([]any, len(cols))
	for i, name := range cols {
		c, _ := spec.column(name)
		args[i] = encodeSQLite(c, row[name])
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("insert %s: %w", table, err)
	}
	return row.String(domain.FieldID), nil
}

// Query implements domain.Store.
func (s *SQL) Query(ctx context.Context, table string, q domain.Query) ([]domain.Record, error) {
	spec, err := lookupTable(table)
	if err != nil {
		return nil, err
	}
	if err := spec.checkQuery(q); err != nil {
		return nil, err
	}
	query, keys := sqliteDialect.selectSQL(spec, q)
	args := make([]any, len(keys))
	for i, k := range keys {
		c, _ := spec.column(k)
		args[i] = encodeSQLite(c, q.Filter[k])
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		values := make([]any, len(spec.columns))
		ptrs := make([]any, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		rec := make(domain.Record, len(values))
		for i, c := range spec.columns {
			if v := decodeSQLite(c, values[i]); v != nil {
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

func encodeSQLite(c column, v any) any {
	switch c.kind {
	case kindTime:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Format(timeLayout)
		}
	case kindBool:
		if b, ok := v.(bool); ok {
			if b {
				return 1
			}
			return 0
		}
	}
	return v
}

func decodeSQLite(c column, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil
	}
	switch c.kind {
	case kindTime:
		switch t := v.(type) {
		case string:
			if parsed, err := time.Parse(timeLayout, t); err == nil {
				return parsed
			}
			if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
				return parsed
			}
		case time.Time:
			return t.UTC()
		}
	case kindBool:
		if n, ok := v.(int64); ok {
			return n != 0
		}
	case kindInt:
		if n, ok := v.(int64); ok {
			return int(n)
		}
	}
	return v
}

var _ domain.Store = (*SQL)(nil)
