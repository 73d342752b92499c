// Package sink stores parsed rows in database tables. PostgreSQL is written
// through COPY, SQLite and MySQL through database/sql, MongoDB as documents.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/csvrecord/internal/config"
	"github.com/JonMunkholm/csvrecord/internal/schema"
)

// Sink stores parsed rows in a named table.
type Sink interface {
	Write(ctx context.Context, table string, columns []string, rows []schema.Row) (int64, error)
}

// Store is a Sink that owns a connection pool.
type Store interface {
	Sink
	Close()
}

// Open connects the store named by the URL scheme of cfg.URL:
// postgres:// or postgresql://, sqlite:, mysql:// and mongodb://.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	var (
		store Store
		err   error
	)
	scheme, _, _ := strings.Cut(cfg.URL, ":")
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		store, err = OpenPostgres(ctx, cfg)
	case "sqlite", "sqlite3", "mysql":
		store, err = OpenSQL(ctx, cfg)
	case "mongodb", "mongodb+srv":
		store, err = OpenMongo(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported database URL scheme %q", scheme)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Copier is the COPY entry point shared by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// PgSink writes rows with COPY, one transaction per call.
type PgSink struct {
	pool *pgxpool.Pool
}

// New wraps an open pool.
func New(pool *pgxpool.Pool) *PgSink {
	return &PgSink{pool: pool}
}

// OpenPostgres connects a pool with the configured limits and pings it.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig) (*PgSink, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(pool), nil
}

// Close releases the pool.
func (s *PgSink) Close() {
	s.pool.Close()
}

// Write copies rows into table inside one transaction; either all rows are
// stored or none.
func (s *PgSink) Write(ctx context.Context, table string, columns []string, rows []schema.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	start := time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	n, err := Copy(ctx, tx, table, columns, rows)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("rows copied",
		"table", table,
		"rows", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return n, nil
}

// Copy streams rows into table through c. Each row contributes its values
// for columns, in order; keys missing from a row are copied as NULL.
func Copy(ctx context.Context, c Copier, table string, columns []string, rows []schema.Row) (int64, error) {
	ident, err := Identifier(table)
	if err != nil {
		return 0, err
	}
	if len(columns) == 0 {
		return 0, errors.New("copy: no columns")
	}

	src := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		return Values(columns, rows[i]), nil
	})
	n, err := c.CopyFrom(ctx, ident, columns, src)
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}

// Identifier splits a possibly schema-qualified table name.
func Identifier(table string) (pgx.Identifier, error) {
	parts := strings.Split(table, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return pgx.Identifier(parts), nil
}

// Values returns the row's values for columns, converted to types pgx encodes
// directly.
func Values(columns []string, row schema.Row) []any {
	out := make([]any, len(columns))
	for i, col := range columns {
		out[i] = pgValue(row[col])
	}
	return out
}

func pgValue(v any) any {
	switch x := v.(type) {
	case uuid.UUID:
		return pgtype.UUID{Bytes: x, Valid: true}
	case int:
		return int64(x)
	default:
		return v
	}
}
