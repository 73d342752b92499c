package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/csvrecord/internal/config"
	"github.com/JonMunkholm/csvrecord/internal/schema"
)

// Dialect is the identifier quoting of a database/sql backend.
type Dialect struct {
	Driver string
	quote  byte
}

var (
	SQLite = Dialect{Driver: "sqlite", quote: '"'}
	MySQL  = Dialect{Driver: "mysql", quote: '`'}
)

// SQLSink inserts rows with one prepared statement per call, inside one
// transaction.
type SQLSink struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQL wraps an open handle.
func NewSQL(db *sql.DB, dialect Dialect) *SQLSink {
	return &SQLSink{db: db, dialect: dialect}
}

// OpenSQL opens a sqlite: or mysql:// URL with the configured pool limits.
func OpenSQL(ctx context.Context, cfg config.DatabaseConfig) (*SQLSink, error) {
	dialect, dsn, err := sqlDSN(cfg.URL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(max(cfg.MinConns, 1))
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Driver, err)
	}
	return NewSQL(db, dialect), nil
}

// sqlDSN turns a database URL into a driver name and DSN.
//
//	sqlite:data/rows.db          -> data/rows.db
//	sqlite:///var/lib/rows.db    -> /var/lib/rows.db
//	mysql://u:p@host:3306/db     -> u:p@tcp(host:3306)/db?parseTime=true
func sqlDSN(raw string) (Dialect, string, error) {
	scheme, rest, _ := strings.Cut(raw, ":")
	switch strings.ToLower(scheme) {
	case "sqlite", "sqlite3":
		path := strings.TrimPrefix(rest, "//")
		if path == "" {
			return Dialect{}, "", errors.New("sqlite URL without a path")
		}
		return SQLite, path, nil

	case "mysql":
		u, err := url.Parse(raw)
		if err != nil {
			return Dialect{}, "", fmt.Errorf("parse database URL: %w", err)
		}
		mc := mysql.NewConfig()
		mc.Net = "tcp"
		mc.Addr = u.Host
		if u.Port() == "" {
			mc.Addr = u.Host + ":3306"
		}
		mc.User = u.User.Username()
		mc.Passwd, _ = u.User.Password()
		mc.DBName = strings.TrimPrefix(u.Path, "/")
		mc.ParseTime = true
		return MySQL, mc.FormatDSN(), nil
	}
	return Dialect{}, "", fmt.Errorf("unsupported database URL scheme %q", scheme)
}

// Close closes the handle.
func (s *SQLSink) Close() {
	s.db.Close()
}

// Write inserts rows into table; either all rows are stored or none.
func (s *SQLSink) Write(ctx context.Context, table string, columns []string, rows []schema.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	query, err := s.dialect.Insert(table, columns)
	if err != nil {
		return 0, err
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if already committed

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare insert into %s: %w", table, err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, sqlValues(columns, row)...); err != nil {
			return 0, fmt.Errorf("insert row %d into %s: %w", i+1, table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	n := int64(len(rows))
	slog.Info("rows inserted",
		"driver", s.dialect.Driver,
		"table", table,
		"rows", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return n, nil
}

// Insert returns the parameterized INSERT statement for table and columns.
func (d Dialect) Insert(table string, columns []string) (string, error) {
	ident, err := Identifier(table)
	if err != nil {
		return "", err
	}
	if len(columns) == 0 {
		return "", errors.New("insert: no columns")
	}

	parts := make([]string, len(ident))
	for i, p := range ident {
		parts[i] = d.quoteIdent(p)
	}
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = d.quoteIdent(c)
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		strings.Join(parts, "."), strings.Join(cols, ", "), marks), nil
}

func (d Dialect) quoteIdent(s string) string {
	q := string(d.quote)
	return q + strings.ReplaceAll(s, q, q+q) + q
}

func sqlValues(columns []string, row schema.Row) []any {
	out := make([]any, len(columns))
	for i, col := range columns {
		out[i] = sqlValue(row[col])
	}
	return out
}

func sqlValue(v any) any {
	switch x := v.(type) {
	case uuid.UUID:
		return x.String()
	case pgtype.Date:
		if !x.Valid {
			return nil
		}
		return x.Time.Format(time.DateOnly)
	default:
		return v
	}
}
