package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/JonMunkholm/csvrecord/internal/config"
	"github.com/JonMunkholm/csvrecord/internal/schema"
)

// DefaultMongoDatabase is used when a mongodb:// URL names no database.
const DefaultMongoDatabase = "csvrecord"

// MongoSink inserts rows as documents, one collection per table. A failed
// insert may leave the rows before the failing one stored.
type MongoSink struct {
	client *mongo.Client
	db     string
}

// OpenMongo connects a mongodb:// or mongodb+srv:// URL and pings the server.
func OpenMongo(ctx context.Context, cfg config.DatabaseConfig) (*MongoSink, error) {
	dbName, err := mongoDatabase(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts := options.Client().ApplyURI(cfg.URL)
	if cfg.MaxConns > 0 {
		opts.SetMaxPoolSize(uint64(cfg.MaxConns))
	}
	if cfg.MinConns > 0 {
		opts.SetMinPoolSize(uint64(cfg.MinConns))
	}
	if cfg.MaxConnIdleTime > 0 {
		opts.SetMaxConnIdleTime(cfg.MaxConnIdleTime)
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoSink{client: client, db: dbName}, nil
}

// mongoDatabase returns the database named in the URL path.
func mongoDatabase(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse database URL: %w", err)
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name, nil
	}
	return DefaultMongoDatabase, nil
}

// Close disconnects the client.
func (s *MongoSink) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		slog.Warn("mongo disconnect failed", "error", err)
	}
}

// Write inserts rows into the collection named table, in order.
func (s *MongoSink) Write(ctx context.Context, table string, columns []string, rows []schema.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if strings.TrimSpace(table) == "" {
		return 0, fmt.Errorf("invalid table name %q", table)
	}
	start := time.Now()

	docs := make([]bson.D, len(rows))
	for i, row := range rows {
		docs[i] = Document(columns, row)
	}

	res, err := s.client.Database(s.db).Collection(table).InsertMany(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}

	n := int64(len(res.InsertedIDs))
	slog.Info("documents inserted",
		"collection", table,
		"rows", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return n, nil
}

// Document returns the row as a BSON document with its keys in column order.
// Keys missing from the row are stored as null.
func Document(columns []string, row schema.Row) bson.D {
	doc := make(bson.D, len(columns))
	for i, col := range columns {
		doc[i] = bson.E{Key: col, Value: bsonValue(row[col])}
	}
	return doc
}

func bsonValue(v any) any {
	switch x := v.(type) {
	case uuid.UUID:
		return x.String()
	case int:
		return int64(x)
	case pgtype.Date:
		if !x.Valid {
			return nil
		}
		return x.Time
	default:
		return v
	}
}
