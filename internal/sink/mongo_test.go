package sink

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/JonMunkholm/csvrecord/internal/schema"
)

func TestDocument(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	row := schema.Row{
		"id":     id,
		"age":    42,
		"joined": pgtype.Date{Time: day, Valid: true},
		"left":   pgtype.Date{},
		"name":   "Alice",
	}
	doc := Document([]string{"name", "age", "id", "joined", "left", "missing"}, row)

	want := bson.D{
		{Key: "name", Value: "Alice"},
		{Key: "age", Value: int64(42)},
		{Key: "id", Value: id.String()},
		{Key: "joined", Value: day},
		{Key: "left", Value: nil},
		{Key: "missing", Value: nil},
	}
	assert.Equal(t, want, doc)
}

func TestMongoDatabase(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"mongodb://localhost:27017/imports", "imports"},
		{"mongodb://user:pw@localhost/imports?authSource=admin", "imports"},
		{"mongodb+srv://cluster0.example.net/", DefaultMongoDatabase},
		{"mongodb://localhost:27017", DefaultMongoDatabase},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := mongoDatabase(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
