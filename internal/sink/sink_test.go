package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/csvrecord/internal/schema"
)

type fakeCopier struct {
	table   pgx.Identifier
	columns []string
	rows    [][]any
	err     error
}

func (f *fakeCopier) CopyFrom(_ context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.table = table
	f.columns = columns
	for src.Next() {
		vals, err := src.Values()
		if err != nil {
			return 0, err
		}
		f.rows = append(f.rows, vals)
	}
	return int64(len(f.rows)), src.Err()
}

func TestCopy(t *testing.T) {
	id := uuid.New()
	founded := pgtype.Date{Time: time.Date(1167, 1, 1, 0, 0, 0, 0, time.UTC), Valid: true}
	rows := []schema.Row{
		{"town": "Copenhagen", "population": 644431, "founded": founded, "id": id},
		{"town": "Malmo", "population": nil},
	}

	fc := &fakeCopier{}
	n, err := Copy(context.Background(), fc, "public.cities", []string{"town", "population", "founded", "id"}, rows)
	require.NoError(t, err)

	assert.Equal(t, int64(2), n)
	assert.Equal(t, pgx.Identifier{"public", "cities"}, fc.table)
	assert.Equal(t, []any{"Copenhagen", int64(644431), founded, pgtype.UUID{Bytes: id, Valid: true}}, fc.rows[0])
	assert.Equal(t, []any{"Malmo", nil, nil, nil}, fc.rows[1])
}

func TestCopy_Errors(t *testing.T) {
	rows := []schema.Row{{"a": "x"}}

	_, err := Copy(context.Background(), &fakeCopier{}, "", []string{"a"}, rows)
	assert.Error(t, err)

	_, err = Copy(context.Background(), &fakeCopier{}, "t", nil, rows)
	assert.Error(t, err)

	boom := errors.New(`relation "t" does not exist`)
	_, err = Copy(context.Background(), &fakeCopier{err: boom}, "t", []string{"a"}, rows)
	assert.ErrorIs(t, err, boom)
}

func TestIdentifier(t *testing.T) {
	tests := []struct {
		in      string
		want    pgx.Identifier
		wantErr bool
	}{
		{"cities", pgx.Identifier{"cities"}, false},
		{"geo.cities", pgx.Identifier{"geo", "cities"}, false},
		{"a.b.c", nil, true},
		{"geo.", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Identifier(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
