package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"

	"github.com/arwahdevops/tablesync/internal/config"
	"github.com/arwahdevops/tablesync/internal/logger"
	"github.com/arwahdevops/tablesync/internal/query"
)

func newSQLiteSource(t *testing.T, label string) *Source {
	t.Helper()
	dsn, err := BuildDSN(config.DatabaseConfig{Dialect: "sqlite", DBName: filepath.Join(t.TempDir(), label+".db")}, "", "", time.Second)
	require.NoError(t, err)
	conn, err := New("sqlite", dsn, logger.GetGormLogger().LogMode(gormlogger.Silent))
	require.NoError(t, err)
	require.NoError(t, conn.Pin())
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.DB.Exec(`CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		email TEXT,
		name TEXT,
		updated_at DATETIME
	)`).Error)
	return NewSource(conn, label)
}

func seed(t *testing.T, s *Source, rows ...[]any) {
	t.Helper()
	for _, r := range rows {
		require.NoError(t, s.conn.DB.Exec(`INSERT INTO users (id, email, name, updated_at) VALUES (?, ?, ?, ?)`, r...).Error)
	}
}

func TestSourceMetadata(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteSource(t, "src")
	seed(t, s,
		[]any{5, "a@x", "A", "2024-01-01 00:00:00"},
		[]any{9, "b@x", "B", "2024-01-02 00:00:00"})

	exists, err := s.TableExists(ctx, "users")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = s.TableExists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, exists)

	cols, err := s.Columns(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "email", "name", "updated_at"}, cols)

	pk, err := s.PrimaryKey(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, pk)

	maxID, err := s.MaxID(ctx, "users", "id")
	require.NoError(t, err)
	assert.EqualValues(t, 9, maxID)
	minID, err := s.MinID(ctx, "users", "id")
	require.NoError(t, err)
	assert.EqualValues(t, 5, minID)

	n, err := s.Count(ctx, "users")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	tracked, err := s.IsTimestampTracked(ctx, "users")
	require.NoError(t, err)
	assert.True(t, tracked)

	ts, err := s.MaxUpdatedAt(ctx, "users")
	require.NoError(t, err)
	require.NotNil(t, ts)
	f, err := ts.Float64()
	require.NoError(t, err)
	assert.InDelta(t, float64(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).Unix()), f, 1)

	seqs, err := s.Sequences(ctx, "users", cols)
	require.NoError(t, err)
	assert.Empty(t, seqs)

	tables, err := s.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, tables)
}

func TestSourceEmptyTable(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteSource(t, "empty")

	maxID, err := s.MaxID(ctx, "users", "id")
	require.NoError(t, err)
	assert.Zero(t, maxID)

	ts, err := s.MaxUpdatedAt(ctx, "users")
	require.NoError(t, err)
	assert.Nil(t, ts)
}

func TestStreamAndInsertRows(t *testing.T) {
	ctx := context.Background()
	src := newSQLiteSource(t, "src")
	dst := newSQLiteSource(t, "dst")
	for i := 1; i <= 600; i++ {
		seed(t, src, []any{i, "e", "n", "2024-01-01 00:00:00"})
	}

	sel := query.Selection{
		Table:   "users",
		Columns: []string{"id", "email"},
		Exprs:   []string{`"users"."id"`, `'email' || "users"."id"`},
		Window:  &query.Window{PK: "id", Start: 101, End: 401},
	}
	ch := make(chan []any)
	done := make(chan struct{})
	var written int64
	var insertErr error
	go func() {
		defer close(done)
		written, insertErr = dst.InsertRows(ctx, "users", sel.Columns, ch)
	}()
	require.NoError(t, src.StreamRows(ctx, sel, func(row []any) error {
		ch <- row
		return nil
	}))
	close(ch)
	<-done

	require.NoError(t, insertErr)
	assert.EqualValues(t, 300, written)

	n, err := dst.Count(ctx, "users")
	require.NoError(t, err)
	assert.EqualValues(t, 300, n)

	var email string
	require.NoError(t, dst.conn.DB.Raw(`SELECT email FROM users WHERE id = 150`).Row().Scan(&email))
	assert.Equal(t, "email150", email)
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteSource(t, "dst")
	seed(t, s, []any{1, "old@x", "Old", "2024-01-01 00:00:00"})

	cols := []string{"id", "email", "name"}
	require.NoError(t, s.Upsert(ctx, "users", "id", cols, []any{1, "new@x", "New"}))
	require.NoError(t, s.Upsert(ctx, "users", "id", cols, []any{2, "two@x", "Two"}))

	var name string
	require.NoError(t, s.conn.DB.Raw(`SELECT name FROM users WHERE id = 1`).Row().Scan(&name))
	assert.Equal(t, "New", name)
	n, err := s.Count(ctx, "users")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestMergeStaging(t *testing.T) {
	for _, preserve := range []bool{true, false} {
		name := "overwrite"
		if preserve {
			name = "preserve"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newSQLiteSource(t, "dst")
			seed(t, s,
				[]any{1, "one@dst", "One", nil},
				[]any{2, "two@dst", "Two", nil})

			staging, err := s.CreateStaging(ctx, "users")
			require.NoError(t, err)
			defer func() { assert.NoError(t, s.DropStaging(ctx, staging)) }()

			cols := []string{"id", "email", "name"}
			ch := make(chan []any, 2)
			ch <- []any{2, "two@src", "Two"}
			ch <- []any{3, "three@src", "Three"}
			close(ch)
			_, err = s.InsertRows(ctx, staging, cols, ch)
			require.NoError(t, err)

			_, err = s.MergeStaging(ctx, "users", staging, "id", cols, preserve)
			require.NoError(t, err)

			var ids []int64
			require.NoError(t, s.conn.DB.Raw(`SELECT id FROM users ORDER BY id`).Scan(&ids).Error)
			assert.Equal(t, []int64{1, 2, 3}, ids)

			var email string
			require.NoError(t, s.conn.DB.Raw(`SELECT email FROM users WHERE id = 2`).Row().Scan(&email))
			if preserve {
				assert.Equal(t, "two@dst", email)
			} else {
				assert.Equal(t, "two@src", email)
			}
		})
	}
}

func TestTruncateAndCloseIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteSource(t, "dst")
	seed(t, s, []any{1, "a", "b", nil})
	require.NoError(t, s.Truncate(ctx, "users"))
	n, err := s.Count(ctx, "users")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestCopyRequiresPostgres(t *testing.T) {
	s := newSQLiteSource(t, "src")
	_, err := s.CopyOut(context.Background(), nil, query.Selection{Table: "users"})
	assert.ErrorContains(t, err, "COPY is not available")
}
