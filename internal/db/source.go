package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"github.com/arwahdevops/tablesync/internal/query"
	"github.com/arwahdevops/tablesync/internal/utils"
)

// Source exposes per-table metadata and streaming over one pinned session.
// It backs both the source and the destination side of a transfer.
type Source struct {
	conn  *Connector
	label string
}

func NewSource(conn *Connector, label string) *Source {
	return &Source{conn: conn, label: label}
}

func (s *Source) Label() string   { return s.label }
func (s *Source) Dialect() string { return s.conn.Dialect }

// Connector exposes the underlying connection, for health checks.
func (s *Source) Connector() *Connector { return s.conn }

func (s *Source) Close() error { return s.conn.Close() }

func (s *Source) quote(table string) string {
	return utils.QuoteQualified(table, s.conn.Dialect)
}

func (s *Source) ident(name string) string {
	return utils.QuoteIdentifier(name, s.conn.Dialect)
}

func (s *Source) scalar(ctx context.Context, dest any, sql string, args ...any) error {
	return s.conn.DB.WithContext(ctx).Raw(sql, args...).Row().Scan(dest)
}

func (s *Source) list(ctx context.Context, sql string, args ...any) ([]string, error) {
	var out []string
	if err := s.conn.DB.WithContext(ctx).Raw(sql, args...).Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Tables lists the base tables visible to the session.
func (s *Source) Tables(ctx context.Context) ([]string, error) {
	var q string
	switch s.conn.Dialect {
	case "postgres":
		q = `SELECT table_schema || '.' || table_name FROM information_schema.tables
			WHERE table_type = 'BASE TABLE' AND table_schema NOT IN ('pg_catalog', 'information_schema')
			ORDER BY 1`
	case "mysql":
		q = `SELECT TABLE_NAME FROM information_schema.TABLES
			WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE' ORDER BY 1`
	default:
		q = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY 1`
	}
	tables, err := s.list(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list %s tables: %w", s.label, err)
	}
	return tables, nil
}

func (s *Source) TableExists(ctx context.Context, table string) (bool, error) {
	schema, name := utils.SplitQualified(table)
	var n int64
	var err error
	switch s.conn.Dialect {
	case "postgres":
		err = s.scalar(ctx, &n, `SELECT COUNT(*) FROM information_schema.tables
			WHERE table_schema = COALESCE(NULLIF(?, ''), current_schema()) AND table_name = ?`, schema, name)
	case "mysql":
		err = s.scalar(ctx, &n, `SELECT COUNT(*) FROM information_schema.TABLES
			WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ?`, schema, name)
	default:
		err = s.scalar(ctx, &n, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name)
	}
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Source) Columns(ctx context.Context, table string) ([]string, error) {
	schema, name := utils.SplitQualified(table)
	switch s.conn.Dialect {
	case "postgres":
		return s.list(ctx, `SELECT column_name FROM information_schema.columns
			WHERE table_schema = COALESCE(NULLIF(?, ''), current_schema()) AND table_name = ?
			ORDER BY ordinal_position`, schema, name)
	case "mysql":
		return s.list(ctx, `SELECT COLUMN_NAME FROM information_schema.COLUMNS
			WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ?
			ORDER BY ORDINAL_POSITION`, schema, name)
	default:
		return s.list(ctx, `SELECT name FROM pragma_table_info(?) ORDER BY cid`, name)
	}
}

// Sequences returns the sequences owned by columns. Only PostgreSQL has
// standalone sequences; other dialects report none.
func (s *Source) Sequences(ctx context.Context, table string, columns []string) ([]string, error) {
	if s.conn.Dialect != "postgres" {
		return nil, nil
	}
	var out []string
	for _, c := range columns {
		var seq sql.NullString
		if err := s.scalar(ctx, &seq, `SELECT pg_get_serial_sequence(?, ?)`, s.quote(table), c); err != nil {
			return nil, fmt.Errorf("sequence for %s.%s: %w", table, c, err)
		}
		if seq.Valid {
			out = append(out, seq.String)
		}
	}
	return out, nil
}

// PrimaryKey returns the key columns in key order, or nil.
func (s *Source) PrimaryKey(ctx context.Context, table string) ([]string, error) {
	schema, name := utils.SplitQualified(table)
	switch s.conn.Dialect {
	case "postgres":
		return s.list(ctx, `SELECT a.attname
			FROM pg_index i
			JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
			WHERE i.indrelid = CAST(? AS regclass) AND i.indisprimary
			ORDER BY array_position(i.indkey::int2[], a.attnum)`, s.quote(table))
	case "mysql":
		return s.list(ctx, `SELECT COLUMN_NAME FROM information_schema.KEY_COLUMN_USAGE
			WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ?
			AND CONSTRAINT_NAME = 'PRIMARY' ORDER BY ORDINAL_POSITION`, schema, name)
	default:
		return s.list(ctx, `SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk`, name)
	}
}

// MaxID returns MAX(pk), or 0 for an empty table.
func (s *Source) MaxID(ctx context.Context, table, pk string) (int64, error) {
	var v int64
	err := s.scalar(ctx, &v, fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s", s.ident(pk), s.quote(table)))
	return v, err
}

// MinID returns MIN(pk), or 0 for an empty table.
func (s *Source) MinID(ctx context.Context, table, pk string) (int64, error) {
	var v int64
	err := s.scalar(ctx, &v, fmt.Sprintf("SELECT COALESCE(MIN(%s), 0) FROM %s", s.ident(pk), s.quote(table)))
	return v, err
}

// MaxUpdatedAt returns the newest updated_at as exact epoch seconds, or nil
// when the table is empty.
func (s *Source) MaxUpdatedAt(ctx context.Context, table string) (*apd.Decimal, error) {
	var q string
	col := s.ident("updated_at")
	switch s.conn.Dialect {
	case "postgres":
		q = fmt.Sprintf("SELECT CAST(extract(epoch from MAX(%s)) AS text) FROM %s", col, s.quote(table))
	case "mysql":
		q = fmt.Sprintf("SELECT CAST(UNIX_TIMESTAMP(MAX(%s)) AS CHAR) FROM %s", col, s.quote(table))
	default:
		q = fmt.Sprintf("SELECT CAST(MAX(%s) AS TEXT) FROM %s", query.EpochExpr("updated_at", "sqlite"), s.quote(table))
	}
	var raw sql.NullString
	if err := s.scalar(ctx, &raw, q); err != nil {
		return nil, err
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	d, _, err := apd.NewFromString(raw.String)
	if err != nil {
		return nil, fmt.Errorf("parse max updated_at %q: %w", raw.String, err)
	}
	return d, nil
}

func (s *Source) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	err := s.scalar(ctx, &n, "SELECT COUNT(*) FROM "+s.quote(table))
	return n, err
}

func (s *Source) Truncate(ctx context.Context, table string) error {
	var stmt string
	switch s.conn.Dialect {
	case "postgres":
		stmt = "TRUNCATE " + s.quote(table) + " CASCADE"
	case "mysql":
		stmt = "TRUNCATE TABLE " + s.quote(table)
	default:
		stmt = "DELETE FROM " + s.quote(table)
	}
	return s.conn.DB.WithContext(ctx).Exec(stmt).Error
}

// IsTimestampTracked reports whether the table has an updated_at column.
func (s *Source) IsTimestampTracked(ctx context.Context, table string) (bool, error) {
	cols, err := s.Columns(ctx, table)
	if err != nil {
		return false, err
	}
	for _, c := range cols {
		if c == "updated_at" {
			return true, nil
		}
	}
	return false, nil
}

// LastSequenceValue reads last_value. seq is a name as returned by Sequences.
func (s *Source) LastSequenceValue(ctx context.Context, seq string) (int64, error) {
	var v int64
	err := s.scalar(ctx, &v, "SELECT last_value FROM "+seq)
	return v, err
}

func (s *Source) SetSequenceValue(ctx context.Context, seq string, value int64) error {
	var ignored int64
	return s.scalar(ctx, &ignored, "SELECT setval(CAST(? AS regclass), ?)", seq, value)
}
