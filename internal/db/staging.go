package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateStaging creates an empty session-scoped table shaped like `like`
// and returns its name.
func (s *Source) CreateStaging(ctx context.Context, like string) (string, error) {
	name := "tablesync_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	var stmt string
	switch s.conn.Dialect {
	case "postgres":
		stmt = fmt.Sprintf("CREATE TEMPORARY TABLE %s AS SELECT * FROM %s WITH NO DATA", s.ident(name), s.quote(like))
	case "mysql":
		stmt = fmt.Sprintf("CREATE TEMPORARY TABLE %s LIKE %s", s.ident(name), s.quote(like))
	default:
		stmt = fmt.Sprintf("CREATE TEMP TABLE %s AS SELECT * FROM %s WHERE 0", s.ident(name), s.quote(like))
	}
	if err := s.conn.DB.WithContext(ctx).Exec(stmt).Error; err != nil {
		return "", fmt.Errorf("create staging table for %s: %w", like, err)
	}
	return name, nil
}

func (s *Source) DropStaging(ctx context.Context, name string) error {
	stmt := "DROP TABLE IF EXISTS " + s.ident(name)
	if s.conn.Dialect == "mysql" {
		stmt = "DROP TEMPORARY TABLE IF EXISTS " + s.ident(name)
	}
	return s.conn.DB.WithContext(ctx).Exec(stmt).Error
}

// MergeStaging moves staged rows into table. With preserve, only rows whose
// key is absent from table are inserted. Otherwise matching rows are
// deleted and all staged rows inserted, in one transaction.
func (s *Source) MergeStaging(ctx context.Context, table, staging, pk string, columns []string, preserve bool) (int64, error) {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = s.ident(c)
	}
	colList := strings.Join(cols, ", ")
	tbl, stg, key := s.quote(table), s.ident(staging), s.ident(pk)

	if preserve {
		stmt := fmt.Sprintf(
			"INSERT INTO %[1]s (%[3]s) SELECT %[3]s FROM %[2]s WHERE NOT EXISTS (SELECT 1 FROM %[1]s t WHERE t.%[4]s = %[2]s.%[4]s)",
			tbl, stg, colList, key)
		res := s.conn.DB.WithContext(ctx).Exec(stmt)
		if res.Error != nil {
			return 0, fmt.Errorf("merge (preserve) into %s: %w", table, res.Error)
		}
		return res.RowsAffected, nil
	}

	var inserted int64
	err := s.conn.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		del := fmt.Sprintf("DELETE FROM %s WHERE %s IN (SELECT %s FROM %s)", tbl, key, key, stg)
		if err := tx.Exec(del).Error; err != nil {
			return err
		}
		res := tx.Exec(fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", tbl, colList, colList, stg))
		inserted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("merge (overwrite) into %s: %w", table, err)
	}
	return inserted, nil
}
