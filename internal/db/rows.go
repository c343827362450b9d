package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arwahdevops/tablesync/internal/query"
)

// insertChunk bounds rows per INSERT statement; placeholders per statement
// stay well below driver limits for wide tables.
const insertChunk = 250

// StreamRows runs sel and hands each row to each, in column order. A row
// slice is not reused after each returns.
func (s *Source) StreamRows(ctx context.Context, sel query.Selection, each func(row []any) error) error {
	rows, err := s.conn.DB.WithContext(ctx).Raw(sel.Render(s.conn.Dialect)).Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	n := len(sel.Columns)
	for rows.Next() {
		vals := make([]any, n)
		ptrs := make([]any, n)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		if err := each(vals); err != nil {
			return err
		}
	}
	return rows.Err()
}

// InsertRows writes every row received from rows into table inside one
// transaction. It returns when rows is closed or on the first error.
func (s *Source) InsertRows(ctx context.Context, table string, columns []string, rows <-chan []any) (int64, error) {
	var written int64
	err := s.conn.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch := make([]map[string]interface{}, 0, insertChunk)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := tx.Table(table).Create(batch).Error; err != nil {
				return err
			}
			written += int64(len(batch))
			batch = make([]map[string]interface{}, 0, insertChunk)
			return nil
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case row, ok := <-rows:
				if !ok {
					return flush()
				}
				batch = append(batch, rowMap(columns, row))
				if len(batch) == insertChunk {
					if err := flush(); err != nil {
						return err
					}
				}
			}
		}
	})
	if err != nil {
		return written, fmt.Errorf("insert into %s: %w", table, err)
	}
	return written, nil
}

// Upsert inserts one row or, on primary-key conflict, overwrites every
// non-key column with the incoming values.
func (s *Source) Upsert(ctx context.Context, table, pk string, columns []string, values []any) error {
	update := make([]string, 0, len(columns))
	for _, c := range columns {
		if c != pk {
			update = append(update, c)
		}
	}
	conflict := clause.OnConflict{Columns: []clause.Column{{Name: pk}}}
	if len(update) > 0 {
		conflict.DoUpdates = clause.AssignmentColumns(update)
	} else {
		conflict.DoNothing = true
	}
	return s.conn.DB.WithContext(ctx).Table(table).Clauses(conflict).Create(rowMap(columns, values)).Error
}

func rowMap(columns []string, row []any) map[string]interface{} {
	m := make(map[string]interface{}, len(columns))
	for i, c := range columns {
		m[c] = row[i]
	}
	return m
}
