package db

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/arwahdevops/tablesync/internal/query"
)

// CopyOut writes the rows of sel to w in PostgreSQL COPY text format.
func (s *Source) CopyOut(ctx context.Context, w io.Writer, sel query.Selection) (int64, error) {
	var n int64
	err := s.withPgConn(ctx, func(pc *pgconn.PgConn) error {
		tag, err := pc.CopyTo(ctx, w, "COPY ("+sel.Render("postgres")+") TO STDOUT")
		n = tag.RowsAffected()
		return err
	})
	return n, err
}

// CopyIn loads COPY text from r into table.
func (s *Source) CopyIn(ctx context.Context, r io.Reader, table string, columns []string) (int64, error) {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = s.ident(c)
	}
	stmt := fmt.Sprintf("COPY %s (%s) FROM STDIN", s.quote(table), strings.Join(cols, ", "))
	var n int64
	err := s.withPgConn(ctx, func(pc *pgconn.PgConn) error {
		tag, err := pc.CopyFrom(ctx, r, stmt)
		n = tag.RowsAffected()
		return err
	})
	return n, err
}

func (s *Source) withPgConn(ctx context.Context, fn func(*pgconn.PgConn) error) error {
	if s.conn.Dialect != "postgres" {
		return fmt.Errorf("COPY is not available for %s", s.conn.Dialect)
	}
	sqlDB, err := s.conn.DB.DB()
	if err != nil {
		return err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("COPY needs the pgx driver, got %T", driverConn)
		}
		return fn(c.Conn().PgConn())
	})
}
