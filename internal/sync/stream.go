package sync

import (
	"context"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arwahdevops/tablesync/internal/query"
)

// transfer moves the rows selected by sel from src into table on dst.
// Between two PostgreSQL servers the COPY text stream is piped through
// unparsed. Otherwise rows are scanned and inserted one at a time through an
// unbuffered channel, so at most one row is in flight.
func transfer(ctx context.Context, src, dst DataSource, sel query.Selection, table string) (int64, error) {
	if out, in, ok := copyPair(src, dst); ok {
		return copyTransfer(ctx, out, in, sel, table)
	}
	return rowTransfer(ctx, src, dst, sel, table)
}

func copyTransfer(ctx context.Context, out, in CopyStreamer, sel query.Selection, table string) (int64, error) {
	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, err := out.CopyOut(gctx, pw, sel)
		pw.CloseWithError(err)
		return adapterErr("copy out of", sel.Table, err)
	})

	var written int64
	g.Go(func() error {
		n, err := in.CopyIn(gctx, pr, table, sel.Columns)
		pr.CloseWithError(err)
		written = n
		return adapterErr("copy into", table, err)
	})

	err := g.Wait()
	return written, err
}

func rowTransfer(ctx context.Context, src, dst DataSource, sel query.Selection, table string) (int64, error) {
	rows := make(chan []any)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := src.StreamRows(gctx, sel, func(row []any) error {
			select {
			case rows <- row:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
		// The channel stays open on failure so the writer rolls back on
		// cancellation instead of committing a partial table.
		if err == nil {
			close(rows)
		}
		return adapterErr("read rows of", sel.Table, err)
	})

	var written int64
	g.Go(func() error {
		n, err := dst.InsertRows(gctx, table, sel.Columns, rows)
		written = n
		return adapterErr("write rows to", table, err)
	})

	err := g.Wait()
	return written, err
}

// runCopy empties the destination and copies every selected row.
func (t *tableRun) runCopy(ctx context.Context) error {
	if err := t.truncate(ctx); err != nil {
		return err
	}
	n, err := transfer(ctx, t.src, t.dst, t.sel, t.dstTable)
	t.out.Rows = n
	if err != nil {
		return err
	}
	t.metrics().RowsTransferred.WithLabelValues(t.srcTable).Add(float64(n))
	t.log.Debug("Copied table", zap.Int64("rows", n))
	return nil
}
