package sync

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func init() {
	gob.Register(time.Time{})
}

// runStaged lands the filtered source rows in a temporary table on the
// destination, then merges them by primary key. With Preserve, rows whose
// key already exists are left alone; otherwise they are replaced.
func (t *tableRun) runStaged(ctx context.Context) (err error) {
	spool, err := os.CreateTemp("", "tablesync-*.spool")
	if err != nil {
		return fmt.Errorf("create spool file: %w", err)
	}
	defer func() {
		err = multierr.Append(err, spool.Close())
		if rmErr := os.Remove(spool.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = multierr.Append(err, rmErr)
		}
	}()

	out, in, copyMode := copyPair(t.src, t.dst)

	spooled, err := t.spoolRows(ctx, spool, out, copyMode)
	if err != nil {
		return err
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind spool file: %w", err)
	}

	staging, err := t.dst.CreateStaging(ctx, t.dstTable)
	if err != nil {
		return adapterErr("create staging table for", t.dstTable, err)
	}
	defer func() {
		if dropErr := t.dst.DropStaging(context.WithoutCancel(ctx), staging); dropErr != nil {
			err = multierr.Append(err, adapterErr("drop staging table", staging, dropErr))
		}
	}()

	if copyMode {
		_, err = in.CopyIn(ctx, bufio.NewReader(spool), staging, t.sel.Columns)
		err = adapterErr("load staging table", staging, err)
	} else {
		err = t.loadGob(ctx, spool, staging)
	}
	if err != nil {
		return err
	}

	merged, err := t.dst.MergeStaging(ctx, t.dstTable, staging, t.plan.PK, t.sel.Columns, t.plan.Preserve)
	if err != nil {
		return adapterErr("merge staging into", t.dstTable, err)
	}
	t.out.Rows = merged
	t.metrics().RowsTransferred.WithLabelValues(t.srcTable).Add(float64(merged))
	t.log.Info("Merged staged rows",
		zap.Int64("staged", spooled),
		zap.Int64("written", merged),
		zap.Bool("preserve", t.plan.Preserve))
	return nil
}

// spoolRows writes the selection to f, as COPY text when both ends speak it
// and as a gob stream of rows otherwise.
func (t *tableRun) spoolRows(ctx context.Context, f *os.File, out CopyStreamer, copyMode bool) (int64, error) {
	w := bufio.NewWriter(f)
	var n int64
	var err error
	if copyMode {
		n, err = out.CopyOut(ctx, w, t.sel)
	} else {
		enc := gob.NewEncoder(w)
		err = t.src.StreamRows(ctx, t.sel, func(row []any) error {
			n++
			return enc.Encode(row)
		})
	}
	if err != nil {
		return n, adapterErr("spool rows of", t.srcTable, err)
	}
	if err := w.Flush(); err != nil {
		return n, fmt.Errorf("flush spool file: %w", err)
	}
	return n, nil
}

func (t *tableRun) loadGob(ctx context.Context, f *os.File, staging string) error {
	rows := make(chan []any)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		dec := gob.NewDecoder(bufio.NewReader(f))
		for {
			var row []any
			if err := dec.Decode(&row); err != nil {
				if errors.Is(err, io.EOF) {
					close(rows)
					return nil
				}
				return fmt.Errorf("decode spool file: %w", err)
			}
			select {
			case rows <- row:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	g.Go(func() error {
		_, err := t.dst.InsertRows(gctx, staging, t.sel.Columns, rows)
		return adapterErr("load staging table", staging, err)
	})
	return g.Wait()
}
