package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arwahdevops/tablesync/internal/query"
)

// window is one primary-key range [Start, End) of a batched copy.
type window struct {
	Index int // 1-based
	Total int
	Start int64
	End   int64
}

// planWindows splits [resume, last] into windows of size rows.
func planWindows(resume, last int64, size int) []window {
	if size < 1 || resume > last {
		return nil
	}
	step := int64(size)
	total := int((last - resume + step) / step)
	out := make([]window, 0, total)
	for i, start := 1, resume; start <= last; i, start = i+1, start+step {
		out = append(out, window{Index: i, Total: total, Start: start, End: start + step})
	}
	return out
}

// resumePoint is where a batched copy picks up: one past the destination's
// highest key, or the source's lowest key when the destination is empty.
func resumePoint(dstMax, srcMin int64) int64 {
	if dstMax == 0 && srcMin > 0 {
		return srcMin
	}
	return dstMax + 1
}

// runBatch copies the source in primary-key windows, starting after the
// highest key already present on the destination.
func (t *tableRun) runBatch(ctx context.Context) error {
	if t.plan.Truncate {
		if err := t.truncate(ctx); err != nil {
			return err
		}
	}
	pk := t.plan.PK

	last, err := t.src.MaxID(ctx, t.srcTable, pk)
	if err != nil {
		return adapterErr("read max id of", t.srcTable, err)
	}
	dstMax, err := t.dst.MaxID(ctx, t.dstTable, pk)
	if err != nil {
		return adapterErr("read max id of", t.dstTable, err)
	}
	var srcMin int64
	if dstMax == 0 {
		if srcMin, err = t.src.MinID(ctx, t.srcTable, pk); err != nil {
			return adapterErr("read min id of", t.srcTable, err)
		}
	}
	resume := resumePoint(dstMax, srcMin)
	windows := planWindows(resume, last, t.opts.BatchSize)
	t.log.Info("Copying in batches",
		zap.Int64("starting_id", resume),
		zap.Int64("max_id", last),
		zap.Int("batch_size", t.opts.BatchSize),
		zap.Int("batches", len(windows)))

	m := t.metrics()
	for _, w := range windows {
		sel := t.sel
		sel.Window = &query.Window{PK: pk, Start: w.Start, End: w.End}
		t.log.Info(fmt.Sprintf("%d/%d: %s", w.Index, w.Total, sel.Condition(t.src.Dialect())))

		started := time.Now()
		n, err := transfer(ctx, t.src, t.dst, sel, t.dstTable)
		t.out.Rows += n
		if err != nil {
			return fmt.Errorf("batch %d/%d: %w", w.Index, w.Total, err)
		}
		t.out.Windows++
		m.WindowsProcessed.WithLabelValues(t.srcTable).Inc()
		m.WindowDuration.WithLabelValues(t.srcTable).Observe(time.Since(started).Seconds())
		m.RowsTransferred.WithLabelValues(t.srcTable).Add(float64(n))

		if t.opts.Sleep > 0 && w.Index < w.Total {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(t.opts.Sleep):
			}
		}
	}
	return nil
}
