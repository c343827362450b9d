package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/arwahdevops/tablesync/internal/logger"
	"github.com/arwahdevops/tablesync/internal/metrics"
	"github.com/arwahdevops/tablesync/internal/query"
	"github.com/arwahdevops/tablesync/internal/rules"
)

// TableSyncer copies single tables. Sync is safe for concurrent use as long
// as each call handles a different table.
type TableSyncer struct {
	open    Opener
	rules   rules.Set
	rename  map[string]string
	blocks  *logger.BlockLogger
	metrics *metrics.Store
}

func NewTableSyncer(open Opener, ruleSet rules.Set, rename map[string]string, blocks *logger.BlockLogger, m *metrics.Store) *TableSyncer {
	if blocks == nil {
		blocks = logger.NewBlockLogger(logger.Log)
	}
	if m == nil {
		m = metrics.NewMetricsStore()
	}
	return &TableSyncer{open: open, rules: ruleSet, rename: rename, blocks: blocks, metrics: m}
}

// DestinationTable maps a source table through rename_tables.
func (s *TableSyncer) DestinationTable(table string) string {
	if to, ok := s.rename[table]; ok && to != "" {
		return to
	}
	return table
}

// tableRun is the state of one Sync call.
type tableRun struct {
	syncer   *TableSyncer
	src, dst DataSource
	srcTable string
	dstTable string
	opts     Options
	sel      query.Selection
	plan     Plan
	log      *zap.Logger
	out      *Outcome
}

func (t *tableRun) metrics() *metrics.Store { return t.syncer.metrics }

func (t *tableRun) truncate(ctx context.Context) error {
	t.log.Info("Truncating destination table")
	return adapterErr("truncate", t.dstTable, t.dst.Truncate(ctx, t.dstTable))
}

// Sync copies one table according to opts and reports what happened. It
// never panics on adapter failures; they are returned in Outcome.Err.
func (s *TableSyncer) Sync(ctx context.Context, table string, opts Options) (out Outcome) {
	started := time.Now()
	out = Outcome{Table: table, DestTable: s.DestinationTable(table)}
	log := s.blocks.Logger().With(zap.String("table", table))

	defer func() {
		out.Duration = time.Since(started)
		s.record(out)
	}()

	if opts.InBatches && opts.Overwrite {
		out.Err = &UsageError{Reason: "cannot use --overwrite with --in-batches"}
		return out
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 10000
	}

	src, dst, err := s.open(ctx, table)
	if err != nil {
		out.Err = adapterErr("open connections for", table, err)
		return out
	}
	defer func() {
		if closeErr := multierr.Combine(src.Close(), dst.Close()); closeErr != nil {
			log.Warn("Failed to close connections", zap.Error(closeErr))
			out.Err = multierr.Append(out.Err, adapterErr("close connections for", table, closeErr))
		}
	}()

	run := &tableRun{
		syncer:   s,
		src:      src,
		dst:      dst,
		srcTable: table,
		dstTable: out.DestTable,
		opts:     opts,
		log:      log,
		out:      &out,
	}
	out.Err = run.execute(ctx)
	return out
}

func (t *tableRun) execute(ctx context.Context) error {
	diff, err := t.reconcile(ctx)
	if err != nil {
		return err
	}
	t.announce(diff)
	if len(diff.Columns.Shared) == 0 {
		t.out.Skipped = true
		t.out.Strategy = StrategySkip
		t.out.Reason = "no fields to copy"
		return nil
	}

	ruleSet := t.syncer.rules
	if t.opts.NoRules {
		ruleSet = nil
	}
	exprs, err := ruleSet.Projection(t.src.Dialect(), t.srcTable, diff.Columns.Shared)
	if err != nil {
		return err
	}
	t.sel = query.Selection{
		Table:   t.srcTable,
		Columns: diff.Columns.Shared,
		Exprs:   exprs,
		Filter:  t.opts.SQL,
	}

	p := &planner{src: t.src, dst: t.dst, srcTable: t.srcTable, dstTbl: t.dstTable, opts: t.opts, log: t.log}
	if t.plan, err = p.choose(ctx); err != nil {
		return err
	}
	t.out.Strategy = t.plan.Strategy
	t.log.Info("Strategy selected", zap.String("strategy", string(t.plan.Strategy)))

	switch t.plan.Strategy {
	case StrategySkip:
		t.out.Skipped = true
		t.out.Reason = t.plan.Reason
		t.log.Info("Skipping table", zap.String("reason", t.plan.Reason))
	case StrategyUnchanged:
		t.out.Skipped = true
		t.out.Reason = t.plan.Reason
		t.log.Info("Skipping copy", zap.String("reason", t.plan.Reason))
	case StrategyIncremental:
		err = t.runIncremental(ctx)
	case StrategyBatch:
		err = t.runBatch(ctx)
	case StrategyStaged:
		err = t.runStaged(ctx)
	case StrategyCopy:
		err = t.runCopy(ctx)
	default:
		err = fmt.Errorf("unknown strategy %q", t.plan.Strategy)
	}
	if err != nil {
		return err
	}

	if t.plan.syncsSequences() {
		return t.syncSequences(ctx, diff.Sequences.Shared)
	}
	return nil
}

func (t *tableRun) reconcile(ctx context.Context) (SchemaDiff, error) {
	srcCols, err := t.src.Columns(ctx, t.srcTable)
	if err != nil {
		return SchemaDiff{}, adapterErr("read columns of", t.srcTable, err)
	}
	dstCols, err := t.dst.Columns(ctx, t.dstTable)
	if err != nil {
		return SchemaDiff{}, adapterErr("read columns of", t.dstTable, err)
	}
	cols := Reconcile(srcCols, dstCols)

	srcSeqs, err := t.src.Sequences(ctx, t.srcTable, cols.Shared)
	if err != nil {
		return SchemaDiff{}, adapterErr("read sequences of", t.srcTable, err)
	}
	dstSeqs, err := t.dst.Sequences(ctx, t.dstTable, cols.Shared)
	if err != nil {
		return SchemaDiff{}, adapterErr("read sequences of", t.dstTable, err)
	}
	return SchemaDiff{Columns: cols, Sequences: Reconcile(srcSeqs, dstSeqs)}, nil
}

// announce writes the start block for the table in one piece.
func (t *tableRun) announce(diff SchemaDiff) {
	t.syncer.blocks.Block(func(log *zap.Logger) {
		log = log.With(zap.String("table", t.srcTable))
		if t.dstTable != t.srcTable {
			log.Info("Syncing table", zap.String("to_table", t.dstTable))
		} else {
			log.Info("Syncing table")
		}
		if t.opts.SQL != "" {
			log.Info("Filter", zap.String("sql", t.opts.SQL))
		}
		if len(diff.Columns.Extra) > 0 {
			log.Warn("Extra columns: " + strings.Join(diff.Columns.Extra, ", "))
		}
		if len(diff.Columns.Missing) > 0 {
			log.Warn("Missing columns: " + strings.Join(diff.Columns.Missing, ", "))
		}
		if len(diff.Sequences.Extra) > 0 {
			log.Warn("Extra sequences: " + strings.Join(diff.Sequences.Extra, ", "))
		}
		if len(diff.Sequences.Missing) > 0 {
			log.Warn("Missing sequences: " + strings.Join(diff.Sequences.Missing, ", "))
		}
		if len(diff.Columns.Shared) == 0 {
			log.Warn("No fields to copy")
		}
	})
}

// record writes the done line and the table's metrics.
func (s *TableSyncer) record(out Outcome) {
	strategy := string(out.Strategy)
	if strategy == "" {
		strategy = "none"
	}
	s.metrics.TableDuration.WithLabelValues(out.Table, strategy).Observe(out.Duration.Seconds())
	s.metrics.TablesTotal.WithLabelValues(out.status()).Inc()
	if out.Err != nil {
		s.metrics.ErrorsTotal.WithLabelValues(errorKind(out.Err), out.Table).Inc()
	}

	fields := []zap.Field{
		zap.String("strategy", strategy),
		zap.Int64("rows", out.Rows),
		zap.Duration("duration", out.Duration.Round(100*time.Millisecond)),
	}
	if out.Windows > 0 {
		fields = append(fields, zap.Int("batches", out.Windows))
	}
	s.blocks.Block(func(bl *zap.Logger) {
		bl = bl.With(zap.String("table", out.Table))
		switch {
		case out.Err != nil:
			bl.Error("FAILED", append(fields, zap.Error(out.Err))...)
		case out.Skipped:
			bl.Info("DONE (skipped)", append(fields, zap.String("reason", out.Reason))...)
		default:
			bl.Info(fmt.Sprintf("DONE (%.1fs)", out.Duration.Seconds()), fields...)
		}
	})
}
