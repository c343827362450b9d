package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arwahdevops/tablesync/internal/query"
)

// Strategy names how a table's rows are moved.
type Strategy string

const (
	StrategySkip        Strategy = "skip"
	StrategyUnchanged   Strategy = "unchanged"
	StrategyIncremental Strategy = "timestamp_incremental"
	StrategyBatch       Strategy = "id_window_batch"
	StrategyStaged      Strategy = "staged_merge"
	StrategyCopy        Strategy = "full_copy"
)

// Plan is the outcome of strategy selection for one table.
type Plan struct {
	Strategy Strategy
	PK       string
	// Truncate empties the destination before the transfer runs.
	Truncate bool
	Preserve bool
	// Since is set for StrategyIncremental.
	Since *query.Since
	// Reason explains skips.
	Reason string
}

// syncsSequences reports whether sequence values are restored after the plan
// runs. True skips leave the destination untouched.
func (p Plan) syncsSequences() bool {
	return p.Strategy != StrategySkip
}

type planner struct {
	src, dst         DataSource
	srcTable, dstTbl string
	opts             Options
	log              *zap.Logger
}

// choose walks the selection rules in order. It only reads; truncation and
// copying are left to the executors.
func (p *planner) choose(ctx context.Context) (Plan, error) {
	if p.opts.InBatches {
		return p.chooseInBatches(ctx)
	}

	if !p.opts.Truncate && (p.opts.Overwrite || p.opts.Preserve || p.opts.SQL != "") {
		pk, err := singleKey(ctx, p.dst, p.dstTbl)
		if err != nil {
			return Plan{}, err
		}
		return Plan{Strategy: StrategyStaged, PK: pk, Preserve: p.opts.Preserve}, nil
	}

	if p.opts.IgnoreSameSize {
		srcCount, dstCount, err := p.counts(ctx)
		if err != nil {
			p.log.Warn("Row count check failed, copying table", zap.Error(err))
		} else if srcCount == dstCount {
			return Plan{Strategy: StrategyUnchanged, Reason: "row counts are the same"}, nil
		}
	}
	return Plan{Strategy: StrategyCopy, Truncate: true}, nil
}

func (p *planner) chooseInBatches(ctx context.Context) (Plan, error) {
	truncate := p.opts.Truncate

	if p.opts.IgnoreSameSize {
		srcCount, dstCount, err := p.counts(ctx)
		switch {
		case err != nil:
			p.log.Warn("Row count check failed, doing normal sync", zap.Error(err))
		case dstCount > srcCount && p.opts.Preserve:
			return Plan{Strategy: StrategySkip, Reason: "truncate required, fix manually"}, nil
		case dstCount > srcCount:
			p.log.Info("Destination has more rows than source, truncating",
				zap.Int64("source_rows", srcCount), zap.Int64("destination_rows", dstCount))
			truncate = true
		case dstCount == srcCount:
			return Plan{Strategy: StrategySkip, Reason: "row counts are the same"}, nil
		}
	}

	pk, err := singleKey(ctx, p.src, p.srcTable)
	if err != nil {
		return Plan{}, err
	}

	tracked, err := p.src.IsTimestampTracked(ctx, p.srcTable)
	if err != nil {
		return Plan{}, adapterErr("check updated_at on", p.srcTable, err)
	}
	if tracked && !truncate {
		plan, ok, err := p.chooseIncremental(ctx, pk)
		if err != nil || ok {
			return plan, err
		}
	}
	return Plan{Strategy: StrategyBatch, PK: pk, Truncate: truncate}, nil
}

// chooseIncremental returns ok=false when the destination has no usable
// updated_at watermark.
func (p *planner) chooseIncremental(ctx context.Context, pk string) (Plan, bool, error) {
	dstTS, err := p.dst.MaxUpdatedAt(ctx, p.dstTbl)
	if err != nil {
		return Plan{}, false, adapterErr("read max updated_at of", p.dstTbl, err)
	}
	if dstTS == nil || dstTS.Sign() <= 0 {
		return Plan{}, false, nil
	}
	dstID, err := p.dst.MaxID(ctx, p.dstTbl, pk)
	if err != nil {
		return Plan{}, false, adapterErr("read max id of", p.dstTbl, err)
	}
	srcTS, err := p.src.MaxUpdatedAt(ctx, p.srcTable)
	if err != nil {
		return Plan{}, false, adapterErr("read max updated_at of", p.srcTable, err)
	}
	srcID, err := p.src.MaxID(ctx, p.srcTable, pk)
	if err != nil {
		return Plan{}, false, adapterErr("read max id of", p.srcTable, err)
	}

	p.log.Debug("Timestamp watermarks",
		zap.Stringer("source_max_updated_at", srcTS),
		zap.Stringer("destination_max_updated_at", dstTS),
		zap.Int64("source_max_id", srcID),
		zap.Int64("destination_max_id", dstID))

	if srcTS != nil && srcTS.Cmp(dstTS) == 0 && srcID == dstID {
		return Plan{Strategy: StrategySkip, Reason: "already in sync"}, true, nil
	}
	return Plan{
		Strategy: StrategyIncremental,
		PK:       pk,
		Since:    &query.Since{PK: pk, MaxID: dstID, UpdatedAt: dstTS},
	}, true, nil
}

func (p *planner) counts(ctx context.Context) (src, dst int64, err error) {
	if dst, err = p.dst.Count(ctx, p.dstTbl); err != nil {
		return 0, 0, fmt.Errorf("count %s: %w", p.dstTbl, err)
	}
	if src, err = p.src.Count(ctx, p.srcTable); err != nil {
		return 0, 0, fmt.Errorf("count %s: %w", p.srcTable, err)
	}
	p.log.Debug("Row counts", zap.Int64("source_rows", src), zap.Int64("destination_rows", dst))
	return src, dst, nil
}

// singleKey returns the table's one primary-key column.
func singleKey(ctx context.Context, ds DataSource, table string) (string, error) {
	pk, err := ds.PrimaryKey(ctx, table)
	if err != nil {
		return "", adapterErr("read primary key of", table, err)
	}
	switch len(pk) {
	case 0:
		return "", &SchemaError{Table: table, Reason: "no primary key"}
	case 1:
		return pk[0], nil
	default:
		return "", &SchemaError{Table: table, Reason: fmt.Sprintf("composite primary key %v is not supported", pk)}
	}
}
