package sync

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/multierr"
)

// Classification is the transfer a table would need, judged by row counts.
type Classification string

const (
	ClassInSync        Classification = "in sync"
	ClassTimestampSync Classification = "timestamp sync"
	ClassNormalSync    Classification = "normal sync"
	ClassFullSync      Classification = "full sync"
	ClassError         Classification = "error"
)

// InspectionResult describes one table pair.
type InspectionResult struct {
	Table            string
	DestTable        string
	SourceCount      int64
	DestCount        int64
	HasPrimaryKey    bool
	TimestampTracked bool
	// TruncateRequired is set when the destination holds more rows than the source.
	TruncateRequired bool
	Class            Classification
	Err              error
}

// Inspect classifies each table without changing anything. Per-table
// failures are recorded in the results and combined into the returned error.
func Inspect(ctx context.Context, src, dst DataSource, tables []string, destination func(string) string) ([]InspectionResult, error) {
	results := make([]InspectionResult, 0, len(tables))
	var errs error
	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return results, multierr.Append(errs, err)
		}
		r := inspectTable(ctx, src, dst, table, destination(table))
		if r.Err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", table, r.Err))
		}
		results = append(results, r)
	}
	return results, errs
}

func inspectTable(ctx context.Context, src, dst DataSource, table, destTable string) InspectionResult {
	r := InspectionResult{Table: table, DestTable: destTable, Class: ClassError}

	var err error
	if r.DestCount, err = dst.Count(ctx, destTable); err != nil {
		r.Err = adapterErr("count", destTable, err)
		return r
	}
	if r.SourceCount, err = src.Count(ctx, table); err != nil {
		r.Err = adapterErr("count", table, err)
		return r
	}
	pk, err := src.PrimaryKey(ctx, table)
	if err != nil {
		r.Err = adapterErr("read primary key of", table, err)
		return r
	}
	r.HasPrimaryKey = len(pk) > 0
	if r.TimestampTracked, err = dst.IsTimestampTracked(ctx, destTable); err != nil {
		r.Err = adapterErr("check updated_at on", destTable, err)
		return r
	}

	switch {
	case r.DestCount > r.SourceCount:
		r.Class = ClassFullSync
		r.TruncateRequired = true
	case r.DestCount == r.SourceCount:
		r.Class = ClassInSync
	case !r.HasPrimaryKey:
		r.Class = ClassFullSync
	case r.TimestampTracked:
		r.Class = ClassTimestampSync
	default:
		r.Class = ClassNormalSync
	}
	return r
}

// GroupByClass returns table names per classification, ordered by source
// row count, smallest first.
func GroupByClass(results []InspectionResult) map[Classification][]string {
	sorted := append([]InspectionResult(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SourceCount < sorted[j].SourceCount })

	groups := make(map[Classification][]string)
	for _, r := range sorted {
		groups[r.Class] = append(groups[r.Class], r.Table)
	}
	return groups
}
