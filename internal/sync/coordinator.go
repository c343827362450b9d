package sync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arwahdevops/tablesync/internal/metrics"
)

// Syncer copies one table. *TableSyncer implements it.
type Syncer interface {
	Sync(ctx context.Context, table string, opts Options) Outcome
}

// Coordinator runs table syncs over a fixed-size worker pool.
type Coordinator struct {
	syncer  Syncer
	logger  *zap.Logger
	metrics *metrics.Store
}

func NewCoordinator(syncer Syncer, log *zap.Logger, m *metrics.Store) *Coordinator {
	if m == nil {
		m = metrics.NewMetricsStore()
	}
	return &Coordinator{syncer: syncer, logger: log.Named("coordinator"), metrics: m}
}

// Run syncs every table and returns one Outcome per table. A failing table
// does not stop the others. Tables not yet started when ctx is cancelled are
// reported as skipped with the context error.
func (c *Coordinator) Run(ctx context.Context, tables []string, opts Options) map[string]Outcome {
	started := time.Now()
	c.metrics.RunActive.Set(1)
	defer func() {
		c.metrics.RunActive.Set(0)
		c.metrics.RunDuration.Observe(time.Since(started).Seconds())
	}()

	workers := opts.concurrency()
	c.logger.Debug("Starting table pool", zap.Int("tables", len(tables)), zap.Int("workers", workers))

	results := make(map[string]Outcome, len(tables))
	resultChan := make(chan Outcome, len(tables))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

dispatch:
	for i, table := range tables {
		select {
		case <-ctx.Done():
			c.handleRemainingTablesOnCancel(ctx, tables[i:], results)
			break dispatch
		default:
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			c.handleRemainingTablesOnCancel(ctx, tables[i:], results)
			break dispatch
		}

		wg.Add(1)
		go func(table string) {
			defer wg.Done()
			defer func() { <-sem }()
			resultChan <- c.syncer.Sync(ctx, table, opts)
		}(table)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()
	for res := range resultChan {
		results[res.Table] = res
	}
	return results
}

func (c *Coordinator) handleRemainingTablesOnCancel(ctx context.Context, remaining []string, results map[string]Outcome) {
	if len(remaining) == 0 {
		return
	}
	c.logger.Warn("Context cancelled; marking remaining tables as skipped",
		zap.String("first_remaining_table", remaining[0]),
		zap.Int("count_remaining", len(remaining)),
		zap.Error(ctx.Err()))
	for _, table := range remaining {
		if _, exists := results[table]; exists {
			continue
		}
		results[table] = Outcome{
			Table:   table,
			Skipped: true,
			Reason:  "cancelled before start",
			Err:     fmt.Errorf("context cancelled: %w", ctx.Err()),
		}
		c.metrics.TablesTotal.WithLabelValues("failed").Inc()
	}
}

// ExitCode maps results to the process exit status: 0 when every table
// synced or was skipped, 1 when any failed.
func ExitCode(results map[string]Outcome) int {
	for _, r := range results {
		if r.Failed() {
			return 1
		}
	}
	return 0
}

// LogSummary writes one line with the totals and one line per failed table.
func LogSummary(log *zap.Logger, results map[string]Outcome) {
	var synced, skipped int
	var failed []string
	var rows int64
	for table, r := range results {
		rows += r.Rows
		switch r.status() {
		case "failed":
			failed = append(failed, table)
		case "skipped":
			skipped++
		default:
			synced++
		}
	}
	sort.Strings(failed)
	log.Info("Sync summary",
		zap.Int("tables", len(results)),
		zap.Int("synced", synced),
		zap.Int("skipped", skipped),
		zap.Int("failed", len(failed)),
		zap.Int64("rows", rows))
	for _, table := range failed {
		log.Error("Table failed", zap.String("table", table), zap.Error(results[table].Err))
	}
}
