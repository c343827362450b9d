package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arwahdevops/tablesync/internal/metrics"
)

// countingSyncer records how many Sync calls overlap.
type countingSyncer struct {
	mu      gosync.Mutex
	active  int
	peak    int
	fail    map[string]bool
	tables  []string
	release time.Duration
}

func (c *countingSyncer) Sync(ctx context.Context, table string, _ Options) Outcome {
	c.mu.Lock()
	c.active++
	if c.active > c.peak {
		c.peak = c.active
	}
	c.tables = append(c.tables, table)
	c.mu.Unlock()

	time.Sleep(c.release)

	c.mu.Lock()
	c.active--
	c.mu.Unlock()
	if c.fail[table] {
		return Outcome{Table: table, Err: errors.New("boom")}
	}
	return Outcome{Table: table, Strategy: StrategyCopy, Rows: 1}
}

func tableNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("t%02d", i)
	}
	return out
}

func TestCoordinatorIsolatesFailures(t *testing.T) {
	src := newFakeSource("SRC", "sqlite")
	dst := newFakeSource("DEST", "sqlite")
	for _, name := range []string{"a", "c"} {
		src.add(name, usersTable(1, 2))
		dst.add(name, usersTable())
	}
	open := func(ctx context.Context, table string) (DataSource, DataSource, error) {
		if table == "b" {
			return nil, nil, errors.New("too many connections")
		}
		return src, dst, nil
	}
	syncer, _ := newTestSyncer(t, open, nil, nil)
	c := NewCoordinator(syncer, zap.NewNop(), metrics.NewMetricsStore())

	results := c.Run(context.Background(), []string{"a", "b", "c"}, Options{Sequential: true})
	require.Len(t, results, 3)
	assert.NoError(t, results["a"].Err)
	assert.Error(t, results["b"].Err)
	assert.NoError(t, results["c"].Err)
	assert.Len(t, dst.tables["a"].rows, 2)
	assert.Len(t, dst.tables["c"].rows, 2)
	assert.Equal(t, 1, ExitCode(results))
}

func TestCoordinatorWorkerLimit(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		max  int
	}{
		{"pool", Options{Workers: 3}, 3},
		{"sequential", Options{Workers: 3, Sequential: true}, 1},
		{"in batches", Options{Workers: 3, InBatches: true}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &countingSyncer{release: 5 * time.Millisecond}
			c := NewCoordinator(s, zap.NewNop(), nil)
			results := c.Run(context.Background(), tableNames(12), tt.opts)
			assert.Len(t, results, 12)
			assert.LessOrEqual(t, s.peak, tt.max)
			assert.Equal(t, 0, ExitCode(results))
			if tt.max == 1 {
				assert.Equal(t, tableNames(12), s.tables)
			}
		})
	}
}

func TestCoordinatorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	core, logs := observer.New(zapcore.WarnLevel)
	s := &countingSyncer{}
	c := NewCoordinator(s, zap.New(core), nil)
	results := c.Run(ctx, []string{"a", "b"}, Options{Workers: 1})

	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Skipped)
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
	assert.Empty(t, s.tables)
	assert.Equal(t, 1, logs.FilterMessageSnippet("marking remaining tables as skipped").Len())
	assert.Equal(t, 1, ExitCode(results))
}

func TestExitCodeTreatsSkipsAsSuccess(t *testing.T) {
	results := map[string]Outcome{
		"a": {Table: "a", Strategy: StrategyCopy},
		"b": {Table: "b", Strategy: StrategySkip, Skipped: true, Reason: "already in sync"},
	}
	assert.Equal(t, 0, ExitCode(results))
	assert.Equal(t, 0, ExitCode(nil))
}

func TestLogSummary(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	LogSummary(zap.New(core), map[string]Outcome{
		"a": {Table: "a", Rows: 10},
		"b": {Table: "b", Skipped: true},
		"c": {Table: "c", Err: errors.New("boom")},
	})
	summary := logs.FilterMessage("Sync summary").All()
	require.Len(t, summary, 1)
	fields := summary[0].ContextMap()
	assert.EqualValues(t, 1, fields["synced"])
	assert.EqualValues(t, 1, fields["skipped"])
	assert.EqualValues(t, 1, fields["failed"])
	assert.EqualValues(t, 10, fields["rows"])
	assert.Equal(t, 1, logs.FilterMessage("Table failed").Len())
}
