package sync

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	gosync "sync"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/arwahdevops/tablesync/internal/query"
)

// fakeTable keys rows by an integer "id" column.
type fakeTable struct {
	columns []string
	pk      []string
	rows    map[int64]map[string]any
	seqs    map[string]string // column -> sequence
}

func newFakeTable(columns ...string) *fakeTable {
	return &fakeTable{
		columns: columns,
		pk:      []string{"id"},
		rows:    map[int64]map[string]any{},
		seqs:    map[string]string{},
	}
}

func (t *fakeTable) put(values ...any) *fakeTable {
	row := make(map[string]any, len(t.columns))
	for i, c := range t.columns {
		row[c] = values[i]
	}
	t.rows[row["id"].(int64)] = row
	return t
}

func (t *fakeTable) ids() []int64 {
	out := make([]int64, 0, len(t.rows))
	for id := range t.rows {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *fakeTable) clone() *fakeTable {
	c := newFakeTable(t.columns...)
	c.pk = t.pk
	return c
}

// fakeSource is an in-memory DataSource. With dialect "postgres" it also
// speaks a tab-separated COPY format.
type fakeSource struct {
	mu         gosync.Mutex
	label      string
	dialect    string
	tables     map[string]*fakeTable
	sequences  map[string]int64
	selections []query.Selection
	truncated  []string
	dropped    []string
	copyCalls  int
	upserts    int
	closed     int
	stagingSeq int
	failCount  error
}

func newFakeSource(label, dialect string) *fakeSource {
	return &fakeSource{
		label:     label,
		dialect:   dialect,
		tables:    map[string]*fakeTable{},
		sequences: map[string]int64{},
	}
}

func (f *fakeSource) add(name string, t *fakeTable) *fakeTable {
	f.tables[name] = t
	return t
}

func (f *fakeSource) table(name string) (*fakeTable, error) {
	t, ok := f.tables[name]
	if !ok {
		return nil, fmt.Errorf("relation %q does not exist", name)
	}
	return t, nil
}

func (f *fakeSource) Label() string   { return f.label }
func (f *fakeSource) Dialect() string { return f.dialect }

func (f *fakeSource) TableExists(_ context.Context, table string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tables[table]
	return ok, nil
}

func (f *fakeSource) Columns(_ context.Context, table string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(table)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), t.columns...), nil
}

func (f *fakeSource) Sequences(_ context.Context, table string, columns []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(table)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, c := range columns {
		if seq, ok := t.seqs[c]; ok {
			out = append(out, seq)
		}
	}
	return out, nil
}

func (f *fakeSource) PrimaryKey(_ context.Context, table string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(table)
	if err != nil {
		return nil, err
	}
	return t.pk, nil
}

func (f *fakeSource) MaxID(_ context.Context, table, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(table)
	if err != nil {
		return 0, err
	}
	ids := t.ids()
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[len(ids)-1], nil
}

func (f *fakeSource) MinID(_ context.Context, table, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(table)
	if err != nil {
		return 0, err
	}
	ids := t.ids()
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[0], nil
}

func epoch(v any) *apd.Decimal {
	switch ts := v.(type) {
	case time.Time:
		return apd.New(ts.UnixMicro(), -6)
	case string:
		parsed, err := time.Parse(timestampLayout, ts)
		if err != nil {
			panic(err)
		}
		return apd.New(parsed.UnixMicro(), -6)
	}
	return nil
}

func (f *fakeSource) MaxUpdatedAt(_ context.Context, table string) (*apd.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(table)
	if err != nil {
		return nil, err
	}
	var max *apd.Decimal
	for _, row := range t.rows {
		if e := epoch(row["updated_at"]); e != nil && (max == nil || e.Cmp(max) > 0) {
			max = e
		}
	}
	return max, nil
}

func (f *fakeSource) Count(_ context.Context, table string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCount != nil {
		return 0, f.failCount
	}
	t, err := f.table(table)
	if err != nil {
		return 0, err
	}
	return int64(len(t.rows)), nil
}

func (f *fakeSource) Truncate(_ context.Context, table string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(table)
	if err != nil {
		return err
	}
	t.rows = map[int64]map[string]any{}
	f.truncated = append(f.truncated, table)
	return nil
}

func (f *fakeSource) IsTimestampTracked(_ context.Context, table string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(table)
	if err != nil {
		return false, err
	}
	for _, c := range t.columns {
		if c == "updated_at" {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSource) LastSequenceValue(_ context.Context, seq string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.sequences[seq]
	if !ok {
		return 0, fmt.Errorf("sequence %q does not exist", seq)
	}
	return v, nil
}

func (f *fakeSource) SetSequenceValue(_ context.Context, seq string, value int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sequences[seq] = value
	return nil
}

// selected applies the window and change predicates. Filters and
// expressions are recorded but not evaluated.
func (f *fakeSource) selected(sel query.Selection) ([][]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selections = append(f.selections, sel)
	t, err := f.table(sel.Table)
	if err != nil {
		return nil, err
	}
	var out [][]any
	for _, id := range t.ids() {
		row := t.rows[id]
		if w := sel.Window; w != nil && (id < w.Start || id >= w.End) {
			continue
		}
		if s := sel.Since; s != nil {
			e := epoch(row["updated_at"])
			changed := e != nil && e.Cmp(s.UpdatedAt) >= 0
			if !changed && id < s.MaxID {
				continue
			}
		}
		vals := make([]any, len(sel.Columns))
		for i, c := range sel.Columns {
			vals[i] = row[c]
		}
		out = append(out, vals)
	}
	return out, nil
}

func (f *fakeSource) StreamRows(ctx context.Context, sel query.Selection, each func(row []any) error) error {
	rows, err := f.selected(sel)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := each(r); err != nil {
			return err
		}
	}
	return nil
}

// InsertRows applies nothing unless rows is closed, like a rolled back
// transaction.
func (f *fakeSource) InsertRows(ctx context.Context, table string, columns []string, rows <-chan []any) (int64, error) {
	var pending [][]any
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case row, ok := <-rows:
			if ok {
				pending = append(pending, row)
				continue
			}
			return f.insert(table, columns, pending)
		}
	}
}

func (f *fakeSource) insert(table string, columns []string, rows [][]any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(table)
	if err != nil {
		return 0, err
	}
	for _, r := range rows {
		row := map[string]any{}
		for i, c := range columns {
			row[c] = r[i]
		}
		id := row["id"].(int64)
		if _, dup := t.rows[id]; dup {
			return 0, fmt.Errorf("duplicate key value violates unique constraint (id=%d)", id)
		}
		t.rows[id] = row
	}
	return int64(len(rows)), nil
}

func (f *fakeSource) Upsert(_ context.Context, table, pk string, columns []string, values []any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(table)
	if err != nil {
		return err
	}
	row := map[string]any{}
	for i, c := range columns {
		row[c] = values[i]
	}
	t.rows[row[pk].(int64)] = row
	f.upserts++
	return nil
}

func (f *fakeSource) CreateStaging(_ context.Context, like string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(like)
	if err != nil {
		return "", err
	}
	f.stagingSeq++
	name := fmt.Sprintf("tablesync_staging_%d", f.stagingSeq)
	f.tables[name] = t.clone()
	return name, nil
}

func (f *fakeSource) DropStaging(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tables, name)
	f.dropped = append(f.dropped, name)
	return nil
}

func (f *fakeSource) MergeStaging(_ context.Context, table, staging, pk string, columns []string, preserve bool) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dst, err := f.table(table)
	if err != nil {
		return 0, err
	}
	stg, err := f.table(staging)
	if err != nil {
		return 0, err
	}
	var n int64
	for id, row := range stg.rows {
		if _, exists := dst.rows[id]; exists && preserve {
			continue
		}
		dst.rows[id] = row
		n++
	}
	return n, nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeSource) CopyOut(ctx context.Context, w io.Writer, sel query.Selection) (int64, error) {
	rows, err := f.selected(sel)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	f.copyCalls++
	f.mu.Unlock()
	for _, r := range rows {
		fields := make([]string, len(r))
		for i, v := range r {
			if v == nil {
				fields[i] = `\N`
			} else {
				fields[i] = fmt.Sprint(v)
			}
		}
		if _, err := io.WriteString(w, strings.Join(fields, "\t")+"\n"); err != nil {
			return 0, err
		}
	}
	return int64(len(rows)), nil
}

func (f *fakeSource) CopyIn(ctx context.Context, r io.Reader, table string, columns []string) (int64, error) {
	f.mu.Lock()
	f.copyCalls++
	f.mu.Unlock()
	var rows [][]any
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Split(sc.Text(), "\t")
		if len(fields) != len(columns) {
			return 0, errors.New("column count mismatch in COPY data")
		}
		row := make([]any, len(fields))
		for i, v := range fields {
			switch {
			case v == `\N`:
				row[i] = nil
			case columns[i] == "id":
				id, err := strconv.ParseInt(v, 10, 64)
				if err != nil {
					return 0, err
				}
				row[i] = id
			default:
				row[i] = v
			}
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return f.insert(table, columns, rows)
}

// pair returns an Opener handing out src and dst for every table.
func pair(src, dst *fakeSource) Opener {
	return func(context.Context, string) (DataSource, DataSource, error) {
		return src, dst, nil
	}
}
