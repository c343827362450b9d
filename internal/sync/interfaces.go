package sync

import (
	"context"
	"io"

	"github.com/cockroachdb/apd/v3"

	"github.com/arwahdevops/tablesync/internal/query"
)

// DataSource is one side of a transfer, bound to a single database session.
// Table names may be schema-qualified ("schema.table").
type DataSource interface {
	Label() string
	Dialect() string

	TableExists(ctx context.Context, table string) (bool, error)
	Columns(ctx context.Context, table string) ([]string, error)
	// Sequences returns the sequences owned by any of columns.
	Sequences(ctx context.Context, table string, columns []string) ([]string, error)
	PrimaryKey(ctx context.Context, table string) ([]string, error)
	MaxID(ctx context.Context, table, pk string) (int64, error)
	MinID(ctx context.Context, table, pk string) (int64, error)
	// MaxUpdatedAt returns nil when the table has no rows.
	MaxUpdatedAt(ctx context.Context, table string) (*apd.Decimal, error)
	Count(ctx context.Context, table string) (int64, error)
	Truncate(ctx context.Context, table string) error
	IsTimestampTracked(ctx context.Context, table string) (bool, error)
	LastSequenceValue(ctx context.Context, seq string) (int64, error)
	SetSequenceValue(ctx context.Context, seq string, value int64) error

	StreamRows(ctx context.Context, sel query.Selection, each func(row []any) error) error
	InsertRows(ctx context.Context, table string, columns []string, rows <-chan []any) (int64, error)
	Upsert(ctx context.Context, table, pk string, columns []string, values []any) error

	CreateStaging(ctx context.Context, like string) (string, error)
	DropStaging(ctx context.Context, name string) error
	MergeStaging(ctx context.Context, table, staging, pk string, columns []string, preserve bool) (int64, error)

	// Close releases the session. It may be called more than once.
	Close() error
}

// CopyStreamer is implemented by sources that can move rows in the
// PostgreSQL COPY text format without decoding them.
type CopyStreamer interface {
	CopyOut(ctx context.Context, w io.Writer, sel query.Selection) (int64, error)
	CopyIn(ctx context.Context, r io.Reader, table string, columns []string) (int64, error)
}

// Opener opens a dedicated source and destination session for one table.
// On error, anything already opened must be closed by the Opener.
type Opener func(ctx context.Context, table string) (src, dst DataSource, err error)

// copyPair returns both sides as CopyStreamers when COPY passthrough applies.
func copyPair(src, dst DataSource) (CopyStreamer, CopyStreamer, bool) {
	if src.Dialect() != "postgres" || dst.Dialect() != "postgres" {
		return nil, nil, false
	}
	out, ok1 := src.(CopyStreamer)
	in, ok2 := dst.(CopyStreamer)
	return out, in, ok1 && ok2
}
