// Package query renders the SELECT statements that feed a transfer.
package query

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/arwahdevops/tablesync/internal/utils"
)

// Window restricts rows to PK in [Start, End).
type Window struct {
	PK    string
	Start int64
	End   int64
}

// Since restricts rows to those changed at or after a destination watermark:
// updated_at epoch >= UpdatedAt OR pk >= MaxID.
type Since struct {
	PK        string
	MaxID     int64
	UpdatedAt *apd.Decimal
}

// Selection describes the rows one transfer reads from the source.
type Selection struct {
	Table   string
	Columns []string // output names, one per expression
	Exprs   []string
	// Filter is appended verbatim after the FROM clause, e.g. "WHERE id < 1000".
	// It comes from the operator and is trusted as-is.
	Filter string
	Window *Window
	Since  *Since
}

// Render builds the SELECT for dialect.
func (s Selection) Render(dialect string) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, e := range s.Exprs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e)
		b.WriteString(" AS ")
		b.WriteString(utils.QuoteIdentifier(s.Columns[i], dialect))
	}
	b.WriteString(" FROM ")
	b.WriteString(utils.QuoteQualified(s.Table, dialect))

	filter := strings.TrimSpace(s.Filter)
	if filter != "" {
		b.WriteString(" ")
		b.WriteString(filter)
	}
	if cond := s.Condition(dialect); cond != "" {
		if filter != "" {
			b.WriteString(" AND ")
		} else {
			b.WriteString(" WHERE ")
		}
		b.WriteString(cond)
	}
	return b.String()
}

// Condition renders the window or change predicate, without WHERE/AND.
func (s Selection) Condition(dialect string) string {
	switch {
	case s.Window != nil:
		pk := utils.QuoteIdentifier(s.Window.PK, dialect)
		return fmt.Sprintf("%s >= %d AND %s < %d", pk, s.Window.Start, pk, s.Window.End)
	case s.Since != nil:
		pk := utils.QuoteIdentifier(s.Since.PK, dialect)
		ts := "0"
		if s.Since.UpdatedAt != nil {
			ts = s.Since.UpdatedAt.Text('f')
		}
		return fmt.Sprintf("(%s >= %s OR %s >= %d)", EpochExpr("updated_at", dialect), ts, pk, s.Since.MaxID)
	}
	return ""
}

// EpochExpr converts a timestamp column to fractional epoch seconds.
func EpochExpr(column, dialect string) string {
	col := utils.QuoteIdentifier(column, dialect)
	switch strings.ToLower(dialect) {
	case "mysql":
		return fmt.Sprintf("UNIX_TIMESTAMP(%s)", col)
	case "sqlite":
		return fmt.Sprintf("((julianday(%s) - 2440587.5) * 86400.0)", col)
	default:
		return fmt.Sprintf("extract(epoch from %s)", col)
	}
}
