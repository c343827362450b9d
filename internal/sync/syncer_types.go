package sync

import (
	"errors"
	"time"

	"github.com/arwahdevops/tablesync/internal/rules"
)

// Outcome is the result of syncing one table.
type Outcome struct {
	Table     string
	DestTable string
	Strategy  Strategy
	Rows      int64 // rows written to the destination
	Windows   int
	Skipped   bool
	Reason    string
	Duration  time.Duration
	Err       error
}

// Failed reports whether the table ended in error. Skips are not failures.
func (o Outcome) Failed() bool { return o.Err != nil }

func (o Outcome) status() string {
	switch {
	case o.Failed():
		return "failed"
	case o.Skipped:
		return "skipped"
	default:
		return "synced"
	}
}

func isConfigError(err error) bool {
	var ce *rules.ConfigError
	return errors.As(err, &ce)
}
