package sync

import "time"

// Options are the per-run switches that shape how each table is copied.
type Options struct {
	BatchSize int
	// SQL is a filter clause appended after FROM, e.g. "WHERE id < 1000".
	// It is operator input and is used verbatim.
	SQL            string
	Truncate       bool
	Preserve       bool
	Overwrite      bool
	IgnoreSameSize bool
	InBatches      bool
	NoRules        bool
	Sleep          time.Duration

	Workers    int
	Sequential bool
}

// concurrency returns the number of tables processed at once.
func (o Options) concurrency() int {
	if o.Sequential || o.InBatches || o.Workers < 1 {
		return 1
	}
	return o.Workers
}
