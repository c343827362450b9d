package sync

import (
	"errors"
	"fmt"
)

// SchemaError means the table lacks structure a strategy depends on.
type SchemaError struct {
	Table  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error on %s: %s", e.Table, e.Reason)
}

// UsageError is raised for option combinations that cannot be honored.
type UsageError struct {
	Reason string
}

func (e *UsageError) Error() string { return "usage error: " + e.Reason }

// AdapterError wraps a failure of a DataSource call.
type AdapterError struct {
	Op    string
	Table string
	Err   error
}

func (e *AdapterError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// adapterErr wraps err unless it is nil or already typed.
func adapterErr(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var ae *AdapterError
	var se *SchemaError
	if errors.As(err, &ae) || errors.As(err, &se) {
		return err
	}
	return &AdapterError{Op: op, Table: table, Err: err}
}

// errorKind labels err for the errors_total metric.
func errorKind(err error) string {
	var se *SchemaError
	var ue *UsageError
	var ae *AdapterError
	switch {
	case errors.As(err, &ue):
		return "usage"
	case errors.As(err, &se):
		return "schema"
	case isConfigError(err):
		return "config"
	case errors.As(err, &ae):
		return "adapter"
	default:
		return "other"
	}
}
