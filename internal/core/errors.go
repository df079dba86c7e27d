package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Stores wrap ErrTableNotFound and ErrTableExists with %w so
// the provisioner can tell them apart from other failures.
var (
	ErrTableNotFound     = errors.New("table not found")
	ErrTableExists       = errors.New("table already exists")
	ErrMissingErrorIndex = errors.New("insert error without row index")
	ErrPoolClosed        = errors.New("worker pool closed")
)

// ConfigurationError reports a caller mistake detected before any remote call.
type ConfigurationError struct {
	Op  string
	Msg string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: invalid configuration: %s", e.Op, e.Msg)
}

// TransportError wraps a store call that failed to complete at all, as
// opposed to completing with per-row rejections.
type TransportError struct {
	Op  string
	Ref TableRef
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Ref, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// TableStateError reports a table whose contents conflict with the
// requested write disposition.
type TableStateError struct {
	Ref         TableRef
	Disposition WriteDisposition
}

func (e *TableStateError) Error() string {
	return fmt.Sprintf("table %s is not empty but write disposition is %s", e.Ref, e.Disposition)
}

// InterruptedError reports a cancelled wait. Rows lists every row whose
// outcome was unknown when the wait ended; calls already sent may still land.
type InterruptedError struct {
	Ref   TableRef
	Phase string
	Rows  []FailedRow
	Err   error
}

func (e *InterruptedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "interrupted while %s for %s with %d rows outstanding", e.Phase, e.Ref, len(e.Rows))
	if len(e.Rows) > 0 {
		b.WriteString(" (positions")
		for i, r := range e.Rows {
			if i == maxNamedRows {
				fmt.Fprintf(&b, " and %d more", len(e.Rows)-i)
				break
			}
			fmt.Fprintf(&b, " %d", r.Position)
		}
		b.WriteString(")")
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *InterruptedError) Unwrap() error {
	return e.Err
}

// maxNamedRows caps the positions spelled out in an interruption message.
const maxNamedRows = 20

// FailedRow is a row that never made it into the table.
// Position is the row's index in the caller's original input.
type FailedRow struct {
	Position int
	InsertID string
	Row      Row
	Message  string
}

// InsertFailedError is returned when rows were still rejected after the
// last allowed attempt.
type InsertFailedError struct {
	Ref      TableRef
	Attempts int
	Rows     []FailedRow
}

func (e *InsertFailedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "insert into %s failed after %d attempts: %d rows rejected", e.Ref, e.Attempts, len(e.Rows))
	for _, r := range e.Rows {
		b.WriteString("\n  - row ")
		fmt.Fprintf(&b, "%d", r.Position)
		if r.InsertID != "" {
			fmt.Fprintf(&b, " (insert id %s)", r.InsertID)
		}
		b.WriteString(": ")
		b.WriteString(r.Message)
	}
	return b.String()
}

// ServiceError reports a store response that could not be interpreted.
type ServiceError struct {
	Ref     TableRef
	Stride  int
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("insert into %s: batch at row %d: %v: %s", e.Ref, e.Stride, e.Err, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}
