package core

import (
	"fmt"
	"strings"
)

// Row is a single record keyed by field name. Values must be JSON-compatible.
type Row map[string]any

// RowSet is an ordered set of rows with optional per-row insert ids.
// When InsertIDs is non-nil it must have exactly one entry per row.
type RowSet struct {
	Rows      []Row
	InsertIDs []string
}

// Len returns the number of rows in the set.
func (s RowSet) Len() int {
	return len(s.Rows)
}

// HasInsertIDs reports whether the set carries idempotency tokens.
func (s RowSet) HasInsertIDs() bool {
	return s.InsertIDs != nil
}

// Validate checks the row/token invariant.
func (s RowSet) Validate() error {
	if s.InsertIDs != nil && len(s.InsertIDs) != len(s.Rows) {
		return &ConfigurationError{
			Op:  "insert",
			Msg: fmt.Sprintf("insert ids must match rows one to one: got %d ids for %d rows", len(s.InsertIDs), len(s.Rows)),
		}
	}
	return nil
}

// Batch is a contiguous slice of a round's RowSet sent in one insert call.
// Stride is the index of the batch's first row within that round's RowSet.
type Batch struct {
	Stride    int
	Rows      []Row
	InsertIDs []string
}

// Len returns the number of rows in the batch.
func (b Batch) Len() int {
	return len(b.Rows)
}

// InsertError is a per-row rejection reported by the store for one batch.
// Index is local to the batch; nil means the store did not say which row failed.
type InsertError struct {
	Index   *int
	Message string
}

// TableRef identifies a destination table.
type TableRef struct {
	Project string `json:"project"`
	Dataset string `json:"dataset"`
	Table   string `json:"table"`
}

// IsZero reports whether no part of the reference is set.
func (r TableRef) IsZero() bool {
	return r.Project == "" && r.Dataset == "" && r.Table == ""
}

// String renders the reference as project:dataset.table.
func (r TableRef) String() string {
	if r.Project == "" {
		return r.Dataset + "." + r.Table
	}
	return r.Project + ":" + r.Dataset + "." + r.Table
}

// ParseTableRef parses "project:dataset.table". When the project part is
// omitted, defaultProject is used.
func ParseTableRef(spec, defaultProject string) (TableRef, error) {
	ref := TableRef{Project: defaultProject}

	rest := spec
	if i := strings.Index(spec, ":"); i >= 0 {
		ref.Project = spec[:i]
		rest = spec[i+1:]
	}

	dataset, table, ok := strings.Cut(rest, ".")
	if !ok || dataset == "" || table == "" || strings.Contains(table, ".") {
		return TableRef{}, &ConfigurationError{
			Op:  "parse table",
			Msg: fmt.Sprintf("table spec %q must have the form [project:]dataset.table", spec),
		}
	}
	ref.Dataset = dataset
	ref.Table = table
	return ref, nil
}

// WriteDisposition controls what happens to existing table contents.
type WriteDisposition string

const (
	WriteAppend   WriteDisposition = "WRITE_APPEND"
	WriteTruncate WriteDisposition = "WRITE_TRUNCATE"
	WriteEmpty    WriteDisposition = "WRITE_EMPTY"
)

// CreateDisposition controls whether a missing table may be created.
type CreateDisposition string

const (
	CreateIfNeeded CreateDisposition = "CREATE_IF_NEEDED"
	CreateNever    CreateDisposition = "CREATE_NEVER"
)

// ParseWriteDisposition accepts the disposition name, case-insensitively.
// The empty string means WRITE_APPEND.
func ParseWriteDisposition(s string) (WriteDisposition, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(WriteAppend), "APPEND":
		return WriteAppend, nil
	case string(WriteTruncate), "TRUNCATE":
		return WriteTruncate, nil
	case string(WriteEmpty), "EMPTY":
		return WriteEmpty, nil
	}
	return "", &ConfigurationError{Op: "parse disposition", Msg: fmt.Sprintf("unknown write disposition %q", s)}
}

// ParseCreateDisposition accepts the disposition name, case-insensitively.
// The empty string means CREATE_IF_NEEDED.
func ParseCreateDisposition(s string) (CreateDisposition, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(CreateIfNeeded), "IF_NEEDED":
		return CreateIfNeeded, nil
	case string(CreateNever), "NEVER", "NEVER_CREATE":
		return CreateNever, nil
	}
	return "", &ConfigurationError{Op: "parse disposition", Msg: fmt.Sprintf("unknown create disposition %q", s)}
}

// FieldType is the declared type of a schema field.
type FieldType string

const (
	FieldString    FieldType = "STRING"
	FieldBytes     FieldType = "BYTES"
	FieldInteger   FieldType = "INTEGER"
	FieldFloat     FieldType = "FLOAT"
	FieldNumeric   FieldType = "NUMERIC"
	FieldBoolean   FieldType = "BOOLEAN"
	FieldTimestamp FieldType = "TIMESTAMP"
	FieldDate      FieldType = "DATE"
	FieldTime      FieldType = "TIME"
	FieldDatetime  FieldType = "DATETIME"
	FieldRecord    FieldType = "RECORD"
	FieldJSON      FieldType = "JSON"
)

// FieldMode is the nullability of a schema field.
type FieldMode string

const (
	ModeNullable FieldMode = "NULLABLE"
	ModeRequired FieldMode = "REQUIRED"
	ModeRepeated FieldMode = "REPEATED"
)

// Field describes one column. Fields is only set for RECORD columns.
type Field struct {
	Name   string    `json:"name"`
	Type   FieldType `json:"type"`
	Mode   FieldMode `json:"mode,omitempty"`
	Fields []Field   `json:"fields,omitempty"`
}

// Schema is the ordered column list of a table.
type Schema struct {
	Fields []Field `json:"fields"`
}

// Table is the store's view of an existing table.
type Table struct {
	Ref    TableRef `json:"ref"`
	Schema *Schema  `json:"schema,omitempty"`
}
