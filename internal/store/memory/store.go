// Package memory implements core.Store in process memory.
//
// Tables are validated against their schema on insert: a row missing a
// REQUIRED field, or carrying a field the schema does not declare, is
// rejected with its batch index like a remote store would. Rows whose
// insert id was already stored are accepted and dropped.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/tableinsert/internal/core"
)

// Rejector returns a non-empty message to reject a row.
type Rejector func(ref core.TableRef, row core.Row) string

// Option configures a Store.
type Option func(*Store)

// WithRejector adds a rejection rule checked after schema validation.
func WithRejector(fn Rejector) Option {
	return func(s *Store) { s.reject = fn }
}

type table struct {
	schema *core.Schema
	rows   []core.Row
	ids    map[string]struct{}
}

// Store is a concurrency-safe in-memory core.Store.
type Store struct {
	mu     sync.RWMutex
	tables map[core.TableRef]*table
	reject Rejector
}

var _ core.Store = (*Store)(nil)

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{tables: make(map[core.TableRef]*table)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InsertRows appends the batch's accepted rows.
func (s *Store) InsertRows(ctx context.Context, ref core.TableRef, batch core.Batch) ([]core.InsertError, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[ref]
	if !ok {
		return nil, fmt.Errorf("insert into %s: %w", ref, core.ErrTableNotFound)
	}

	var rejected []core.InsertError
	for i, row := range batch.Rows {
		msg := validateRow(t.schema, row)
		if msg == "" && s.reject != nil {
			msg = s.reject(ref, row)
		}
		if msg != "" {
			idx := i
			rejected = append(rejected, core.InsertError{Index: &idx, Message: msg})
			continue
		}

		if batch.InsertIDs != nil {
			id := batch.InsertIDs[i]
			if _, dup := t.ids[id]; dup {
				continue
			}
			t.ids[id] = struct{}{}
		}
		t.rows = append(t.rows, cloneRow(row))
	}
	return rejected, nil
}

// GetTable returns the table's schema.
func (s *Store) GetTable(ctx context.Context, ref core.TableRef) (*core.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[ref]
	if !ok {
		return nil, fmt.Errorf("get table %s: %w", ref, core.ErrTableNotFound)
	}
	return &core.Table{Ref: ref, Schema: t.schema}, nil
}

// DeleteTable removes the table and its rows.
func (s *Store) DeleteTable(ctx context.Context, ref core.TableRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[ref]; !ok {
		return fmt.Errorf("delete table %s: %w", ref, core.ErrTableNotFound)
	}
	delete(s.tables, ref)
	return nil
}

// CreateTable adds an empty table.
func (s *Store) CreateTable(ctx context.Context, ref core.TableRef, schema *core.Schema) (*core.Table, error) {
	if schema == nil || len(schema.Fields) == 0 {
		return nil, fmt.Errorf("create table %s: schema has no fields", ref)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[ref]; ok {
		return nil, fmt.Errorf("create table %s: %w", ref, core.ErrTableExists)
	}
	s.tables[ref] = &table{schema: schema, ids: make(map[string]struct{})}
	return &core.Table{Ref: ref, Schema: schema}, nil
}

// ListFirstRow returns the oldest stored row.
func (s *Store) ListFirstRow(ctx context.Context, ref core.TableRef) (core.Row, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[ref]
	if !ok {
		return nil, false, fmt.Errorf("list rows of %s: %w", ref, core.ErrTableNotFound)
	}
	if len(t.rows) == 0 {
		return nil, false, nil
	}
	return cloneRow(t.rows[0]), true, nil
}

// Rows returns a copy of every stored row in insertion order.
func (s *Store) Rows(ref core.TableRef) ([]core.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[ref]
	if !ok {
		return nil, fmt.Errorf("rows of %s: %w", ref, core.ErrTableNotFound)
	}
	out := make([]core.Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = cloneRow(r)
	}
	return out, nil
}

// Tables lists the stored table references in string order.
func (s *Store) Tables() []core.TableRef {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make([]core.TableRef, 0, len(s.tables))
	for ref := range s.tables {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].String() < refs[j].String() })
	return refs
}

func validateRow(schema *core.Schema, row core.Row) string {
	if schema == nil {
		return ""
	}
	declared := make(map[string]struct{}, len(schema.Fields))
	for _, f := range schema.Fields {
		declared[f.Name] = struct{}{}
		if f.Mode != core.ModeRequired {
			continue
		}
		if v, ok := row[f.Name]; !ok || v == nil {
			return fmt.Sprintf("missing required field %q", f.Name)
		}
	}
	for name := range row {
		if _, ok := declared[name]; !ok {
			return fmt.Sprintf("no such field: %s", name)
		}
	}
	return ""
}

func cloneRow(r core.Row) core.Row {
	out := make(core.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
