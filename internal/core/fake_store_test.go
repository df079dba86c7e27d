package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// insertCall records one InsertRows call.
type insertCall struct {
	ref   TableRef
	batch Batch
}

// fakeStore is a scriptable Store. onInsert decides each call's outcome;
// by default every row is accepted.
type fakeStore struct {
	mu sync.Mutex

	onInsert func(call int, batch Batch) ([]InsertError, error)
	inserts  []insertCall

	tables   map[TableRef]*Table
	nonEmpty map[TableRef]bool

	getErr    error
	createErr error
	listErr   error

	gets, creates, deletes, lists int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tables:   make(map[TableRef]*Table),
		nonEmpty: make(map[TableRef]bool),
	}
}

func (f *fakeStore) InsertRows(ctx context.Context, ref TableRef, batch Batch) ([]InsertError, error) {
	f.mu.Lock()
	call := len(f.inserts)
	f.inserts = append(f.inserts, insertCall{ref: ref, batch: batch})
	fn := f.onInsert
	f.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(call, batch)
}

func (f *fakeStore) GetTable(ctx context.Context, ref TableRef) (*Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	t, ok := f.tables[ref]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", ref, ErrTableNotFound)
	}
	return t, nil
}

func (f *fakeStore) DeleteTable(ctx context.Context, ref TableRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if _, ok := f.tables[ref]; !ok {
		return fmt.Errorf("delete %s: %w", ref, ErrTableNotFound)
	}
	delete(f.tables, ref)
	delete(f.nonEmpty, ref)
	return nil
}

func (f *fakeStore) CreateTable(ctx context.Context, ref TableRef, schema *Schema) (*Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.tables[ref]; ok {
		return nil, fmt.Errorf("create %s: %w", ref, ErrTableExists)
	}
	t := &Table{Ref: ref, Schema: schema}
	f.tables[ref] = t
	return t, nil
}

func (f *fakeStore) ListFirstRow(ctx context.Context, ref TableRef) (Row, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, false, f.listErr
	}
	if f.nonEmpty[ref] {
		return Row{"x": 1}, true, nil
	}
	return nil, false, nil
}

// batches returns the batches sent so far, in call order.
func (f *fakeStore) batches() []Batch {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Batch, len(f.inserts))
	for i, c := range f.inserts {
		out[i] = c.batch
	}
	return out
}

func (f *fakeStore) insertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserts)
}

// rejectWhere rejects every row for which fail returns true.
func rejectWhere(fail func(Row) bool) func(int, Batch) ([]InsertError, error) {
	return func(_ int, b Batch) ([]InsertError, error) {
		var errs []InsertError
		for i, r := range b.Rows {
			if fail(r) {
				errs = append(errs, InsertError{Index: intPtr(i), Message: fmt.Sprintf("bad row %v", r["id"])})
			}
		}
		return errs, nil
	}
}

func intPtr(i int) *int { return &i }

// recordSleeps replaces real waits with a log of requested delays.
type recordSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

var testTable = TableRef{Project: "proj", Dataset: "ds", Table: "tbl"}

// newTestInserter returns an Inserter over store with instant backoff.
func newTestInserter(store Store, opts ...Option) (*Inserter, *recordSleeps) {
	pool := NewWorkerPool(8)
	ins := NewInserter(store, pool, opts...)
	sleeps := &recordSleeps{}
	ins.sleep = sleeps.sleep
	return ins, sleeps
}

func rowsWithIDs(n int) RowSet {
	set := RowSet{Rows: make([]Row, n), InsertIDs: make([]string, n)}
	for i := 0; i < n; i++ {
		set.Rows[i] = Row{"id": i}
		set.InsertIDs[i] = fmt.Sprintf("id-%d", i)
	}
	return set
}
