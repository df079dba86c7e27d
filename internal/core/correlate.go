package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrErrorIndexOutOfRange is reported when the store names a row that is
// not part of the batch it was sent.
var ErrErrorIndexOutOfRange = errors.New("insert error row index out of range")

// rowFailure is a rejection translated to the round's row numbering.
type rowFailure struct {
	index   int
	message string
}

// correlate maps each batch's local rejections to global row indices
// (stride + local index). results must be aligned with batches. A row
// reported more than once is kept once with the messages joined.
func correlate(ref TableRef, batches []Batch, results [][]InsertError) ([]rowFailure, error) {
	var failures []rowFailure
	seen := make(map[int]int)

	for i, b := range batches {
		for _, e := range results[i] {
			if e.Index == nil {
				return nil, &ServiceError{Ref: ref, Stride: b.Stride, Message: e.Message, Err: ErrMissingErrorIndex}
			}
			local := *e.Index
			if local < 0 || local >= b.Len() {
				return nil, &ServiceError{
					Ref:     ref,
					Stride:  b.Stride,
					Message: fmt.Sprintf("index %d in batch of %d rows: %s", local, b.Len(), e.Message),
					Err:     ErrErrorIndexOutOfRange,
				}
			}

			global := b.Stride + local
			if pos, ok := seen[global]; ok {
				failures[pos].message = joinMessages(failures[pos].message, e.Message)
				continue
			}
			seen[global] = len(failures)
			failures = append(failures, rowFailure{index: global, message: e.Message})
		}
	}

	sort.Slice(failures, func(a, b int) bool { return failures[a].index < failures[b].index })
	return failures, nil
}

func joinMessages(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "" || strings.Contains(a, b):
		return a
	}
	return a + "; " + b
}

// round is the input of one insert attempt. origins[i] is the position of
// set.Rows[i] in the caller's original input.
type round struct {
	set     RowSet
	origins []int
}

func firstRound(set RowSet) round {
	origins := make([]int, set.Len())
	for i := range origins {
		origins[i] = i
	}
	return round{set: set, origins: origins}
}

// retry builds the next round from the failed rows of this one.
func (r round) retry(failures []rowFailure) round {
	next := round{
		set:     RowSet{Rows: make([]Row, 0, len(failures))},
		origins: make([]int, 0, len(failures)),
	}
	if r.set.HasInsertIDs() {
		next.set.InsertIDs = make([]string, 0, len(failures))
	}

	for _, f := range failures {
		next.set.Rows = append(next.set.Rows, r.set.Rows[f.index])
		next.origins = append(next.origins, r.origins[f.index])
		if r.set.HasInsertIDs() {
			next.set.InsertIDs = append(next.set.InsertIDs, r.set.InsertIDs[f.index])
		}
	}
	return next
}

// failedRows describes the failures in terms of the original input.
func (r round) failedRows(failures []rowFailure) []FailedRow {
	rows := make([]FailedRow, 0, len(failures))
	for _, f := range failures {
		fr := FailedRow{
			Position: r.origins[f.index],
			Row:      r.set.Rows[f.index],
			Message:  f.message,
		}
		if r.set.HasInsertIDs() {
			fr.InsertID = r.set.InsertIDs[f.index]
		}
		rows = append(rows, fr)
	}
	return rows
}

// pendingRows describes the rows of the given batches, which must have been
// planned from r, in terms of the original input.
func (r round) pendingRows(batches []Batch, pending map[int]bool) []FailedRow {
	var rows []FailedRow
	for idx, b := range batches {
		if !pending[idx] {
			continue
		}
		for j := range b.Rows {
			k := b.Stride + j
			fr := FailedRow{Position: r.origins[k], Row: r.set.Rows[k]}
			if r.set.HasInsertIDs() {
				fr.InsertID = r.set.InsertIDs[k]
			}
			rows = append(rows, fr)
		}
	}
	return rows
}
