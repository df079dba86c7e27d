package core

import (
	"encoding/json"
	"fmt"
)

// DefaultMaxBatchBytes is the approximate amount of row data sent per insert call.
const DefaultMaxBatchBytes = 64 * 1024

// DefaultMaxRowsPerBatch is the maximum number of rows sent per insert call.
const DefaultMaxRowsPerBatch = 500

// PlanBatches splits set into contiguous batches bounded by maxBytes of
// estimated row data and maxRows rows. A batch is closed as soon as either
// limit is reached, so it can exceed maxBytes by at most its last row.
// Non-positive limits fall back to the defaults.
func PlanBatches(set RowSet, maxBytes, maxRows int) []Batch {
	if set.Len() == 0 {
		return nil
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBatchBytes
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRowsPerBatch
	}

	var batches []Batch
	stride := 0
	size := 0

	last := set.Len() - 1
	for i, row := range set.Rows {
		size += estimateRowSize(row)
		count := i - stride + 1

		if size >= maxBytes || count >= maxRows || i == last {
			b := Batch{
				Stride: stride,
				Rows:   set.Rows[stride : i+1 : i+1],
			}
			if set.HasInsertIDs() {
				b.InsertIDs = set.InsertIDs[stride : i+1 : i+1]
			}
			batches = append(batches, b)

			size = 0
			stride = i + 1
		}
	}
	return batches
}

// estimateRowSize approximates the serialized size of a row.
func estimateRowSize(row Row) int {
	data, err := json.Marshal(row)
	if err != nil {
		return len(fmt.Sprint(map[string]any(row)))
	}
	return len(data)
}
