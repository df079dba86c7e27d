package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash"
	"github.com/google/uuid"
)

// InsertIDMode selects how idempotency tokens are attached to rows that
// arrive without them.
type InsertIDMode string

const (
	// InsertIDsNone sends rows without tokens.
	InsertIDsNone InsertIDMode = "none"
	// InsertIDsRandom gives every row a fresh UUID. Retries within one
	// InsertAll call are deduplicated; separate calls are not.
	InsertIDsRandom InsertIDMode = "random"
	// InsertIDsContent derives the token from the row's JSON encoding, so
	// re-sending the same data is deduplicated across calls. Identical rows
	// in one input collapse into one.
	InsertIDsContent InsertIDMode = "content"
)

// ParseInsertIDMode accepts a mode name; the empty string means none.
func ParseInsertIDMode(s string) (InsertIDMode, error) {
	switch InsertIDMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", InsertIDsNone:
		return InsertIDsNone, nil
	case InsertIDsRandom:
		return InsertIDsRandom, nil
	case InsertIDsContent:
		return InsertIDsContent, nil
	}
	return "", &ConfigurationError{Op: "insert ids", Msg: fmt.Sprintf("unknown insert id mode %q", s)}
}

// AssignInsertIDs returns set with tokens generated by mode. Sets that
// already carry tokens are returned unchanged.
func AssignInsertIDs(set RowSet, mode InsertIDMode) (RowSet, error) {
	if set.HasInsertIDs() {
		return set, nil
	}

	switch mode {
	case InsertIDsRandom:
		set.InsertIDs = RandomInsertIDs(set.Len())
	case InsertIDsContent:
		ids, err := ContentInsertIDs(set.Rows)
		if err != nil {
			return set, err
		}
		set.InsertIDs = ids
	}
	return set, nil
}

// RandomInsertIDs returns n random UUID tokens.
func RandomInsertIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	return ids
}

// ContentInsertIDs returns one token per row derived from a 64-bit hash of
// the row's JSON encoding. Map keys are encoded in sorted order, so equal
// rows always hash alike.
func ContentInsertIDs(rows []Row) ([]string, error) {
	ids := make([]string, len(rows))
	for i, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return nil, &ConfigurationError{Op: "insert ids", Msg: fmt.Sprintf("row %d is not JSON encodable: %v", i, err)}
		}
		ids[i] = fmt.Sprintf("%016x", xxhash.Sum64(data))
	}
	return ids, nil
}
