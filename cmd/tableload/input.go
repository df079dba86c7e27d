package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/JonMunkholm/tableinsert/internal/core"
)

// readRows decodes a stream of JSON objects, one per row. Numbers stay
// json.Number so integers wider than 53 bits are not rounded.
func readRows(r io.Reader) ([]core.Row, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var rows []core.Row
	for {
		var row core.Row
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, &core.ConfigurationError{Op: "read rows", Msg: fmt.Sprintf("row %d: %v", len(rows), err)}
		}
		if row == nil {
			return nil, &core.ConfigurationError{Op: "read rows", Msg: fmt.Sprintf("row %d: null is not an object", len(rows))}
		}
		rows = append(rows, row)
	}
}

func readSchema(path string) (*core.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var schema core.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, &core.ConfigurationError{Op: "read schema", Msg: fmt.Sprintf("%s: %v", path, err)}
	}
	if len(schema.Fields) == 0 {
		return nil, &core.ConfigurationError{Op: "read schema", Msg: path + " declares no fields"}
	}
	return &schema, nil
}
