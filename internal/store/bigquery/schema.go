package bigquery

import (
	"strconv"

	bq "google.golang.org/api/bigquery/v2"

	"github.com/JonMunkholm/tableinsert/internal/core"
)

func toTableSchema(s *core.Schema) *bq.TableSchema {
	if s == nil {
		return nil
	}
	return &bq.TableSchema{Fields: toFieldSchemas(s.Fields)}
}

func toFieldSchemas(fields []core.Field) []*bq.TableFieldSchema {
	if len(fields) == 0 {
		return nil
	}
	out := make([]*bq.TableFieldSchema, len(fields))
	for i, f := range fields {
		out[i] = &bq.TableFieldSchema{
			Name:   f.Name,
			Type:   string(f.Type),
			Mode:   string(f.Mode),
			Fields: toFieldSchemas(f.Fields),
		}
	}
	return out
}

func fromTableSchema(s *bq.TableSchema) *core.Schema {
	if s == nil {
		return nil
	}
	return &core.Schema{Fields: fromFieldSchemas(s.Fields)}
}

func fromFieldSchemas(fields []*bq.TableFieldSchema) []core.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]core.Field, 0, len(fields))
	for _, f := range fields {
		if f == nil {
			continue
		}
		mode := core.FieldMode(f.Mode)
		if mode == "" {
			mode = core.ModeNullable
		}
		out = append(out, core.Field{
			Name:   f.Name,
			Type:   core.FieldType(f.Type),
			Mode:   mode,
			Fields: fromFieldSchemas(f.Fields),
		})
	}
	return out
}

// decodeRow names a tabledata row's cells by position. Cells past the end
// of the schema are keyed f0, f1 and so on.
func decodeRow(fields []core.Field, cells []*bq.TableCell) core.Row {
	row := make(core.Row, len(cells))
	for i, c := range cells {
		var v any
		if c != nil {
			v = c.V
		}
		if i < len(fields) {
			row[fields[i].Name] = decodeValue(fields[i], v)
			continue
		}
		row["f"+strconv.Itoa(i)] = v
	}
	return row
}

// decodeValue unwraps the {"f": [...]} and [{"v": ...}] envelopes the
// API uses for records and repeated fields.
func decodeValue(f core.Field, v any) any {
	if f.Mode == core.ModeRepeated {
		items, ok := v.([]any)
		if !ok {
			return v
		}
		elem := f
		elem.Mode = core.ModeNullable
		out := make([]any, len(items))
		for i, item := range items {
			if m, ok := item.(map[string]any); ok {
				item = m["v"]
			}
			out[i] = decodeValue(elem, item)
		}
		return out
	}

	if f.Type == core.FieldRecord || f.Type == "STRUCT" {
		m, ok := v.(map[string]any)
		if !ok {
			return v
		}
		raw, _ := m["f"].([]any)
		cells := make([]*bq.TableCell, len(raw))
		for i, r := range raw {
			cell := &bq.TableCell{}
			if cm, ok := r.(map[string]any); ok {
				cell.V = cm["v"]
			}
			cells[i] = cell
		}
		return map[string]any(decodeRow(f.Fields, cells))
	}
	return v
}
