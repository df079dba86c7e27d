package postgres

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/tableinsert/internal/core"
)

// InsertIDColumn holds the row's insert id. It is unique, so re-sent rows
// with the same id are skipped by ON CONFLICT DO NOTHING.
const InsertIDColumn = "_insert_id"

// tableIdent maps dataset to a PostgreSQL schema and table to a table.
// The project is not part of the name; one database is one project.
func tableIdent(ref core.TableRef) string {
	return pgx.Identifier{ref.Dataset, ref.Table}.Sanitize()
}

// columnType returns the PostgreSQL type for a field.
func columnType(f core.Field) (string, error) {
	var base string
	switch strings.ToUpper(string(f.Type)) {
	case "STRING":
		base = "text"
	case "BYTES":
		base = "bytea"
	case "INTEGER", "INT64":
		base = "bigint"
	case "FLOAT", "FLOAT64":
		base = "double precision"
	case "NUMERIC", "BIGNUMERIC":
		base = "numeric"
	case "BOOLEAN", "BOOL":
		base = "boolean"
	case "TIMESTAMP":
		base = "timestamptz"
	case "DATE":
		base = "date"
	case "TIME":
		base = "time"
	case "DATETIME":
		base = "timestamp"
	case "RECORD", "STRUCT", "JSON":
		// Nested and repeated records are stored as one jsonb value.
		return "jsonb", nil
	default:
		return "", fmt.Errorf("field %q: unsupported type %q", f.Name, f.Type)
	}

	if strings.EqualFold(string(f.Mode), string(core.ModeRepeated)) {
		return base + "[]", nil
	}
	return base, nil
}

// createTableSQL builds the CREATE TABLE statement for schema.
func createTableSQL(ref core.TableRef, schema *core.Schema) (string, error) {
	if schema == nil || len(schema.Fields) == 0 {
		return "", fmt.Errorf("create table %s: schema has no fields", ref)
	}

	cols := make([]string, 0, len(schema.Fields)+1)
	for _, f := range schema.Fields {
		if f.Name == InsertIDColumn {
			return "", fmt.Errorf("create table %s: field name %q is reserved", ref, InsertIDColumn)
		}
		typ, err := columnType(f)
		if err != nil {
			return "", fmt.Errorf("create table %s: %w", ref, err)
		}

		col := pgx.Identifier{f.Name}.Sanitize() + " " + typ
		if strings.EqualFold(string(f.Mode), string(core.ModeRequired)) {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	cols = append(cols, pgx.Identifier{InsertIDColumn}.Sanitize()+" text UNIQUE")

	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", tableIdent(ref), strings.Join(cols, ",\n\t")), nil
}

// insertRowSQL builds the single-row insert. The row arrives as a jsonb
// object whose keys are column names; missing keys become NULL.
func insertRowSQL(ref core.TableRef, withInsertIDs bool) string {
	ident := tableIdent(ref)
	stmt := fmt.Sprintf("INSERT INTO %s SELECT * FROM jsonb_populate_record(NULL::%s, $1::jsonb)", ident, ident)
	if withInsertIDs {
		stmt += " ON CONFLICT (" + pgx.Identifier{InsertIDColumn}.Sanitize() + ") DO NOTHING"
	}
	return stmt
}

// fieldFromColumn maps an information_schema column back to a field.
func fieldFromColumn(name, dataType, udtName string, nullable bool) core.Field {
	f := core.Field{Name: name, Mode: core.ModeNullable}
	if !nullable {
		f.Mode = core.ModeRequired
	}

	if dataType == "ARRAY" {
		f.Mode = core.ModeRepeated
		dataType = strings.TrimPrefix(udtName, "_")
	}

	switch dataType {
	case "text", "character varying", "character", "varchar", "bpchar", "uuid":
		f.Type = core.FieldString
	case "bytea":
		f.Type = core.FieldBytes
	case "bigint", "integer", "smallint", "int8", "int4", "int2":
		f.Type = core.FieldInteger
	case "double precision", "real", "float8", "float4":
		f.Type = core.FieldFloat
	case "numeric":
		f.Type = core.FieldNumeric
	case "boolean", "bool":
		f.Type = core.FieldBoolean
	case "timestamp with time zone", "timestamptz":
		f.Type = core.FieldTimestamp
	case "timestamp without time zone", "timestamp":
		f.Type = core.FieldDatetime
	case "date":
		f.Type = core.FieldDate
	case "time without time zone", "time":
		f.Type = core.FieldTime
	default:
		f.Type = core.FieldJSON
	}
	return f
}
