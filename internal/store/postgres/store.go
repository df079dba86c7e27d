// Package postgres implements core.Store on PostgreSQL.
//
// A TableRef's dataset is a PostgreSQL schema and its table is a table in
// that schema. Rows are inserted as jsonb objects, one savepoint per row,
// so a rejected row is rolled back alone and reported by its batch index
// while the rest of the batch commits.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/tableinsert/internal/core"
)

// PostgreSQL error codes the store distinguishes.
const (
	codeUndefinedTable  = "42P01"
	codeInvalidSchema   = "3F000"
	codeUndefinedObject = "42704"
	codeDuplicateTable  = "42P07"
	codeDuplicateSchema = "42P06"
	codeUniqueViolation = "23505"
)

// Store is a core.Store backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ core.Store = (*Store)(nil)

// New returns a Store using pool. The pool is owned by the caller.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InsertRows inserts the batch in one transaction. Rows the database
// rejects are rolled back to their savepoint and returned as insert
// errors; connection and server failures fail the whole call.
func (s *Store) InsertRows(ctx context.Context, ref core.TableRef, batch core.Batch) ([]core.InsertError, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := insertRowSQL(ref, batch.InsertIDs != nil)
	var rejected []core.InsertError

	for i, row := range batch.Rows {
		payload := make(map[string]any, len(row)+1)
		for k, v := range row {
			payload[k] = v
		}
		if batch.InsertIDs != nil {
			payload[InsertIDColumn] = batch.InsertIDs[i]
		}

		data, err := json.Marshal(payload)
		if err != nil {
			rejected = append(rejected, rowError(i, fmt.Sprintf("encode row: %v", err)))
			continue
		}

		savepointName := fmt.Sprintf("sp_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+savepointName); err != nil {
			return nil, fmt.Errorf("create savepoint: %w", err)
		}

		if _, err := tx.Exec(ctx, stmt, data); err != nil {
			if !isRowError(err) {
				return nil, wrapErr("insert into", ref, err)
			}
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepointName); rbErr != nil {
				return nil, fmt.Errorf("rollback savepoint: %w", rbErr)
			}
			rejected = append(rejected, rowError(i, err.Error()))
			continue
		}

		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
			return nil, fmt.Errorf("release savepoint: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return rejected, nil
}

// GetTable reads the table's columns from information_schema.
func (s *Store) GetTable(ctx context.Context, ref core.TableRef) (*core.Table, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT column_name, data_type, udt_name, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`,
		ref.Dataset, ref.Table,
	)
	if err != nil {
		return nil, wrapErr("get table", ref, err)
	}
	defer rows.Close()

	schema := &core.Schema{}
	found := false
	for rows.Next() {
		var name, dataType, udtName string
		var nullable bool
		if err := rows.Scan(&name, &dataType, &udtName, &nullable); err != nil {
			return nil, fmt.Errorf("get table %s: scan column: %w", ref, err)
		}
		found = true
		if name == InsertIDColumn {
			continue
		}
		schema.Fields = append(schema.Fields, fieldFromColumn(name, dataType, udtName, nullable))
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("get table", ref, err)
	}

	if !found {
		return nil, fmt.Errorf("get table %s: %w", ref, core.ErrTableNotFound)
	}
	return &core.Table{Ref: ref, Schema: schema}, nil
}

// DeleteTable drops the table.
func (s *Store) DeleteTable(ctx context.Context, ref core.TableRef) error {
	if _, err := s.pool.Exec(ctx, "DROP TABLE "+tableIdent(ref)); err != nil {
		return wrapErr("delete table", ref, err)
	}
	return nil
}

// CreateTable creates the dataset schema if needed and then the table.
func (s *Store) CreateTable(ctx context.Context, ref core.TableRef, schema *core.Schema) (*core.Table, error) {
	stmt, err := createTableSQL(ref, schema)
	if err != nil {
		return nil, err
	}

	if _, err := s.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{ref.Dataset}.Sanitize()); err != nil {
		// A concurrent CREATE SCHEMA IF NOT EXISTS can still collide.
		if !hasCode(err, codeDuplicateSchema, codeUniqueViolation) {
			return nil, wrapErr("create schema for", ref, err)
		}
	}

	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return nil, wrapErr("create table", ref, err)
	}
	return &core.Table{Ref: ref, Schema: schema}, nil
}

// ListFirstRow returns any one row of the table, without its insert id.
func (s *Store) ListFirstRow(ctx context.Context, ref core.TableRef) (core.Row, bool, error) {
	query := fmt.Sprintf("SELECT to_jsonb(t) - '%s' FROM %s AS t LIMIT 1", InsertIDColumn, tableIdent(ref))

	var row map[string]any
	if err := s.pool.QueryRow(ctx, query).Scan(&row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, wrapErr("list rows of", ref, err)
	}
	return core.Row(row), true, nil
}

func rowError(i int, msg string) core.InsertError {
	idx := i
	return core.InsertError{Index: &idx, Message: msg}
}

// isRowError reports whether err was caused by the row's data rather than
// by the connection, the server, or the table itself.
func isRowError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeUndefinedTable, codeInvalidSchema, codeUndefinedObject:
		return false
	}
	switch pgErr.Code[:2] {
	case "08", // connection exception
		"53", // insufficient resources
		"57", // operator intervention
		"58", // system error
		"XX": // internal error
		return false
	}
	return true
}

func hasCode(err error, codes ...string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	for _, c := range codes {
		if pgErr.Code == c {
			return true
		}
	}
	return false
}

// wrapErr adds the operation and table to err and marks missing and
// duplicate tables with the core sentinels.
func wrapErr(op string, ref core.TableRef, err error) error {
	switch {
	case hasCode(err, codeUndefinedTable, codeInvalidSchema, codeUndefinedObject):
		return fmt.Errorf("%s %s: %w: %w", op, ref, core.ErrTableNotFound, err)
	case hasCode(err, codeDuplicateTable):
		return fmt.Errorf("%s %s: %w: %w", op, ref, core.ErrTableExists, err)
	}
	return fmt.Errorf("%s %s: %w", op, ref, err)
}
