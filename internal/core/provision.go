package core

import (
	"context"
	"errors"

	"github.com/JonMunkholm/tableinsert/internal/logging"
)

// Provisioner prepares destination tables according to write and create
// dispositions. Its calls are sequential and never run on the worker pool.
type Provisioner struct {
	store Store
}

// NewProvisioner creates a Provisioner backed by store.
func NewProvisioner(store Store) *Provisioner {
	return &Provisioner{store: store}
}

// GetOrCreateTable returns the table at ref after making sure it satisfies
// the dispositions.
//
// WRITE_TRUNCATE re-creates a non-empty table, reusing its schema when none
// is given; with no schema from either source it fails before deleting.
// WRITE_EMPTY fails with *TableStateError on a non-empty table. A missing
// table is created only under CREATE_IF_NEEDED, and needs a schema. If
// another writer creates the table first, the returned table is nil with a
// nil error; callers that need metadata must fetch it again.
func (p *Provisioner) GetOrCreateTable(ctx context.Context, ref TableRef, write WriteDisposition, create CreateDisposition, schema *Schema) (*Table, error) {
	logger := logging.WithFields(ctx, "table", ref.String())

	table, err := p.store.GetTable(ctx, ref)
	if err != nil {
		if !errors.Is(err, ErrTableNotFound) || create != CreateIfNeeded {
			return nil, err
		}
		table = nil
	}

	if table != nil {
		if write == WriteAppend {
			return table, nil
		}

		empty, err := p.IsEmpty(ctx, ref)
		if err != nil {
			return nil, err
		}
		if empty {
			if write == WriteTruncate {
				logger.Info("empty table found, not removing")
			}
			return table, nil
		}
		if write == WriteEmpty {
			return nil, &TableStateError{Ref: ref, Disposition: write}
		}

		if schema == nil {
			schema = table.Schema
		}
		if schema == nil {
			return nil, &ConfigurationError{Op: "truncate table", Msg: "no schema given and " + ref.String() + " reports none to re-create it with"}
		}

		logger.Info("deleting table")
		if err := p.store.DeleteTable(ctx, ref); err != nil {
			return nil, err
		}
	}

	if schema == nil {
		return nil, &ConfigurationError{Op: "create table", Msg: "table schema required for new table " + ref.String()}
	}
	return p.TryCreateTable(ctx, ref, schema)
}

// IsEmpty reports whether the table has no rows.
func (p *Provisioner) IsEmpty(ctx context.Context, ref TableRef) (bool, error) {
	_, found, err := p.store.ListFirstRow(ctx, ref)
	if err != nil {
		return false, err
	}
	return !found, nil
}

// TryCreateTable creates the table. If a table with that name already
// exists it returns nil, nil; the existing table may have another schema.
func (p *Provisioner) TryCreateTable(ctx context.Context, ref TableRef, schema *Schema) (*Table, error) {
	logger := logging.WithFields(ctx, "table", ref.String())
	logger.Info("trying to create table")

	table, err := p.store.CreateTable(ctx, ref, schema)
	if err != nil {
		if errors.Is(err, ErrTableExists) {
			logger.Info("table already exists")
			return nil, nil
		}
		return nil, err
	}
	return table, nil
}
