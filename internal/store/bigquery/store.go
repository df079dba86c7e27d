// Package bigquery implements core.Store on the BigQuery REST API.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	bq "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/JonMunkholm/tableinsert/internal/core"
)

// Options configures the API client.
type Options struct {
	// Endpoint overrides the API base path, e.g. for an emulator.
	Endpoint string

	// CredentialsFile is a service account key. When empty, application
	// default credentials are used, unless Endpoint is set.
	CredentialsFile string

	// HTTPClient replaces the authenticated transport.
	HTTPClient *http.Client
}

// NewService builds a BigQuery API client from opts.
func NewService(ctx context.Context, opts Options) (*bq.Service, error) {
	var clientOpts []option.ClientOption
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	switch {
	case opts.HTTPClient != nil:
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	case opts.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	case opts.Endpoint != "":
		clientOpts = append(clientOpts, option.WithoutAuthentication())
	}

	svc, err := bq.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery service: %w", err)
	}
	return svc, nil
}

// Store is a core.Store backed by the BigQuery v2 API.
type Store struct {
	svc *bq.Service
}

var _ core.Store = (*Store)(nil)

// New returns a Store using svc.
func New(svc *bq.Service) *Store {
	return &Store{svc: svc}
}

// InsertRows streams the batch with tabledata.insertAll.
func (s *Store) InsertRows(ctx context.Context, ref core.TableRef, batch core.Batch) ([]core.InsertError, error) {
	req := &bq.TableDataInsertAllRequest{
		Rows: make([]*bq.TableDataInsertAllRequestRows, len(batch.Rows)),
	}
	for i, row := range batch.Rows {
		r := &bq.TableDataInsertAllRequestRows{Json: make(map[string]bq.JsonValue, len(row))}
		for k, v := range row {
			r.Json[k] = v
		}
		if batch.InsertIDs != nil {
			r.InsertId = batch.InsertIDs[i]
		}
		req.Rows[i] = r
	}

	resp, err := s.svc.Tabledata.InsertAll(ref.Project, ref.Dataset, ref.Table, req).Context(ctx).Do()
	if err != nil {
		return nil, wrapErr("insert into", ref, err)
	}

	if len(resp.InsertErrors) == 0 {
		return nil, nil
	}
	out := make([]core.InsertError, 0, len(resp.InsertErrors))
	for _, ie := range resp.InsertErrors {
		idx := int(ie.Index)
		out = append(out, core.InsertError{Index: &idx, Message: errorMessage(ie.Errors)})
	}
	return out, nil
}

// GetTable fetches table metadata.
func (s *Store) GetTable(ctx context.Context, ref core.TableRef) (*core.Table, error) {
	t, err := s.svc.Tables.Get(ref.Project, ref.Dataset, ref.Table).Context(ctx).Do()
	if err != nil {
		return nil, wrapErr("get table", ref, err)
	}
	return &core.Table{Ref: ref, Schema: fromTableSchema(t.Schema)}, nil
}

// DeleteTable deletes the table.
func (s *Store) DeleteTable(ctx context.Context, ref core.TableRef) error {
	if err := s.svc.Tables.Delete(ref.Project, ref.Dataset, ref.Table).Context(ctx).Do(); err != nil {
		return wrapErr("delete table", ref, err)
	}
	return nil
}

// CreateTable inserts a new table with schema.
func (s *Store) CreateTable(ctx context.Context, ref core.TableRef, schema *core.Schema) (*core.Table, error) {
	t := &bq.Table{
		TableReference: &bq.TableReference{
			ProjectId: ref.Project,
			DatasetId: ref.Dataset,
			TableId:   ref.Table,
		},
		Schema: toTableSchema(schema),
	}

	created, err := s.svc.Tables.Insert(ref.Project, ref.Dataset, t).Context(ctx).Do()
	if err != nil {
		return nil, wrapErr("create table", ref, err)
	}
	return &core.Table{Ref: ref, Schema: fromTableSchema(created.Schema)}, nil
}

// ListFirstRow lists at most one row. Cells are named from the table
// schema, which is only fetched when a row exists.
func (s *Store) ListFirstRow(ctx context.Context, ref core.TableRef) (core.Row, bool, error) {
	list, err := s.svc.Tabledata.List(ref.Project, ref.Dataset, ref.Table).MaxResults(1).Context(ctx).Do()
	if err != nil {
		return nil, false, wrapErr("list rows of", ref, err)
	}
	if len(list.Rows) == 0 {
		return nil, false, nil
	}

	table, err := s.GetTable(ctx, ref)
	if err != nil {
		return nil, false, err
	}
	var fields []core.Field
	if table.Schema != nil {
		fields = table.Schema.Fields
	}
	return decodeRow(fields, list.Rows[0].F), true, nil
}

func errorMessage(errs []*bq.ErrorProto) string {
	if len(errs) == 0 {
		return "row rejected"
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		switch {
		case e.Reason != "" && e.Message != "":
			parts = append(parts, e.Reason+": "+e.Message)
		case e.Message != "":
			parts = append(parts, e.Message)
		default:
			parts = append(parts, e.Reason)
		}
	}
	return strings.Join(parts, "; ")
}

// wrapErr adds the operation and table to err and maps 404 and 409
// responses to the core sentinels.
func wrapErr(op string, ref core.TableRef, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%s %s: %w: %w", op, ref, core.ErrTableNotFound, err)
		case http.StatusConflict:
			return fmt.Errorf("%s %s: %w: %w", op, ref, core.ErrTableExists, err)
		}
	}
	return fmt.Errorf("%s %s: %w", op, ref, err)
}
