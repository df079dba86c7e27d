package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tableinsert/internal/core"
)

// defaultProjectParam in a table path stands for the configured project.
const defaultProjectParam = "-"

// InsertRequest is the body of a row insert.
type InsertRequest struct {
	Rows []core.Row `json:"rows"`
	// InsertIDs, when present, must have one entry per row.
	InsertIDs []string `json:"insert_ids,omitempty"`
	// InsertIDMode generates ids for rows sent without them: none, random or content.
	InsertIDMode string `json:"insert_id_mode,omitempty"`
}

// InsertResponse reports a completed insert.
type InsertResponse struct {
	Table string `json:"table"`
	core.InsertSummary
}

// ProvisionRequest is the body of a table provisioning call.
type ProvisionRequest struct {
	WriteDisposition  string       `json:"write_disposition"`
	CreateDisposition string       `json:"create_disposition"`
	Schema            *core.Schema `json:"schema,omitempty"`
}

// ProvisionResponse carries the provisioned table. Table is nil when
// another writer created it concurrently; fetch it again if needed.
type ProvisionResponse struct {
	Table               *core.Table `json:"table"`
	CreatedConcurrently bool        `json:"created_concurrently,omitempty"`
}

// EmptyResponse reports whether a table has rows.
type EmptyResponse struct {
	Table string `json:"table"`
	Empty bool   `json:"empty"`
}

// HealthResponse reports the insert pool state.
type HealthResponse struct {
	Status string          `json:"status"`
	Pool   core.PoolStatus `json:"pool"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.rt.Pool.Status()
	resp := HealthResponse{Status: "ok", Pool: status}
	code := http.StatusOK
	if status.Closed {
		resp.Status = "draining"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	s.insert(w, r, s.tableRef(r))
}

func (s *Server) handleInsertDefault(w http.ResponseWriter, r *http.Request) {
	s.insert(w, r, core.TableRef{})
}

func (s *Server) insert(w http.ResponseWriter, r *http.Request, ref core.TableRef) {
	var req InsertRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	mode, err := core.ParseInsertIDMode(req.InsertIDMode)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	set, err := core.AssignInsertIDs(core.RowSet{Rows: req.Rows, InsertIDs: req.InsertIDs}, mode)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if ref.IsZero() {
		ref = s.rt.DefaultTable
	}
	summary, err := s.rt.Inserter.InsertAll(r.Context(), ref, set)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, InsertResponse{Table: ref.String(), InsertSummary: summary})
}

func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	var req ProvisionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	write, err := core.ParseWriteDisposition(req.WriteDisposition)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	create, err := core.ParseCreateDisposition(req.CreateDisposition)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	table, err := s.rt.Provisioner.GetOrCreateTable(r.Context(), s.tableRef(r), write, create, req.Schema)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ProvisionResponse{Table: table, CreatedConcurrently: table == nil})
}

func (s *Server) handleIsEmpty(w http.ResponseWriter, r *http.Request) {
	ref := s.tableRef(r)
	empty, err := s.rt.Provisioner.IsEmpty(r.Context(), ref)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EmptyResponse{Table: ref.String(), Empty: empty})
}

// tableRef reads the table from the URL path.
func (s *Server) tableRef(r *http.Request) core.TableRef {
	project := chi.URLParam(r, "project")
	if project == defaultProjectParam {
		project = s.rt.DefaultProject
	}
	return core.TableRef{
		Project: project,
		Dataset: chi.URLParam(r, "dataset"),
		Table:   chi.URLParam(r, "table"),
	}
}

// decodeJSON reads a single JSON object from the request body. Numbers are
// kept as json.Number so large integers reach the store unchanged.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &requestError{status: http.StatusRequestEntityTooLarge, err: fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)}
		}
		if errors.Is(err, io.EOF) {
			return &core.ConfigurationError{Op: "decode request", Msg: "empty request body"}
		}
		return &core.ConfigurationError{Op: "decode request", Msg: err.Error()}
	}
	if dec.More() {
		return &core.ConfigurationError{Op: "decode request", Msg: "body must contain a single JSON object"}
	}
	return nil
}
