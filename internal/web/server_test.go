package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/tableinsert/internal/application"
	"github.com/JonMunkholm/tableinsert/internal/config"
	"github.com/JonMunkholm/tableinsert/internal/core"
	"github.com/JonMunkholm/tableinsert/internal/store/memory"
)

var eventsRef = core.TableRef{Project: "proj", Dataset: "ds", Table: "events"}

func testServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{
			RequestTimeout: 5 * time.Second,
			MaxBodyBytes:   1024,
		},
		Store:    config.StoreConfig{Backend: config.BackendMemory},
		BigQuery: config.BigQueryConfig{Project: "proj"},
		Insert: config.InsertConfig{
			MaxBatchBytes:     4096,
			MaxRowsPerBatch:   10,
			MaxAttempts:       2,
			InitialBackoff:    time.Millisecond,
			BackoffMultiplier: 1,
			Workers:           4,
			DefaultTable:      "ds.events",
			DrainTimeout:      time.Second,
		},
	}

	store := memory.New()
	rt, err := application.NewWithStore(cfg, store)
	if err != nil {
		t.Fatalf("NewWithStore() error = %v", err)
	}
	t.Cleanup(func() { rt.Shutdown(context.Background()) })
	return NewServer(rt, cfg), store
}

func createEvents(t *testing.T, store *memory.Store) {
	t.Helper()
	schema := &core.Schema{Fields: []core.Field{
		{Name: "name", Type: core.FieldString, Mode: core.ModeRequired},
		{Name: "n", Type: core.FieldInteger},
	}}
	if _, err := store.CreateTable(context.Background(), eventsRef, schema); err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t)

	rec := do(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decode[HealthResponse](t, rec)
	if resp.Status != "ok" || resp.Pool.Size != 4 {
		t.Errorf("health = %+v", resp)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

func TestHealth_Draining(t *testing.T) {
	s, _ := testServer(t)
	if err := s.rt.Pool.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	rec := do(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestInsert(t *testing.T) {
	s, store := testServer(t)
	createEvents(t, store)

	rec := do(t, s, http.MethodPost, "/api/tables/proj/ds/events/rows",
		`{"rows":[{"name":"a","n":1},{"name":"b","n":12345678901234567}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	resp := decode[InsertResponse](t, rec)
	if resp.Rows != 2 || resp.Attempts != 1 || resp.Table != "proj:ds.events" {
		t.Errorf("response = %+v", resp)
	}

	rows, _ := store.Rows(eventsRef)
	if len(rows) != 2 {
		t.Fatalf("stored %d rows, want 2", len(rows))
	}
	if got := rows[1]["n"]; got != json.Number("12345678901234567") {
		t.Errorf("n = %#v, want exact json.Number", got)
	}
}

func TestInsert_DefaultTableAndProject(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"default table", "/api/rows"},
		{"default project", "/api/tables/-/ds/events/rows"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store := testServer(t)
			createEvents(t, store)

			rec := do(t, s, http.MethodPost, tt.path, `{"rows":[{"name":"a"}]}`)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
			}
			if rows, _ := store.Rows(eventsRef); len(rows) != 1 {
				t.Errorf("stored %d rows, want 1", len(rows))
			}
		})
	}
}

func TestInsert_ContentIDsDeduplicate(t *testing.T) {
	s, store := testServer(t)
	createEvents(t, store)

	body := `{"rows":[{"name":"a"}],"insert_id_mode":"content"}`
	for i := 0; i < 2; i++ {
		if rec := do(t, s, http.MethodPost, "/api/rows", body); rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
		}
	}
	if rows, _ := store.Rows(eventsRef); len(rows) != 1 {
		t.Errorf("stored %d rows, want 1 after resend", len(rows))
	}
}

func TestInsert_RowsRejected(t *testing.T) {
	s, store := testServer(t)
	createEvents(t, store)

	rec := do(t, s, http.MethodPost, "/api/rows",
		`{"rows":[{"name":"a"},{"n":2},{"name":"c"}],"insert_ids":["i0","i1","i2"]}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	resp := decode[ErrorResponse](t, rec)
	if resp.Code != "INS001" || resp.Attempts != 2 {
		t.Errorf("response = %+v", resp)
	}
	if len(resp.FailedRows) != 1 {
		t.Fatalf("failed rows = %+v, want one", resp.FailedRows)
	}
	fr := resp.FailedRows[0]
	if fr.Position != 1 || fr.InsertID != "i1" || !strings.Contains(fr.Message, "name") {
		t.Errorf("failed row = %+v", fr)
	}

	if rows, _ := store.Rows(eventsRef); len(rows) != 2 {
		t.Errorf("stored %d rows, want the 2 valid ones", len(rows))
	}
}

func TestInsert_Errors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"missing table", "/api/tables/proj/ds/nope/rows", `{"rows":[{"name":"a"}]}`, http.StatusNotFound, "TBL002"},
		{"bad json", "/api/rows", `{"rows":`, http.StatusBadRequest, "CFG001"},
		{"empty body", "/api/rows", ``, http.StatusBadRequest, "CFG001"},
		{"unknown field", "/api/rows", `{"rowz":[]}`, http.StatusBadRequest, "CFG001"},
		{"id count mismatch", "/api/rows", `{"rows":[{"name":"a"}],"insert_ids":[]}`, http.StatusBadRequest, "CFG001"},
		{"bad id mode", "/api/rows", `{"rows":[{"name":"a"}],"insert_id_mode":"sometimes"}`, http.StatusBadRequest, "CFG001"},
		{"body too large", "/api/rows", `{"rows":[{"name":"` + strings.Repeat("x", 2048) + `"}]}`, http.StatusRequestEntityTooLarge, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store := testServer(t)
			createEvents(t, store)

			rec := do(t, s, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d; body = %s", rec.Code, tt.status, rec.Body)
			}
			resp := decode[ErrorResponse](t, rec)
			if tt.code != "" && resp.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Code, tt.code)
			}
			if resp.Message == "" {
				t.Error("message is empty")
			}
		})
	}
}

func TestProvision(t *testing.T) {
	s, store := testServer(t)

	body := `{"create_disposition":"CREATE_IF_NEEDED","schema":{"fields":[{"name":"name","type":"STRING","mode":"REQUIRED"}]}}`
	rec := do(t, s, http.MethodPut, "/api/tables/proj/ds/events", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	resp := decode[ProvisionResponse](t, rec)
	if resp.Table == nil || resp.Table.Ref != eventsRef || resp.CreatedConcurrently {
		t.Errorf("response = %+v", resp)
	}
	if got := store.Tables(); len(got) != 1 {
		t.Errorf("tables = %v, want one", got)
	}

	// Existing table is returned as-is under WRITE_APPEND.
	rec = do(t, s, http.MethodPut, "/api/tables/proj/ds/events", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("append status = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestProvision_Errors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"write empty on rows", "/api/tables/proj/ds/events", `{"write_disposition":"WRITE_EMPTY"}`, http.StatusConflict, "TBL001"},
		{"create never", "/api/tables/proj/ds/other", `{"create_disposition":"CREATE_NEVER"}`, http.StatusNotFound, "TBL002"},
		{"no schema", "/api/tables/proj/ds/other", `{}`, http.StatusBadRequest, "CFG001"},
		{"bad disposition", "/api/tables/proj/ds/events", `{"write_disposition":"WRITE_SOMETIMES"}`, http.StatusBadRequest, "CFG001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store := testServer(t)
			createEvents(t, store)
			if rec := do(t, s, http.MethodPost, "/api/rows", `{"rows":[{"name":"a"}]}`); rec.Code != http.StatusOK {
				t.Fatalf("seed status = %d", rec.Code)
			}

			rec := do(t, s, http.MethodPut, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d; body = %s", rec.Code, tt.status, rec.Body)
			}
			if resp := decode[ErrorResponse](t, rec); resp.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Code, tt.code)
			}
		})
	}
}

func TestProvision_TruncateRecreates(t *testing.T) {
	s, store := testServer(t)
	createEvents(t, store)
	do(t, s, http.MethodPost, "/api/rows", `{"rows":[{"name":"a"}]}`)

	rec := do(t, s, http.MethodPut, "/api/tables/proj/ds/events", `{"write_disposition":"WRITE_TRUNCATE"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if rows, _ := store.Rows(eventsRef); len(rows) != 0 {
		t.Errorf("stored %d rows after truncate, want 0", len(rows))
	}
}

func TestIsEmpty(t *testing.T) {
	s, store := testServer(t)
	createEvents(t, store)

	rec := do(t, s, http.MethodGet, "/api/tables/proj/ds/events/empty", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if resp := decode[EmptyResponse](t, rec); !resp.Empty {
		t.Errorf("new table reported non-empty")
	}

	do(t, s, http.MethodPost, "/api/rows", `{"rows":[{"name":"a"}]}`)
	rec = do(t, s, http.MethodGet, "/api/tables/-/ds/events/empty", "")
	if resp := decode[EmptyResponse](t, rec); resp.Empty {
		t.Errorf("table with a row reported empty")
	}

	rec = do(t, s, http.MethodGet, "/api/tables/proj/ds/nope/empty", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing table status = %d, want 404", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"configuration", &core.ConfigurationError{Op: "x", Msg: "y"}, http.StatusBadRequest},
		{"table state", &core.TableStateError{Ref: eventsRef, Disposition: core.WriteEmpty}, http.StatusConflict},
		{"insert failed", &core.InsertFailedError{Ref: eventsRef}, http.StatusUnprocessableEntity},
		{"pool closed", core.ErrPoolClosed, http.StatusServiceUnavailable},
		{"not found", core.ErrTableNotFound, http.StatusNotFound},
		{"service", &core.ServiceError{Message: "bad"}, http.StatusBadGateway},
		{"transport", &core.TransportError{Op: "insert", Err: context.DeadlineExceeded}, http.StatusBadGateway},
		{"request", &requestError{status: http.StatusTeapot, err: core.ErrTableNotFound}, http.StatusTeapot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRespondError_InterruptedNamesRows(t *testing.T) {
	s, _ := testServer(t)

	err := &core.InterruptedError{
		Ref:   eventsRef,
		Phase: "waiting for batches",
		Rows:  []core.FailedRow{{Position: 3, InsertID: "i3", Row: core.Row{"name": "d"}}},
		Err:   context.Canceled,
	}
	rec := httptest.NewRecorder()
	s.respondError(rec, httptest.NewRequest(http.MethodPost, "/api/rows", nil), err)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	resp := decode[ErrorResponse](t, rec)
	if resp.Code != "INS003" {
		t.Errorf("code = %q, want INS003", resp.Code)
	}
	if len(resp.FailedRows) != 1 || resp.FailedRows[0].Position != 3 || resp.FailedRows[0].InsertID != "i3" {
		t.Errorf("failed rows = %+v, want position 3 with id i3", resp.FailedRows)
	}
}
