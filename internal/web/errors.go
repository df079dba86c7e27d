package web

// errors.go provides unified error response handling for the web layer.
//
// It ensures all errors are:
//   - Logged with full technical details for debugging (server-side)
//   - Returned to clients as user-friendly messages with action suggestions
//   - Given a status code that matches the error's kind
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. Error is mapped via core.MapError to get user-friendly message
//  4. Technical error + context is logged with request ID for correlation
//  5. User message is written as JSON, with the rejected rows for failed inserts

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/tableinsert/internal/core"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error      string          `json:"error"`
	Message    string          `json:"message"`
	Action     string          `json:"action,omitempty"`
	Code       string          `json:"code"`
	Attempts   int             `json:"attempts,omitempty"`
	FailedRows []FailedRowJSON `json:"failed_rows,omitempty"`
}

// FailedRowJSON is a row that was still rejected after the last attempt, or
// one whose outcome was unknown when the insert was interrupted.
type FailedRowJSON struct {
	Position int      `json:"position"`
	InsertID string   `json:"insert_id,omitempty"`
	Message  string   `json:"message"`
	Row      core.Row `json:"row"`
}

// requestError is an HTTP-level failure with a fixed status.
type requestError struct {
	status int
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

// statusFor picks the response status for err.
func statusFor(err error) int {
	var (
		reqErr    *requestError
		cfgErr    *core.ConfigurationError
		stateErr  *core.TableStateError
		failedErr *core.InsertFailedError
		intErr    *core.InterruptedError
		svcErr    *core.ServiceError
		transErr  *core.TransportError
	)

	switch {
	case errors.As(err, &reqErr):
		return reqErr.status
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case errors.As(err, &stateErr):
		return http.StatusConflict
	case errors.As(err, &failedErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrPoolClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &intErr):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrTableNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTableExists):
		return http.StatusConflict
	case errors.As(err, &svcErr), errors.As(err, &transErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError handles error responses with user-friendly messages.
// It logs the technical error server-side and returns a JSON body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := statusFor(err)
	userMsg := core.MapError(err)

	// Get request ID for correlation
	requestID := middleware.GetReqID(r.Context())

	// Log the technical error with context
	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", requestID,
	)

	resp := ErrorResponse{
		Error:   err.Error(),
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	}
	if statusCode >= http.StatusInternalServerError {
		// Hide internals from clients
		resp.Error = userMsg.Message
	}

	var (
		failed      *core.InsertFailedError
		interrupted *core.InterruptedError
	)
	switch {
	case errors.As(err, &failed):
		resp.Error = "insert into " + failed.Ref.String() + " failed"
		resp.Attempts = failed.Attempts
		resp.FailedRows = failedRowsJSON(failed.Rows)
	case errors.As(err, &interrupted):
		// Rows whose outcome is unknown; some may have been written.
		resp.FailedRows = failedRowsJSON(interrupted.Rows)
	}

	writeJSON(w, statusCode, resp)
}

func failedRowsJSON(rows []core.FailedRow) []FailedRowJSON {
	out := make([]FailedRowJSON, len(rows))
	for i, fr := range rows {
		out[i] = FailedRowJSON{
			Position: fr.Position,
			InsertID: fr.InsertID,
			Message:  fr.Message,
			Row:      fr.Row,
		}
	}
	return out
}
