// Package core provides the batched table insert logic.
//
// # Error Codes Reference
//
// This file maps errors to short messages with codes for support reference.
// Typed errors are matched first with errors.As/errors.Is; anything else
// falls back to case-insensitive pattern matching on the error text.
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Invalid request: Rows, insert ids, schema or dispositions are inconsistent
//	         Action: Fix the request; it was rejected before contacting the store
//
// # Transport Errors (TRN001-TRN099)
//
//	TRN001 - Store unavailable: A call to the table store did not complete
//	         Action: Check store connectivity and try again
//	         Patterns: "connection refused", "connection reset", "no such host"
//
// # Insert Errors (INS001-INS099)
//
//	INS001 - Rows rejected: Some rows were still rejected after every retry
//	         Action: Review the listed rows and their messages
//
//	INS002 - Bad store response: The store reported a failure it did not attribute to a row
//	         Action: Retry; report the error if it persists
//
//	INS003 - Interrupted: The insert was cancelled before all rows were confirmed
//	         Action: Retry with insert ids so repeated rows are deduplicated
//	         Patterns: "context canceled", "context deadline exceeded"
//
// # Table Errors (TBL001-TBL099)
//
//	TBL001 - Table not empty: The table has rows but WRITE_EMPTY was requested
//	         Action: Use WRITE_TRUNCATE or WRITE_APPEND, or pick another table
//
//	TBL002 - Table not found: The table does not exist
//	         Action: Create it first or use CREATE_IF_NEEDED
//
//	TBL003 - Table exists: The table already exists
//	         Action: Fetch the existing table instead of creating it
//
// # Pool Errors (POOL001-POOL099)
//
//	POOL001 - Shutting down: The service is draining and accepts no new work
//	          Action: Retry against another instance or after restart
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Check the service logs for the technical error
package core

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgConfiguration = UserMessage{
		Message: "The request is invalid",
		Action:  "Fix the request; it was rejected before contacting the store",
		Code:    "CFG001",
	}
	msgTransport = UserMessage{
		Message: "A call to the table store did not complete",
		Action:  "Check store connectivity and try again",
		Code:    "TRN001",
	}
	msgRowsRejected = UserMessage{
		Message: "Some rows were rejected after every retry",
		Action:  "Review the listed rows and their messages",
		Code:    "INS001",
	}
	msgBadResponse = UserMessage{
		Message: "The store reported a failure it did not attribute to a row",
		Action:  "Retry; report the error if it persists",
		Code:    "INS002",
	}
	msgInterrupted = UserMessage{
		Message: "The insert was cancelled before all rows were confirmed",
		Action:  "Retry with insert ids so repeated rows are deduplicated",
		Code:    "INS003",
	}
	msgTableNotEmpty = UserMessage{
		Message: "The table has rows but WRITE_EMPTY was requested",
		Action:  "Use WRITE_TRUNCATE or WRITE_APPEND, or pick another table",
		Code:    "TBL001",
	}
	msgTableNotFound = UserMessage{
		Message: "The table does not exist",
		Action:  "Create it first or use CREATE_IF_NEEDED",
		Code:    "TBL002",
	}
	msgTableExists = UserMessage{
		Message: "The table already exists",
		Action:  "Fetch the existing table instead of creating it",
		Code:    "TBL003",
	}
	msgPoolClosed = UserMessage{
		Message: "The service is shutting down",
		Action:  "Retry against another instance or after restart",
		Code:    "POOL001",
	}
)

// defaultMessage is returned when no specific mapping matches.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the service logs for the technical error",
	Code:    "ERR000",
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is consulted after the typed checks. First match wins.
var errorPatterns = []errorPattern{
	{pattern: "connection refused", msg: msgTransport},
	{pattern: "connection reset", msg: msgTransport},
	{pattern: "no such host", msg: msgTransport},
	{pattern: "context canceled", msg: msgInterrupted},
	{pattern: "context deadline exceeded", msg: msgInterrupted},
	{pattern: "not found", msg: msgTableNotFound},
	{pattern: "already exists", msg: msgTableExists},
}

// MapError converts an error to a user-facing message with a support code.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var (
		cfgErr    *ConfigurationError
		stateErr  *TableStateError
		failedErr *InsertFailedError
		svcErr    *ServiceError
		intErr    *InterruptedError
		transErr  *TransportError
	)

	// Order matters: a TransportError may wrap ErrTableNotFound.
	switch {
	case errors.As(err, &cfgErr):
		return msgConfiguration
	case errors.As(err, &stateErr):
		return msgTableNotEmpty
	case errors.As(err, &failedErr):
		return msgRowsRejected
	case errors.As(err, &svcErr):
		return msgBadResponse
	case errors.As(err, &intErr):
		return msgInterrupted
	case errors.Is(err, ErrPoolClosed):
		return msgPoolClosed
	case errors.Is(err, ErrTableNotFound):
		return msgTableNotFound
	case errors.Is(err, ErrTableExists):
		return msgTableExists
	case errors.As(err, &transErr):
		return msgTransport
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with its user-facing message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError wraps err with its mapped message. It returns nil for nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
