// internal/apperr/apperr.go
//
// Uniform error value for the HTTP surface.
//
// Context
// -------
// Every failure that reaches a client is first converted into an
// ErrorValue: one human message, one HTTP-style status, and optionally
// a list of field-level sub-errors.  Handlers raise these (or any other
// error) up the call stack; normalize.go turns whatever arrives into
// exactly one ErrorValue before the envelope is written.
//
// The default messages and statuses live in one immutable table below,
// populated at init and never mutated afterward.
package apperr

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// FieldError is one field-scoped sub-error.  Location names where the
// offending value came from ("body", "query", "params").
type FieldError struct {
	Field    string `json:"field"`
	Message  string `json:"message"`
	Location string `json:"location,omitempty"`
}

// ErrorValue is the single client-visible failure shape.  Immutable
// once constructed.
type ErrorValue struct {
	Message   string
	Status    int
	Errors    []FieldError
	Timestamp time.Time
}

func (e *ErrorValue) Error() string { return e.Message }

// defaultMessages is the process-wide message table.  Loaded once,
// read-only afterward.
var defaultMessages = struct {
	internal  string
	notFound  string
	noRoute   string
	rateLimit string
	badInput  string
}{
	internal:  "Something went wrong.",
	notFound:  "Record not found.",
	noRoute:   "Resource not found.",
	rateLimit: "Too many requests, please try again later.",
	badInput:  "Invalid request data.",
}

// New builds an ErrorValue with the given message and status.  Out-of-
// range statuses collapse to 500 so a malformed failure can never smuggle
// an invalid wire status.
func New(message string, status int) *ErrorValue {
	if status < 100 || status > 599 {
		status = http.StatusInternalServerError
	}
	if message == "" {
		message = defaultMessages.internal
	}
	return &ErrorValue{
		Message:   message,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
}

// WithFields returns a copy of e carrying the given sub-errors.
func (e *ErrorValue) WithFields(fields []FieldError) *ErrorValue {
	out := *e
	out.Errors = fields
	return &out
}

// NotFound is the 404 raised when an identifier matches nothing.
func NotFound() *ErrorValue {
	return New(defaultMessages.notFound, http.StatusNotFound)
}

// Internal is the generic 500.
func Internal() *ErrorValue {
	return New(defaultMessages.internal, http.StatusInternalServerError)
}

// Duplicate converts a set of conflicting unique fields into the
// structured 400 clients see, one sub-error per field:
//
//	{"field": "display_name", "message": "Display Name already in use."}
func Duplicate(fields []string) *ErrorValue {
	sub := make([]FieldError, 0, len(fields))
	for _, f := range fields {
		sub = append(sub, FieldError{
			Field:    f,
			Message:  fmt.Sprintf("%s already in use.", TitleField(f)),
			Location: "body",
		})
	}
	return New(defaultMessages.badInput, http.StatusBadRequest).WithFields(sub)
}

// TitleField renders a snake_case field name as a spaced title:
// "display_name" → "Display Name".
func TitleField(name string) string {
	parts := strings.Split(name, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

//
// ── Failure signals ─────────────────────────────────────────────────────
//
// These error types are raised by collaborators (schema validation,
// request validation, the rate limiter, the router) and recognized by
// the normalizer.  They never reach a client directly.
//

// SchemaViolation carries per-field reasons from document schema
// validation.
type SchemaViolation struct {
	Fields map[string]string // field name → reason
}

func (e *SchemaViolation) Error() string { return "schema validation failed" }

// RequestDetail is one entry of a request-validation failure.
type RequestDetail struct {
	Location string // "body", "query", "params"
	Field    string
	Message  string
}

// RequestViolation carries the structured detail groups a request
// validator produces.  Status is optional; zero means 400.
type RequestViolation struct {
	Status  int
	Details []RequestDetail
}

func (e *RequestViolation) Error() string { return "request validation failed" }

// RateLimitSignal is raised by the rate-limiting middleware when a
// client exhausts its budget.  The counters are advisory and shown only
// in development responses.
type RateLimitSignal struct {
	Limit     int
	Current   int
	Remaining int
}

func (e *RateLimitSignal) Error() string { return defaultMessages.rateLimit }

// RouteNotFound is raised when no registered route matches the request.
type RouteNotFound struct {
	Path   string
	Method string
}

func (e *RouteNotFound) Error() string { return defaultMessages.noRoute }
