// internal/apperr/normalize_test.go
//
// Unit-tests for error classification and redaction.

package apperr

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

var devNorm = &Normalizer{Mode: ModeDevelopment}
var prodNorm = &Normalizer{Mode: ModeProduction}

func TestNormalize_SchemaViolation(t *testing.T) {
	err := &SchemaViolation{Fields: map[string]string{
		"name":  "Name is required.",
		"email": "Email must be a valid email address.",
	}}

	ev, _ := prodNorm.Normalize(err, RequestContext{})

	if ev.Status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", ev.Status)
	}
	if len(ev.Errors) != 2 {
		t.Fatalf("errors = %#v, want two entries", ev.Errors)
	}
	// Entries are sorted by field for stable responses.
	if ev.Errors[0].Field != "email" || ev.Errors[1].Field != "name" {
		t.Fatalf("field order = %q, %q", ev.Errors[0].Field, ev.Errors[1].Field)
	}
}

func TestNormalize_RequestViolation_StripsPunctuation(t *testing.T) {
	err := &RequestViolation{
		Status: http.StatusUnprocessableEntity,
		Details: []RequestDetail{
			{Location: "query", Field: "perPage", Message: `"perPage" must be a number.`},
		},
	}

	ev, _ := prodNorm.Normalize(err, RequestContext{})

	if ev.Status != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 from the failure", ev.Status)
	}
	if got := ev.Errors[0].Message; got != "perPage must be a number" {
		t.Fatalf("message = %q, want quotes and trailing period stripped", got)
	}
}

func TestNormalize_ErrorValuePassesThrough(t *testing.T) {
	in := NotFound()
	ev, _ := prodNorm.Normalize(in, RequestContext{})
	if ev != in {
		t.Fatalf("ErrorValue should pass through unchanged")
	}
}

func TestNormalize_GenericWrap(t *testing.T) {
	ev, _ := devNorm.Normalize(errors.New("disk on fire"), RequestContext{})
	if ev.Status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", ev.Status)
	}
	if ev.Message != "disk on fire" {
		t.Fatalf("development keeps the failure's own message, got %q", ev.Message)
	}
}

func TestNormalize_RateLimitSignal(t *testing.T) {
	ev, diag := devNorm.Normalize(&RateLimitSignal{Limit: 50, Current: 50, Remaining: 0}, RequestContext{})
	if ev.Status != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", ev.Status)
	}
	if diag == nil || diag.Extra["limit"] != "50" {
		t.Fatalf("development diagnostics should carry counters, got %#v", diag)
	}
}

func TestNormalize_RouteNotFound(t *testing.T) {
	ev, diag := devNorm.Normalize(&RouteNotFound{Path: "/nope", Method: "GET"},
		RequestContext{Path: "/nope", Method: "GET"})
	if ev.Status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", ev.Status)
	}
	if diag.Path != "/nope" || diag.Method != "GET" {
		t.Fatalf("diagnostics = %#v", diag)
	}
}

func TestNormalize_ProductionRedaction(t *testing.T) {
	leaky := New("password column missing", http.StatusInternalServerError).
		WithFields([]FieldError{{Field: "password", Message: "boom"}})

	ev, diag := prodNorm.Normalize(leaky, RequestContext{Path: "/company", Method: "POST"})

	if diag != nil {
		t.Fatalf("production must never emit diagnostics, got %#v", diag)
	}
	if ev.Message == "password column missing" {
		t.Fatalf("5xx message must be redacted in production")
	}
	if len(ev.Errors) != 0 {
		t.Fatalf("5xx field errors must be dropped in production, got %#v", ev.Errors)
	}
}

func TestNormalize_ProductionKeepsClientErrors(t *testing.T) {
	ev, _ := prodNorm.Normalize(Duplicate([]string{"slug"}), RequestContext{})
	if ev.Status != http.StatusBadRequest || len(ev.Errors) != 1 {
		t.Fatalf("4xx detail should survive production, got %#v", ev)
	}
}

func TestDuplicate_MessageShape(t *testing.T) {
	ev := Duplicate([]string{"display_name", "slug"})
	if len(ev.Errors) != 2 {
		t.Fatalf("errors = %#v", ev.Errors)
	}
	if ev.Errors[0].Message != "Display Name already in use." {
		t.Fatalf("message = %q", ev.Errors[0].Message)
	}
	for _, fe := range ev.Errors {
		if !strings.HasSuffix(fe.Message, "already in use.") {
			t.Fatalf("message %q should end in the fixed suffix", fe.Message)
		}
	}
}

func TestNew_StatusOutOfRangeCollapses(t *testing.T) {
	if ev := New("x", 9000); ev.Status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", ev.Status)
	}
}
