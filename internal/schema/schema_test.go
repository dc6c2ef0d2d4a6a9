// internal/schema/schema_test.go

package schema

import (
	"errors"
	"testing"

	"github.com/yanizio/recordapi/internal/apperr"
	"github.com/yanizio/recordapi/internal/store"
)

var testSchema = New(
	FieldRule{Name: "name", Required: true, Tags: "min=2,max=80"},
	FieldRule{Name: "email", Tags: "email"},
	FieldRule{Name: "status", Tags: "oneof=active suspended"},
)

func violation(t *testing.T, err error) *apperr.SchemaViolation {
	t.Helper()
	var sv *apperr.SchemaViolation
	if !errors.As(err, &sv) {
		t.Fatalf("err = %v, want SchemaViolation", err)
	}
	return sv
}

func TestValidate_RequiredOnFullDocument(t *testing.T) {
	sv := violation(t, testSchema.Validate(store.Record{}, false))
	if sv.Fields["name"] != "Name is required." {
		t.Fatalf("reasons = %#v", sv.Fields)
	}
}

func TestValidate_PartialSkipsAbsentRequired(t *testing.T) {
	if err := testSchema.Validate(store.Record{"email": "a@b.co"}, true); err != nil {
		t.Fatalf("partial update should skip absent required fields: %v", err)
	}
}

// A field the payload carries is held to its rules even under partial
// validation: an update may omit a required field but never blank it.
func TestValidate_PartialRejectsExplicitlyEmptyRequired(t *testing.T) {
	sv := violation(t, testSchema.Validate(store.Record{"name": ""}, true))
	if sv.Fields["name"] != "Name is required." {
		t.Fatalf("reasons = %#v", sv.Fields)
	}

	sv = violation(t, testSchema.Validate(store.Record{"name": nil}, true))
	if sv.Fields["name"] != "Name is required." {
		t.Fatalf("reasons = %#v", sv.Fields)
	}

	// Empty non-required fields may be cleared freely.
	if err := testSchema.Validate(store.Record{"email": ""}, true); err != nil {
		t.Fatalf("clearing an optional field: %v", err)
	}
}

func TestValidate_TagRules(t *testing.T) {
	sv := violation(t, testSchema.Validate(store.Record{
		"name":   "Acme",
		"email":  "not-an-email",
		"status": "dormant",
	}, false))

	if sv.Fields["email"] != "Email must be a valid email address." {
		t.Fatalf("email reason = %q", sv.Fields["email"])
	}
	if sv.Fields["status"] != "Status must be one of: active, suspended." {
		t.Fatalf("status reason = %q", sv.Fields["status"])
	}
}

func TestClean_DropsUnknownAndStoreOwnedFields(t *testing.T) {
	doc := testSchema.Clean(store.Record{
		"name":       "Acme",
		"rogue":      "x",
		"id":         "forced",
		"created_at": "2001-01-01",
	})
	if len(doc) != 1 || doc["name"] != "Acme" {
		t.Fatalf("cleaned = %#v, want name only", doc)
	}
}
