// internal/schema/schema.go
//
// Per-collection document validation.
//
// Context
// -------
// Collections are schemaless at the store level, but each registered
// record type declares rules for the fields it cares about.  Rules are
// expressed as go-playground/validator tag strings and evaluated per
// field with Var(), which keeps the rule set data-driven instead of
// requiring a struct per collection.
//
// A failure is reported as *apperr.SchemaViolation, the field→reason
// mapping the normalizer classifies first.  Unknown fields are not an
// error; Clean drops them before a document reaches the store.
package schema

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/yanizio/recordapi/internal/apperr"
	"github.com/yanizio/recordapi/internal/store"
)

// FieldRule declares validation for one document field.
type FieldRule struct {
	Name     string
	Required bool
	// Tags is a validator tag expression applied to present values,
	// e.g. "email" or "min=2,max=80".
	Tags string
}

// Schema is an immutable rule set for one collection.  Safe for
// concurrent use.
type Schema struct {
	rules []FieldRule
	v     *validator.Validate
}

// New builds a Schema from the given rules.
func New(rules ...FieldRule) *Schema {
	return &Schema{rules: rules, v: validator.New()}
}

// Fields returns the declared field names in rule order.
func (s *Schema) Fields() []string {
	out := make([]string, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.Name
	}
	return out
}

// Clean returns doc restricted to declared fields.  The store's own
// keys (identifier, timestamps) are never caller-writable, so they are
// dropped here too.
func (s *Schema) Clean(doc store.Record) store.Record {
	out := make(store.Record, len(s.rules))
	for _, r := range s.rules {
		if v, ok := doc[r.Name]; ok {
			out[r.Name] = v
		}
	}
	return out
}

// Validate checks doc against the rule set.  With partial set, absent
// fields skip their required check; update payloads validate only the
// fields they carry.  A field the payload does carry is always held to
// its rules, so an update cannot blank out a required value that a
// create would reject.  Returns *apperr.SchemaViolation or nil.
func (s *Schema) Validate(doc store.Record, partial bool) error {
	reasons := make(map[string]string)
	for _, r := range s.rules {
		val, present := doc[r.Name]
		if !present {
			if r.Required && !partial {
				reasons[r.Name] = fmt.Sprintf("%s is required.", apperr.TitleField(r.Name))
			}
			continue
		}
		if val == nil || val == "" {
			if r.Required {
				reasons[r.Name] = fmt.Sprintf("%s is required.", apperr.TitleField(r.Name))
			}
			continue
		}
		if r.Tags == "" {
			continue
		}
		if err := s.v.Var(val, r.Tags); err != nil {
			reasons[r.Name] = reasonFor(r, err)
		}
	}
	if len(reasons) > 0 {
		return &apperr.SchemaViolation{Fields: reasons}
	}
	return nil
}

// reasonFor renders the first failed rule as a user-facing message.
func reasonFor(r FieldRule, err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return fmt.Sprintf("%s is invalid.", apperr.TitleField(r.Name))
	}
	fe := verrs[0]
	title := apperr.TitleField(r.Name)
	switch fe.Tag() {
	case "email":
		return fmt.Sprintf("%s must be a valid email address.", title)
	case "url":
		return fmt.Sprintf("%s must be a valid URL.", title)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters.", title, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters.", title, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s.", title, strings.Join(strings.Fields(fe.Param()), ", "))
	case "e164":
		return fmt.Sprintf("%s must be a valid phone number.", title)
	case "alphanum":
		return fmt.Sprintf("%s must contain only letters and digits.", title)
	default:
		return fmt.Sprintf("%s is invalid.", title)
	}
}
