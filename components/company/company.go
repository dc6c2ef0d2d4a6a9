// components/company/company.go
//
// Company collection.
//
// The first concrete record type served by the generic controller:
// descriptor, schema rules, and the slug-normalization hook are all the
// entity-specific code there is.  Registered via init(), mounted by
// cmd/web at /company.
package company

import (
	"strings"

	"github.com/yanizio/recordapi/internal/collection"
	"github.com/yanizio/recordapi/internal/controller"
	"github.com/yanizio/recordapi/internal/schema"
	"github.com/yanizio/recordapi/internal/store"
)

// Descriptor is the static collection metadata, shared read-only across
// requests.
var Descriptor = &store.Descriptor{
	Collection:       "company",
	SearchableFields: []string{"name", "slug", "email"},
	ProtectedFields:  []string{"internal_notes", "api_secret"},
	UniqueFields:     []string{"name", "slug"},
	ReservedParams:   []string{"populate"},
	References:       map[string]string{"parent_company": "company"},
}

// Schema declares the field rules enforced on create and update.
var Schema = schema.New(
	schema.FieldRule{Name: "name", Required: true, Tags: "min=2,max=80"},
	schema.FieldRule{Name: "slug", Tags: "max=100"},
	schema.FieldRule{Name: "email", Tags: "email"},
	schema.FieldRule{Name: "phone", Tags: "e164"},
	schema.FieldRule{Name: "website", Tags: "url"},
	schema.FieldRule{Name: "status", Tags: "oneof=active suspended"},
	schema.FieldRule{Name: "parent_company", Tags: "uuid4"},
	schema.FieldRule{Name: "internal_notes"},
	schema.FieldRule{Name: "api_secret"},
)

func init() {
	collection.Register(collection.Binding{
		Descriptor: Descriptor,
		Schema:     Schema,
		Options:    []controller.Option{controller.WithBeforeWrite(normalize)},
	})
}

// normalize derives a slug from the name when none was supplied, and
// canonicalizes whichever slug ends up on the document.
func normalize(doc store.Record) {
	slug, _ := doc["slug"].(string)
	if slug == "" {
		if name, ok := doc["name"].(string); ok && name != "" {
			slug = name
		} else {
			return
		}
	}
	doc["slug"] = MakeSlug(slug)
}

// MakeSlug converts arbitrary text into lower-kebab ASCII: any run of
// non-[a-z0-9] becomes one dash, consecutive dashes collapse, and the
// result is trimmed to 100 bytes.  Empty input yields "company".
func MakeSlug(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastWasDash := false
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastWasDash = false
		default:
			if !lastWasDash {
				b.WriteRune('-')
				lastWasDash = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "company"
	}
	if len(slug) > 100 {
		slug = strings.TrimRight(slug[:100], "-")
	}
	return slug
}
