// internal/store/store.go
//
// Document-store contract shared by every backend.
//
// Context
// -------
// A Collection persists schemaless JSON documents for exactly one record
// type.  The HTTP layer never talks to a concrete backend; it sees only
// this interface plus the immutable Descriptor that names the fields the
// generic machinery must treat specially (searchable, protected, unique).
//
// Two backends implement Collection today: memstore (map-backed, used by
// tests and development) and sqlstore (MySQL JSON column via sqlx).  Both
// evaluate QueryPlans with the shared engine in filter.go so behavior is
// identical regardless of driver.
//
// Notes
// -----
// • Descriptor values are built once at registration and shared by
//   reference across requests; nothing may mutate them afterward.
// • Store-level failures surface as ErrNoDocument or *DuplicateError so
//   callers never see raw driver error shapes.
package store

import (
	"context"
	"errors"
	"time"
)

// FieldID is the document identifier key present on every record.
const FieldID = "id"

// Timestamp keys maintained by the store on insert and update.
const (
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// ErrNoDocument is returned by the ByID operations when no document
// matches the given identifier.
var ErrNoDocument = errors.New("store: no matching document")

// DuplicateError reports a unique-field conflict on insert or update.
// Fields lists every conflicting field name in descriptor order.
type DuplicateError struct {
	Fields []string
}

func (e *DuplicateError) Error() string {
	return "store: duplicate value for unique field(s)"
}

// Record is one schemaless document.  Values are the JSON scalar types
// plus nested maps and slices; the store owns id and timestamp keys.
type Record = map[string]any

// Descriptor is the static per-collection metadata the generic
// controller and query planner operate on.
type Descriptor struct {
	// Collection is the store-level collection (and route) name.
	Collection string

	// SearchableFields are matched, in order, by the free-text fallback
	// search when no text index is declared.
	SearchableFields []string

	// ProtectedFields are excluded from default projections and always
	// stripped from public serializations.
	ProtectedFields []string

	// UniqueFields may each hold a given value at most once per
	// collection.
	UniqueFields []string

	// TextIndex declares a store-maintained full-text index covering
	// SearchableFields.
	TextIndex bool

	// ReservedParams are query-string keys that must never become
	// filter conditions, in addition to the built-in control keys.
	ReservedParams []string

	// References maps expandable fields to the collection their value
	// identifies, e.g. {"parent_company": "company"}.  Populate
	// directives outside this map are ignored.
	References map[string]string
}

// Protected reports whether name is in ProtectedFields.
func (d *Descriptor) Protected(name string) bool {
	for _, f := range d.ProtectedFields {
		if f == name {
			return true
		}
	}
	return false
}

// Reserved reports whether name is in the caller-declared reserved list.
func (d *Descriptor) Reserved(name string) bool {
	for _, f := range d.ReservedParams {
		if f == name {
			return true
		}
	}
	return false
}

//
// ── Query plan ──────────────────────────────────────────────────────────
//

// Cond is one node of a filter predicate tree.  A nil Cond matches every
// document.
type Cond interface{ isCond() }

// And matches when every child matches.  An empty And matches all.
type And []Cond

// Or matches when at least one child matches.  An empty Or matches none.
type Or []Cond

// Eq matches documents whose field stringifies to exactly Value.
type Eq struct {
	Field string
	Value string
}

// Contains matches documents whose field contains Term, case-insensitive.
type Contains struct {
	Field string
	Term  string
}

// Text asks the backend to consult its full-text index for Term.
// Backends without a real index degrade to Contains across the
// descriptor's searchable fields.
type Text struct {
	Term string
}

func (And) isCond()      {}
func (Or) isCond()       {}
func (Eq) isCond()       {}
func (Contains) isCond() {}
func (Text) isCond()     {}

// SortField is one (field, direction) pair; earlier entries win ties.
type SortField struct {
	Field string
	Desc  bool
}

// ProjectionMode selects how Projection.Fields is interpreted.
type ProjectionMode int

const (
	// ProjectExclude drops the named fields and keeps everything else.
	ProjectExclude ProjectionMode = iota
	// ProjectInclude keeps only the named fields plus the identifier.
	ProjectInclude
)

// Projection narrows the fields a query returns.  The zero value (an
// exclude projection with no fields) returns documents untouched.
//
// An include projection with zero fields is legal and returns only the
// identifier.
type Projection struct {
	Mode   ProjectionMode
	Fields []string
}

// Page bounds one slice of a result set.  Nil *Page means no pagination:
// every match is returned.
type Page struct {
	Number int // 1-based
	Size   int
}

// Skip returns the number of leading matches to drop.
func (p *Page) Skip() int { return (p.Number - 1) * p.Size }

// QueryPlan is the transient, per-request description of one list
// query: what to match, how to order it, which fields to return, which
// slice to cut, and which references to expand.
type QueryPlan struct {
	Filter     Cond
	Sort       []SortField
	Projection Projection
	Page       *Page
	Populate   []string
}

//
// ── Collection contract ─────────────────────────────────────────────────
//

// Collection is the capability set the generic controller requires from
// a storage backend.  Implementations must be safe for concurrent use.
type Collection interface {
	// Descriptor returns the immutable metadata this collection was
	// registered with.
	Descriptor() *Descriptor

	// Count returns the number of documents matching filter, ignoring
	// pagination.
	Count(ctx context.Context, filter Cond) (int, error)

	// Find executes the full plan and returns the matching page.
	Find(ctx context.Context, plan *QueryPlan) ([]Record, error)

	// Insert persists a new document, assigning id and timestamps.
	Insert(ctx context.Context, fields Record) (Record, error)

	// FindByID fetches one document with optional projection and
	// reference expansion.  Returns ErrNoDocument on a miss.
	FindByID(ctx context.Context, id string, proj Projection, populate []string) (Record, error)

	// FindByIDAndUpdate merges fields into the document, bumps
	// updated_at, and returns the updated state.
	FindByIDAndUpdate(ctx context.Context, id string, fields Record, populate []string) (Record, error)

	// FindByIDAndDelete removes the document and returns its final
	// state.
	FindByIDAndDelete(ctx context.Context, id string) (Record, error)
}

// Public returns rec minus every protected field.  The copy is shallow
// for values but fresh per call, so callers may annotate it freely.
func Public(rec Record, d *Descriptor) Record {
	if rec == nil {
		return nil
	}
	out := make(Record, len(rec))
	for k, v := range rec {
		if d.Protected(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// Touch stamps created_at/updated_at on a new document.
func Touch(rec Record, now time.Time) {
	ts := now.UTC().Format(time.RFC3339Nano)
	rec[FieldCreatedAt] = ts
	rec[FieldUpdatedAt] = ts
}
