// internal/store/memstore/memstore.go
//
// Map-backed document store.
//
// Context
// -------
// The default backend for development and tests: every collection is a
// mutex-guarded map of JSON documents.  Documents cross the API
// boundary as fresh copies (a json-iterator round trip) so callers can
// never mutate store state through a returned map.
//
// Query execution delegates entirely to the shared engine in
// internal/store; this file only owns storage, identity, uniqueness,
// and reference expansion.
package memstore

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/yanizio/recordapi/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store owns every in-memory collection and resolves cross-collection
// references during populate.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*Collection
}

// New returns an empty Store.
func New() *Store {
	return &Store{collections: make(map[string]*Collection)}
}

// Collection returns (creating on first use) the collection for d.
func (s *Store) Collection(d *store.Descriptor) *Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[d.Collection]; ok {
		return c
	}
	c := &Collection{
		desc:  d,
		docs:  make(map[string]store.Record),
		owner: s,
	}
	s.collections[d.Collection] = c
	return c
}

// lookup fetches one document from a named collection, for populate.
func (s *Store) lookup(collection, id string) (store.Record, *store.Descriptor, bool) {
	s.mu.RLock()
	c, ok := s.collections[collection]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[id]
	if !ok {
		return nil, nil, false
	}
	return clone(doc), c.desc, true
}

// Collection is one in-memory document collection.  Safe for concurrent
// use.
type Collection struct {
	mu    sync.RWMutex
	desc  *store.Descriptor
	docs  map[string]store.Record
	owner *Store
}

var _ store.Collection = (*Collection)(nil)

// Descriptor implements store.Collection.
func (c *Collection) Descriptor() *store.Descriptor { return c.desc }

// Count implements store.Collection.  Pagination never applies here.
func (c *Collection) Count(_ context.Context, filter store.Cond) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, doc := range c.docs {
		if store.Matches(doc, filter, c.desc) {
			n++
		}
	}
	return n, nil
}

// Find implements store.Collection.
func (c *Collection) Find(_ context.Context, plan *store.QueryPlan) ([]store.Record, error) {
	c.mu.RLock()
	matched := make([]store.Record, 0, len(c.docs))
	for _, doc := range c.docs {
		if store.Matches(doc, plan.Filter, c.desc) {
			matched = append(matched, clone(doc))
		}
	}
	c.mu.RUnlock()

	// Map order is random; give unsorted queries a stable default.
	store.SortRecords(matched, withDefaultSort(plan.Sort))
	matched = store.Paginate(matched, plan.Page)

	out := make([]store.Record, 0, len(matched))
	for _, doc := range matched {
		c.populate(doc, plan.Populate)
		out = append(out, store.ApplyProjection(doc, plan.Projection))
	}
	return out, nil
}

// Insert implements store.Collection.
func (c *Collection) Insert(_ context.Context, fields store.Record) (store.Record, error) {
	doc := clone(fields)
	doc[store.FieldID] = uuid.NewString()
	store.Touch(doc, time.Now())

	c.mu.Lock()
	defer c.mu.Unlock()
	if dup := c.conflicts(doc, ""); len(dup) > 0 {
		return nil, &store.DuplicateError{Fields: dup}
	}
	c.docs[doc[store.FieldID].(string)] = doc
	return clone(doc), nil
}

// FindByID implements store.Collection.
func (c *Collection) FindByID(_ context.Context, id string, proj store.Projection, populate []string) (store.Record, error) {
	c.mu.RLock()
	doc, ok := c.docs[id]
	if ok {
		doc = clone(doc)
	}
	c.mu.RUnlock()
	if !ok {
		return nil, store.ErrNoDocument
	}
	c.populate(doc, populate)
	return store.ApplyProjection(doc, proj), nil
}

// FindByIDAndUpdate implements store.Collection.  Fields are merged
// into the existing document; updated_at is bumped.
func (c *Collection) FindByIDAndUpdate(_ context.Context, id string, fields store.Record, populate []string) (store.Record, error) {
	c.mu.Lock()
	doc, ok := c.docs[id]
	if !ok {
		c.mu.Unlock()
		return nil, store.ErrNoDocument
	}
	next := clone(doc)
	for k, v := range clone(fields) {
		next[k] = v
	}
	if dup := c.conflicts(next, id); len(dup) > 0 {
		c.mu.Unlock()
		return nil, &store.DuplicateError{Fields: dup}
	}
	next[store.FieldUpdatedAt] = time.Now().UTC().Format(time.RFC3339Nano)
	c.docs[id] = next
	out := clone(next)
	c.mu.Unlock()

	c.populate(out, populate)
	return out, nil
}

// FindByIDAndDelete implements store.Collection.
func (c *Collection) FindByIDAndDelete(_ context.Context, id string) (store.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[id]
	if !ok {
		return nil, store.ErrNoDocument
	}
	delete(c.docs, id)
	return clone(doc), nil
}

//
// ── internals ───────────────────────────────────────────────────────────
//

// conflicts returns every unique field of doc whose value is already
// held by a different document.  Caller holds the write lock.
func (c *Collection) conflicts(doc store.Record, selfID string) []string {
	var dup []string
	for _, field := range c.desc.UniqueFields {
		val, ok := doc[field]
		if !ok || val == nil {
			continue
		}
		for id, other := range c.docs {
			if id == selfID {
				continue
			}
			if sameValue(other[field], val) {
				dup = append(dup, field)
				break
			}
		}
	}
	return dup
}

// populate expands declared reference fields in place.  Unknown fields,
// undeclared references, and dangling ids are silently left as-is.
func (c *Collection) populate(doc store.Record, fields []string) {
	if c.owner == nil {
		return
	}
	for _, field := range fields {
		ref, ok := c.desc.References[field]
		if !ok {
			continue
		}
		id, ok := doc[field].(string)
		if !ok || id == "" {
			continue
		}
		if target, desc, ok := c.owner.lookup(ref, id); ok {
			doc[field] = store.Public(target, desc)
		}
	}
}

// withDefaultSort appends a trailing id tiebreaker so equal rows keep a
// stable order across calls.
func withDefaultSort(fields []store.SortField) []store.SortField {
	for _, f := range fields {
		if f.Field == store.FieldID {
			return fields
		}
	}
	out := make([]store.SortField, 0, len(fields)+1)
	out = append(out, fields...)
	return append(out, store.SortField{Field: store.FieldID})
}

// sameValue compares two decoded JSON values.  Documents may hold
// arrays or objects in any field, and those are not comparable with ==.
func sameValue(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// clone deep-copies a document through the JSON codec so store state
// never leaks by reference.
func clone(doc store.Record) store.Record {
	if doc == nil {
		return nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return store.Record{}
	}
	var out store.Record
	if err := json.Unmarshal(raw, &out); err != nil {
		return store.Record{}
	}
	return out
}
