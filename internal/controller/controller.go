// internal/controller/controller.go
//
// Generic CRUD controller.
//
// Context
// -------
// One Controller serves every collection: it is bound to a
// store.Collection (and that collection's schema) at registration and
// orchestrates the five operations against it.  Handlers return errors
// instead of writing failure responses; dispatch.go owns the single
// point where failures become client-visible JSON.
//
// The only failure handled locally is the duplicate-key conversion:
// storage-level uniqueness conflicts become the structured 400 clients
// expect, so no raw driver shape ever crosses the HTTP boundary.
//
// Reads pass the request context into the store, so a dropped client
// connection cancels in-flight storage calls.
package controller

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"

	"github.com/yanizio/recordapi/internal/apperr"
	"github.com/yanizio/recordapi/internal/envelope"
	"github.com/yanizio/recordapi/internal/metrics"
	"github.com/yanizio/recordapi/internal/query"
	"github.com/yanizio/recordapi/internal/schema"
	"github.com/yanizio/recordapi/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Fixed response messages.  Immutable after init.
var messages = struct {
	created   string
	retrieved string
	updated   string
	deleted   string
	notFound  string
}{
	created:   "Record created successfully.",
	retrieved: "Records retrieved successfully.",
	updated:   "Record updated successfully.",
	deleted:   "Record deleted successfully.",
	notFound:  "No records found.",
}

// Controller is the generic orchestration for one registered
// collection.  Safe for concurrent use; all state is read-only.
type Controller struct {
	col    store.Collection
	schema *schema.Schema

	// beforeWrite, when set, normalizes a cleaned payload before it is
	// validated and persisted (e.g. slug derivation).
	beforeWrite func(store.Record)
}

// Option configures a Controller.
type Option func(*Controller)

// WithBeforeWrite installs a payload normalization hook.
func WithBeforeWrite(fn func(store.Record)) Option {
	return func(c *Controller) { c.beforeWrite = fn }
}

// New binds a Controller to a collection and its schema.
func New(col store.Collection, s *schema.Schema, opts ...Option) *Controller {
	c := &Controller{col: col, schema: s}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Routes mounts the five operations on a fresh router.
func (c *Controller) Routes(d *Dispatcher) chi.Router {
	r := chi.NewRouter()
	r.Post("/", d.Handle(c.create))
	r.Get("/", d.Handle(c.list))
	r.Get("/{id}", d.Handle(c.get))
	r.Patch("/{id}", d.Handle(c.update))
	r.Put("/{id}", d.Handle(c.update))
	r.Delete("/{id}", d.Handle(c.remove))
	return r
}

//
// ── operations ──────────────────────────────────────────────────────────
//

// create validates and persists a new record.
func (c *Controller) create(w http.ResponseWriter, r *http.Request) error {
	c.count("create")

	payload, _, err := c.decodeBody(r)
	if err != nil {
		return err
	}
	doc := c.schema.Clean(payload)
	if c.beforeWrite != nil {
		c.beforeWrite(doc)
	}
	if err := c.schema.Validate(doc, false); err != nil {
		return err
	}

	rec, err := c.col.Insert(r.Context(), doc)
	if err != nil {
		return convertDuplicate(err)
	}
	envelope.WriteSuccess(w, http.StatusCreated, messages.created, c.public(rec))
	return nil
}

// list executes a planned query.  The unconditional total count and the
// page fetch run concurrently; they are separate round trips and are
// not transactionally consistent with each other, an accepted tradeoff.
func (c *Controller) list(w http.ResponseWriter, r *http.Request) error {
	c.count("list")

	_, directives, _ := c.decodeBody(r) // body optional on list
	plan := query.Build(r.URL.Query(), directives, c.col.Descriptor())

	var (
		page  []store.Record
		total int
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		total, err = c.col.Count(ctx, plan.Filter)
		return
	})
	g.Go(func() (err error) {
		page, err = c.col.Find(ctx, plan)
		return
	})
	if err := g.Wait(); err != nil {
		return err
	}

	msg := messages.retrieved
	if len(page) == 0 {
		msg = messages.notFound // still a 200; an empty page is not an error
	}
	envelope.WriteList(w, http.StatusOK, msg, page, len(page), total)
	return nil
}

// get fetches one record by identifier with optional expansion.
func (c *Controller) get(w http.ResponseWriter, r *http.Request) error {
	c.count("get")

	rec, err := c.col.FindByID(r.Context(), chi.URLParam(r, "id"),
		c.defaultProjection(), populateParam(r.URL.Query()))
	if err != nil {
		return convertNoDocument(err)
	}
	envelope.WriteSuccess(w, http.StatusOK, messages.retrieved, c.public(rec))
	return nil
}

// update merges validated fields into an existing record.
func (c *Controller) update(w http.ResponseWriter, r *http.Request) error {
	c.count("update")

	payload, directives, err := c.decodeBody(r)
	if err != nil {
		return err
	}
	doc := c.schema.Clean(payload)
	if c.beforeWrite != nil {
		c.beforeWrite(doc)
	}
	if err := c.schema.Validate(doc, true); err != nil {
		return err
	}

	rec, err := c.col.FindByIDAndUpdate(r.Context(), chi.URLParam(r, "id"), doc, directives.Populate)
	if err != nil {
		if errors.Is(err, store.ErrNoDocument) {
			return apperr.NotFound()
		}
		return convertDuplicate(err)
	}
	envelope.WriteSuccess(w, http.StatusOK, messages.updated, c.public(rec))
	return nil
}

// remove deletes one record by identifier and returns its final state.
// The response carries the public transform, matching every other
// operation.
func (c *Controller) remove(w http.ResponseWriter, r *http.Request) error {
	c.count("delete")

	rec, err := c.col.FindByIDAndDelete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return convertNoDocument(err)
	}
	envelope.WriteSuccess(w, http.StatusOK, messages.deleted, c.public(rec))
	return nil
}

//
// ── helpers ─────────────────────────────────────────────────────────────
//

// decodeBody splits the request body into record fields and plan
// directives.  An absent or empty body is fine; malformed JSON on a
// write is a 400.
func (c *Controller) decodeBody(r *http.Request) (store.Record, query.BodyDirectives, error) {
	var raw store.Record
	if r.Body != nil {
		err := json.NewDecoder(r.Body).Decode(&raw)
		switch {
		case err == nil, errors.Is(err, io.EOF):
			// Absent body; writes validate the empty document below.
		case r.Method == http.MethodGet:
			raw = nil // lenient on reads
		default:
			return nil, query.BodyDirectives{}, apperr.New("Invalid JSON body.", http.StatusBadRequest)
		}
	}
	var directives query.BodyDirectives
	if list, ok := raw["populate"].([]any); ok {
		for _, f := range list {
			if name, ok := f.(string); ok {
				directives.Populate = append(directives.Populate, name)
			}
		}
		delete(raw, "populate")
	}
	if raw == nil {
		raw = store.Record{}
	}
	return raw, directives, nil
}

// public computes the record's public transform, fresh per response.
func (c *Controller) public(rec store.Record) store.Record {
	return store.Public(rec, c.col.Descriptor())
}

// defaultProjection excludes the protected set, matching list behavior
// when no fields parameter is given.
func (c *Controller) defaultProjection() store.Projection {
	return store.Projection{Mode: store.ProjectExclude, Fields: c.col.Descriptor().ProtectedFields}
}

func (c *Controller) count(op string) {
	metrics.RequestsTotal.WithLabelValues(c.col.Descriptor().Collection, op).Inc()
}

// populateParam reads the comma-separated populate list accepted on
// single-record reads.
func populateParam(params url.Values) []string {
	raw := params.Get("populate")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// convertDuplicate maps a storage uniqueness conflict onto the
// structured duplicate ErrorValue; other failures pass through.
func convertDuplicate(err error) error {
	var dup *store.DuplicateError
	if errors.As(err, &dup) {
		return apperr.Duplicate(dup.Fields)
	}
	return err
}

// convertNoDocument maps a storage miss onto the 404 ErrorValue.
func convertNoDocument(err error) error {
	if errors.Is(err, store.ErrNoDocument) {
		return apperr.NotFound()
	}
	return err
}
