// internal/query/plan.go
//
// Query-string to QueryPlan translation.
//
// Context
// -------
// Every list request funnels its raw parameters through Build, which
// produces the filter, sort, projection, and pagination the store will
// execute.  The builder is deliberately lenient: it never errors, and a
// malformed directive degrades to its default so listing endpoints
// always return something.  Anything stricter belongs in request
// validation, not here.
//
// Reserved control keys (page, perPage, asc, dsc, fields, query), any
// caller-declared reserved key, and any key starting with the store
// operator prefix are stripped before the remaining literals become
// filter conditions.
package query

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/yanizio/recordapi/internal/store"
)

// Control parameter names that never become filter conditions.
const (
	ParamPage    = "page"
	ParamPerPage = "perPage"
	ParamAsc     = "asc"
	ParamDsc     = "dsc"
	ParamFields  = "fields"
	ParamQuery   = "query"
)

// operatorPrefix marks store-level operator injection attempts; such
// keys are always dropped.
const operatorPrefix = "$"

// Defaults applied when the caller paginates without saying how.
const (
	DefaultPage    = 1
	DefaultPerPage = 10
)

// BodyDirectives are the plan inputs read from the request body rather
// than the query string.
type BodyDirectives struct {
	Populate []string `json:"populate"`
}

// Build assembles the QueryPlan for one list request.  It never fails;
// see the package comment for the degrade policy.
func Build(params url.Values, directives BodyDirectives, d *store.Descriptor) *store.QueryPlan {
	return &store.QueryPlan{
		Filter:     buildFilter(params, d),
		Sort:       buildSort(params.Get(ParamAsc), params.Get(ParamDsc)),
		Projection: buildProjection(params, d),
		Page:       buildPage(params),
		Populate:   directives.Populate,
	}
}

//
// ── sort ────────────────────────────────────────────────────────────────
//

// buildSort maps the asc and dsc comma lists onto ordered sort fields.
// Ascending entries are processed first, so a field named in both lists
// ends up descending.
func buildSort(asc, dsc string) []store.SortField {
	var out []store.SortField
	for _, f := range splitList(asc) {
		out = upsertSort(out, f, false)
	}
	for _, f := range splitList(dsc) {
		out = upsertSort(out, f, true)
	}
	return out
}

func upsertSort(fields []store.SortField, name string, desc bool) []store.SortField {
	for i := range fields {
		if fields[i].Field == name {
			fields[i].Desc = desc
			return fields
		}
	}
	return append(fields, store.SortField{Field: name, Desc: desc})
}

//
// ── projection ──────────────────────────────────────────────────────────
//

// buildProjection honors the caller's fields list when present, minus
// every protected field, which can never be force-included.  An absent
// list excludes the protected set; a list whose survivors are all
// protected selects nothing beyond the identifier.
func buildProjection(params url.Values, d *store.Descriptor) store.Projection {
	if !params.Has(ParamFields) {
		return store.Projection{Mode: store.ProjectExclude, Fields: d.ProtectedFields}
	}
	requested := splitList(params.Get(ParamFields))
	kept := make([]string, 0, len(requested))
	for _, f := range requested {
		if d.Protected(f) {
			continue
		}
		kept = append(kept, f)
	}
	return store.Projection{Mode: store.ProjectInclude, Fields: kept}
}

//
// ── pagination ──────────────────────────────────────────────────────────
//

// buildPage applies pagination only when the caller explicitly supplied
// perPage.  Unparseable or non-positive numbers behave as if absent.
func buildPage(params url.Values) *store.Page {
	perPage, ok := parsePositive(params.Get(ParamPerPage))
	if !ok {
		return nil
	}
	page, ok := parsePositive(params.Get(ParamPage))
	if !ok {
		page = DefaultPage
	}
	return &store.Page{Number: page, Size: perPage}
}

func parsePositive(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

//
// ── filter ──────────────────────────────────────────────────────────────
//

// buildFilter ANDs every surviving literal parameter onto the optional
// free-text clause.  A nil result matches all documents.
func buildFilter(params url.Values, d *store.Descriptor) store.Cond {
	var conds store.And

	if term := strings.TrimSpace(params.Get(ParamQuery)); term != "" {
		conds = append(conds, searchCond(term, d))
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if filterable(k, d) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		conds = append(conds, store.Eq{Field: k, Value: params.Get(k)})
	}

	switch len(conds) {
	case 0:
		return nil
	case 1:
		return conds[0]
	default:
		return conds
	}
}

// searchCond prefers the collection's full-text index and falls back to
// a case-insensitive partial match across the searchable fields.
func searchCond(term string, d *store.Descriptor) store.Cond {
	if d.TextIndex {
		return store.Text{Term: term}
	}
	or := make(store.Or, 0, len(d.SearchableFields))
	for _, f := range d.SearchableFields {
		or = append(or, store.Contains{Field: f, Term: term})
	}
	return or
}

func filterable(key string, d *store.Descriptor) bool {
	switch key {
	case ParamPage, ParamPerPage, ParamAsc, ParamDsc, ParamFields, ParamQuery:
		return false
	}
	if strings.HasPrefix(key, operatorPrefix) {
		return false
	}
	return !d.Reserved(key)
}

// splitList splits a comma list, trimming whitespace and dropping
// empty entries.
func splitList(raw string) []string {
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
