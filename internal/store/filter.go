// internal/store/filter.go
//
// In-process query engine.
//
// Context
// -------
// Both bundled backends hold whole documents (a map in memstore, a JSON
// column in sqlstore), so filtering, ordering, projection, and paging
// happen here, over decoded documents, instead of being pushed into a
// query language.  Keeping one engine guarantees the two backends agree
// on every edge case.
//
// Notes
// -----
// • Values arriving from JSON decode as float64, string, bool, nil,
//   []any, or map[string]any; comparisons normalize through stringify
//   and numeric fast paths.
// • A nil Cond matches everything.  An empty Or matches nothing.
package store

import (
	"sort"
	"strconv"
	"strings"
)

// Matches reports whether rec satisfies cond.  Text nodes degrade to a
// Contains scan across d.SearchableFields; backends with a real text
// index intercept Text before calling Matches.
func Matches(rec Record, cond Cond, d *Descriptor) bool {
	switch c := cond.(type) {
	case nil:
		return true
	case And:
		for _, sub := range c {
			if !Matches(rec, sub, d) {
				return false
			}
		}
		return true
	case Or:
		for _, sub := range c {
			if Matches(rec, sub, d) {
				return true
			}
		}
		return false
	case Eq:
		v, ok := rec[c.Field]
		return ok && stringify(v) == c.Value
	case Contains:
		v, ok := rec[c.Field]
		if !ok {
			return false
		}
		return strings.Contains(strings.ToLower(stringify(v)), strings.ToLower(c.Term))
	case Text:
		for _, f := range d.SearchableFields {
			if Matches(rec, Contains{Field: f, Term: c.Term}, d) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// SortRecords orders recs in place by the given sort fields.  Numeric
// values compare numerically, everything else lexicographically; a
// missing field sorts before any present value.
func SortRecords(recs []Record, fields []SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(recs, func(i, j int) bool {
		for _, sf := range fields {
			cmp := compareValues(recs[i][sf.Field], recs[j][sf.Field])
			if cmp == 0 {
				continue
			}
			if sf.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// ApplyProjection returns a fresh copy of rec narrowed per proj.  The
// identifier always survives an include projection.
func ApplyProjection(rec Record, proj Projection) Record {
	if rec == nil {
		return nil
	}
	if proj.Mode == ProjectInclude {
		out := make(Record, len(proj.Fields)+1)
		if id, ok := rec[FieldID]; ok {
			out[FieldID] = id
		}
		for _, f := range proj.Fields {
			if v, ok := rec[f]; ok {
				out[f] = v
			}
		}
		return out
	}
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	for _, f := range proj.Fields {
		delete(out, f)
	}
	return out
}

// Paginate cuts the plan's page out of recs.  A nil page returns recs
// unchanged; a skip past the end returns an empty slice.
func Paginate(recs []Record, page *Page) []Record {
	if page == nil {
		return recs
	}
	skip := page.Skip()
	if skip >= len(recs) {
		return []Record{}
	}
	recs = recs[skip:]
	if len(recs) > page.Size {
		recs = recs[:page.Size]
	}
	return recs
}

//
// ── value helpers ───────────────────────────────────────────────────────
//

// stringify renders a scalar the way its query-string literal would
// look, so Eq comparisons work across JSON types.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}

// compareValues returns -1, 0, or 1.  Two numerics compare numerically;
// otherwise both sides fall back to their string forms.
func compareValues(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(stringify(a), stringify(b))
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	default:
		return 0, false
	}
}
