// internal/apperr/normalize.go
//
// Centralized error normalization.
//
// Context
// -------
// Handlers and middleware never format failure responses themselves.
// They return an error up the call stack, and exactly one dispatcher
// (the handler adapter in internal/controller) feeds it through
// Normalize.  Classification is pure: same failure in, same ErrorValue
// out, with no state carried between invocations.
//
// Classification order (first match wins)
// ---------------------------------------
//  1. SchemaViolation      → one sub-error per field, 400.
//  2. RequestViolation     → flattened details, punctuation stripped,
//                            failure's own status or 400.
//  3. *ErrorValue          → passed through unchanged.
//  4. anything else        → generic wrap (own message/status if the
//                            failure exposes them, else 500).
//
// Rate-limit and unmatched-route signals are then converted regardless
// of how they arrived, and the redaction rule runs last: production
// responses with status ≥ 500 carry only the generic message, and
// diagnostic detail (stack, error kind, path, method) is emitted in
// development mode only.
package apperr

import (
	"errors"
	"net/http"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
)

// Mode selects how much a normalized failure reveals.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// RequestContext is the little request metadata attached to development
// diagnostics.
type RequestContext struct {
	Path   string
	Method string
}

// Diagnostics is the development-only annotation block.  Never emitted
// in production under any status.
type Diagnostics struct {
	Stack  string
	Kind   string
	Path   string
	Method string
	Extra  map[string]string
}

// statusCoder lets arbitrary failures advertise an HTTP status without
// importing this package.
type statusCoder interface{ StatusCode() int }

// Normalizer classifies failures into ErrorValues.  Stateless; one
// instance is shared by every request.
type Normalizer struct {
	Mode Mode
}

// Normalize converts any failure into exactly one ErrorValue, plus
// diagnostics when running in development mode.
func (n *Normalizer) Normalize(err error, rc RequestContext) (*ErrorValue, *Diagnostics) {
	ev := n.classify(err)
	ev = n.specialize(err, ev)

	var diag *Diagnostics
	if n.Mode == ModeDevelopment {
		diag = &Diagnostics{
			Stack:  string(debug.Stack()),
			Kind:   kindOf(err),
			Path:   rc.Path,
			Method: rc.Method,
			Extra:  extraOf(err),
		}
	}

	// Redaction runs last, unconditionally.
	if n.Mode == ModeProduction && ev.Status >= http.StatusInternalServerError {
		ev = New(defaultMessages.internal, ev.Status)
	}
	return ev, diag
}

// classify applies the ordered match rules.
func (n *Normalizer) classify(err error) *ErrorValue {
	var schema *SchemaViolation
	if errors.As(err, &schema) {
		fields := make([]FieldError, 0, len(schema.Fields))
		for name, reason := range schema.Fields {
			fields = append(fields, FieldError{Field: name, Message: reason, Location: "body"})
		}
		// Map iteration order is random; fix it for stable responses.
		sort.Slice(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
		return New(defaultMessages.badInput, http.StatusBadRequest).WithFields(fields)
	}

	var request *RequestViolation
	if errors.As(err, &request) {
		status := request.Status
		if status == 0 {
			status = http.StatusBadRequest
		}
		fields := make([]FieldError, 0, len(request.Details))
		for _, d := range request.Details {
			fields = append(fields, FieldError{
				Field:    d.Field,
				Message:  stripPunctuation(d.Message),
				Location: d.Location,
			})
		}
		return New(defaultMessages.badInput, status).WithFields(fields)
	}

	var ev *ErrorValue
	if errors.As(err, &ev) {
		return ev
	}

	status := http.StatusInternalServerError
	var sc statusCoder
	if errors.As(err, &sc) {
		status = sc.StatusCode()
	}
	msg := defaultMessages.internal
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return New(msg, status)
}

// specialize applies the conversions that win regardless of origin.
func (n *Normalizer) specialize(err error, ev *ErrorValue) *ErrorValue {
	var rl *RateLimitSignal
	if errors.As(err, &rl) {
		return New(defaultMessages.rateLimit, http.StatusTooManyRequests)
	}
	var nr *RouteNotFound
	if errors.As(err, &nr) {
		return New(defaultMessages.noRoute, http.StatusNotFound)
	}
	return ev
}

// stripPunctuation removes the quote marks and trailing punctuation
// request validators like to decorate messages with.
func stripPunctuation(s string) string {
	s = strings.ReplaceAll(s, `"`, "")
	return strings.TrimRight(s, ".!,")
}

func kindOf(err error) string {
	switch {
	case isType[*SchemaViolation](err):
		return "SchemaViolation"
	case isType[*RequestViolation](err):
		return "RequestViolation"
	case isType[*RateLimitSignal](err):
		return "RateLimitSignal"
	case isType[*RouteNotFound](err):
		return "RouteNotFound"
	case isType[*ErrorValue](err):
		return "ErrorValue"
	default:
		return "error"
	}
}

func isType[T error](err error) bool {
	var t T
	return errors.As(err, &t)
}

// extraOf surfaces the advisory counters a rate-limit signal carries.
func extraOf(err error) map[string]string {
	var rl *RateLimitSignal
	if !errors.As(err, &rl) {
		return nil
	}
	return map[string]string{
		"limit":     strconv.Itoa(rl.Limit),
		"current":   strconv.Itoa(rl.Current),
		"remaining": strconv.Itoa(rl.Remaining),
	}
}
