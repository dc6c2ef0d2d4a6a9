// internal/envelope/envelope.go
//
// The one JSON wrapper every response travels in.
//
// Success shape:  {data, code, message}           (+ count/total on lists)
// Failure shape:  {success:false, code, message}  (+ errors, and dev-only
//                  stack/type/path/method keys)
//
// The code key always mirrors the HTTP status so clients parsing only
// the body still see the outcome.  Encoding goes through json-iterator,
// the same codec the stores use, so field ordering and number handling
// stay consistent end to end.
package envelope

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/yanizio/recordapi/internal/apperr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Success is the success-shape envelope.  Count and Total are present
// only on list responses.
type Success struct {
	Data    any    `json:"data"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Count   *int   `json:"count,omitempty"`
	Total   *int   `json:"total,omitempty"`
}

// WriteSuccess emits a success envelope with status = code.
func WriteSuccess(w http.ResponseWriter, code int, message string, data any) {
	write(w, code, Success{Data: data, Code: code, Message: message})
}

// WriteList emits a success envelope carrying page and total counts.
func WriteList(w http.ResponseWriter, code int, message string, data any, count, total int) {
	write(w, code, Success{
		Data:    data,
		Code:    code,
		Message: message,
		Count:   &count,
		Total:   &total,
	})
}

// WriteError emits the failure envelope for a normalized ErrorValue.
// Diagnostics, when non-nil, are flattened into the top level; the
// normalizer only supplies them in development mode.
func WriteError(w http.ResponseWriter, ev *apperr.ErrorValue, diag *apperr.Diagnostics) {
	body := map[string]any{
		"success": false,
		"code":    ev.Status,
		"message": ev.Message,
	}
	if len(ev.Errors) > 0 {
		body["errors"] = ev.Errors
	}
	if diag != nil {
		body["stack"] = diag.Stack
		body["type"] = diag.Kind
		body["path"] = diag.Path
		body["method"] = diag.Method
		for k, v := range diag.Extra {
			body[k] = v
		}
	}
	write(w, ev.Status, body)
}

func write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.S().Errorw("envelope encode failed", "err", err)
	}
}
