// Package response provides common HTTP response helpers.
package response

import (
	"encoding/json"
	"net/http"
	"strings"

	commonerrors "github.com/retailcore/salesaga/pkg/errors"
)

// RequestIDFromRequest extracts request ID from headers.
func RequestIDFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	reqID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
	if reqID == "" {
		reqID = strings.TrimSpace(r.Header.Get("X-Request-ID"))
	}
	return reqID
}

// WriteJSON writes a JSON payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError writes a structured error response based on the common error type.
// Internal messages never leak: the payload carries only code, message and step.
func WriteError(w http.ResponseWriter, r *http.Request, err *commonerrors.Error) {
	if w == nil || err == nil {
		return
	}
	payload := *err
	if reqID := RequestIDFromRequest(r); reqID != "" {
		payload.RequestID = reqID
	}
	WriteJSON(w, payload.HTTPStatus(), &payload)
}

// WriteErrorCode writes an error response using code and message.
func WriteErrorCode(w http.ResponseWriter, r *http.Request, code commonerrors.Code, message string) {
	WriteError(w, r, commonerrors.New(code, message))
}
