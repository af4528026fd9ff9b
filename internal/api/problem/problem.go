// Package problem renders facilitator.Error values as the envelope and
// RFC 7807 problem body the HTTP Surface promises: {ok, requestId,
// data|error} on every response, with type/title/status/detail added
// for errors.
package problem

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vitaliisemenov/svc-facilitator/internal/facilitator"
)

// Envelope is the outer shape of every JSON response the HTTP Surface
// returns.
type Envelope struct {
	OK        bool   `json:"ok"`
	RequestID string `json:"requestId"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Detail    string `json:"detail,omitempty"`

	Type   string `json:"type,omitempty"`
	Title  string `json:"title,omitempty"`
	Status int    `json:"status,omitempty"`
}

const typeBase = "https://facilitator.internal/errors/"

// WriteOK writes a 200 success envelope carrying data.
func WriteOK(w http.ResponseWriter, requestID string, data any) {
	writeJSON(w, http.StatusOK, Envelope{OK: true, RequestID: requestID, Data: data})
}

// WriteStatus writes a success envelope with a caller-chosen status code
// (used by push, which can succeed with 200 even when lkgSaved is
// false).
func WriteStatus(w http.ResponseWriter, status int, requestID string, data any) {
	writeJSON(w, status, Envelope{OK: true, RequestID: requestID, Data: data})
}

// WriteError renders a *facilitator.Error as an RFC 7807-shaped error
// envelope, using its Kind (and Reason, for validation errors) to pick
// the HTTP status and a stable `type` slug.
func WriteError(w http.ResponseWriter, requestID string, err *facilitator.Error) {
	status := err.HTTPStatus()
	if status == 0 {
		status = http.StatusInternalServerError
	}

	slug := string(err.Kind)
	if err.Reason != "" {
		slug = string(err.Reason)
	}

	env := Envelope{
		OK:        false,
		RequestID: requestID,
		Error:     slug,
		Detail:    err.Detail,
		Type:      typeBase + slug,
		Title:     http.StatusText(status),
		Status:    status,
	}
	writeJSON(w, status, env)
}

// WriteMirrorLoadError renders a *facilitator.Error from POST
// <base>/mirror/load as a 400 response. Push validation failures are a
// request-shape problem for this endpoint (malformed body, a bad
// mirror document, a disabled parent) — unlike resolve's 422, where a
// validation error describes a stored record the caller didn't submit.
func WriteMirrorLoadError(w http.ResponseWriter, requestID string, err *facilitator.Error) {
	slug := string(err.Kind)
	if err.Reason != "" {
		slug = string(err.Reason)
	}
	if slug == string(facilitator.KindValidation) {
		slug = "mirror_validation_failed"
	}

	env := Envelope{
		OK:        false,
		RequestID: requestID,
		Error:     slug,
		Detail:    err.Detail,
		Type:      typeBase + slug,
		Title:     http.StatusText(http.StatusBadRequest),
		Status:    http.StatusBadRequest,
	}
	writeJSON(w, http.StatusBadRequest, env)
}

// WriteMissingKey writes the 400 `missing_key` response for a resolve
// request that omitted its key parameter — a request-shape error, not a
// facilitator.Error, since it never reaches validation.
func WriteMissingKey(w http.ResponseWriter, requestID string) {
	env := Envelope{
		OK: false, RequestID: requestID, Error: "missing_key",
		Detail: "the key query parameter is required",
		Type:   typeBase + "missing_key", Title: "Bad Request", Status: http.StatusBadRequest,
	}
	writeJSON(w, http.StatusBadRequest, env)
}

// WriteNotFoundPath writes the 404 the path guard returns when a request
// does not match this facilitator's mounted service slug or base path.
func WriteNotFoundPath(w http.ResponseWriter, requestID, detail string) {
	env := Envelope{
		OK: false, RequestID: requestID, Error: "not_found",
		Detail: detail,
		Type:   typeBase + "not_found", Title: "Not Found", Status: http.StatusNotFound,
	}
	writeJSON(w, http.StatusNotFound, env)
}

func writeJSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", env.RequestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		fmt.Fprintf(w, `{"ok":false,"error":"internal_error","detail":"failed to encode response"}`)
	}
}
