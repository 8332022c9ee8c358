// Package httputil holds JSON and cookie helpers shared by the handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tendant/teamspace/pkg/domain"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string      `json:"error"`
	Kind  domain.Kind `json:"kind,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Error writes a plain error message.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// DomainError writes err with the status and message of its kind.
func DomainError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	JSON(w, StatusForError(err), ErrorResponse{Error: messages[kind], Kind: kind})
}

// DecodeJSON decodes the request body into v. It reports false after
// writing the error response.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

var statuses = map[domain.Kind]int{
	domain.KindAuthInvalidCredentials: http.StatusUnauthorized,
	domain.KindAuthEmailUnconfirmed:   http.StatusForbidden,
	domain.KindAuthRateLimited:        http.StatusTooManyRequests,
	domain.KindAuthAlreadyRegistered:  http.StatusConflict,
	domain.KindAuthWeakPassword:       http.StatusBadRequest,
	domain.KindAuthInvalidEmail:       http.StatusBadRequest,
	domain.KindAuthGeneric:            http.StatusUnauthorized,
	domain.KindWorkspaceNotFound:      http.StatusNotFound,
	domain.KindWorkspaceAlreadyMember: http.StatusConflict,
	domain.KindStoreUnavailable:       http.StatusServiceUnavailable,
}

var messages = map[domain.Kind]string{
	domain.KindAuthInvalidCredentials: "invalid email or password",
	domain.KindAuthEmailUnconfirmed:   "email not confirmed",
	domain.KindAuthRateLimited:        "too many attempts, try again later",
	domain.KindAuthAlreadyRegistered:  "email already registered",
	domain.KindAuthWeakPassword:       "password does not meet requirements",
	domain.KindAuthInvalidEmail:       "invalid email address",
	domain.KindAuthGeneric:            "authentication failed",
	domain.KindWorkspaceNotFound:      "no workspace matches that join code",
	domain.KindWorkspaceAlreadyMember: "already a member of a workspace",
	domain.KindStoreUnavailable:       "service unavailable",
}

// StatusForError maps an error of the domain taxonomy to an HTTP status.
func StatusForError(err error) int {
	if status, ok := statuses[domain.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}
