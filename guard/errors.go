package guard

import (
	"encoding/json"
	"net/http"
)

// Error codes returned in the "error" field of guard rejections.
const (
	CodeCSRFTokenMissing  = "csrf_token_missing"
	CodeCSRFTokenInvalid  = "csrf_token_invalid"
	CodeRateLimitExceeded = "rate_limit_exceeded"
)

// Error is a guard rejection surfaced to the client.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

var (
	ErrCSRFTokenMissing = &Error{
		Status:  http.StatusForbidden,
		Code:    CodeCSRFTokenMissing,
		Message: "CSRF token missing",
	}
	ErrCSRFTokenInvalid = &Error{
		Status:  http.StatusForbidden,
		Code:    CodeCSRFTokenInvalid,
		Message: "CSRF token invalid",
	}
	ErrRateLimitExceeded = &Error{
		Status:  http.StatusTooManyRequests,
		Code:    CodeRateLimitExceeded,
		Message: "Too many requests, please try again later",
	}
)

// ErrorResponse is the JSON body of every guard rejection.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeGuardError(w http.ResponseWriter, e *Error, retryAfter int) {
	writeJSON(w, e.Status, ErrorResponse{Error: e.Code, Message: e.Message, RetryAfter: retryAfter})
}
