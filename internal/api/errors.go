package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nerrad567/claimd/internal/claim"
)

// Error is the JSON body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Machine-readable values of Error.Code.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeValidation     = "validation_error"
	ErrCodeNotFound       = "not_found"
	ErrCodeConflict       = "conflict"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeMethodNotAllow = "method_not_allowed"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeInternal       = "internal_error"
)

// retryAfterSeconds is sent with 503s caused by a failing store.
const retryAfterSeconds = 5

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // client may have gone
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// serviceErrorBody translates a claim.Service error. Store failures are
// reported generically so driver messages never reach clients.
func serviceErrorBody(err error) Error {
	var dup *claim.DuplicateError
	switch {
	case errors.Is(err, claim.ErrInvalidInput):
		return Error{Status: http.StatusBadRequest, Code: ErrCodeValidation, Message: err.Error()}
	case errors.As(err, &dup):
		return Error{Status: http.StatusConflict, Code: ErrCodeConflict, Message: "device already registered", Field: dup.Field}
	case errors.Is(err, claim.ErrDuplicate):
		return Error{Status: http.StatusConflict, Code: ErrCodeConflict, Message: "device already registered"}
	case errors.Is(err, claim.ErrNotFound):
		return Error{Status: http.StatusNotFound, Code: ErrCodeNotFound, Message: "token not found or already claimed"}
	case claim.IsRetryable(err):
		return Error{Status: http.StatusServiceUnavailable, Code: ErrCodeUnavailable, Message: "device store unavailable"}
	}
	return Error{Status: http.StatusInternalServerError, Code: ErrCodeInternal, Message: "internal server error"}
}

func writeServiceError(w http.ResponseWriter, err error) {
	body := serviceErrorBody(err)
	if body.Status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	writeJSON(w, body.Status, body)
}
