package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	dErrors "thgate/pkg/domain-errors"
)

// GenericInternalMessage is the only text a caller ever sees for a 500.
const GenericInternalMessage = "Internal server error"

// ErrorResponse is the uniform envelope for every failed request.
type ErrorResponse struct {
	Error     bool   `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so we ignore encoding errors.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError centralizes domain error translation to HTTP responses.
// Internal errors are reduced to a generic message; callers log the detail.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if !errors.As(err, &domainErr) {
		WriteMessage(w, http.StatusInternalServerError, GenericInternalMessage)
		return
	}

	status := DomainCodeToHTTPStatus(domainErr.Code)
	message := domainErr.Message
	if status == http.StatusInternalServerError || message == "" {
		message = GenericInternalMessage
	}
	WriteMessage(w, status, message)
}

// WriteMessage writes the error envelope with an explicit status.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{
		Error:     true,
		Message:   message,
		Timestamp: Timestamp(time.Now()),
	})
}

// Timestamp formats t the way every envelope reports time (UTC, millisecond precision).
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvariantViolation:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
