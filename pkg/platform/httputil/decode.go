package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "thgate/pkg/domain-errors"
	"thgate/pkg/validation"
)

const (
	MessageInvalidBody  = "Invalid request body"
	MessageBodyTooLarge = "Request body too large"
)

// ErrBodyTooLarge is returned when a body exceeds the BodyLimit middleware cap.
var ErrBodyTooLarge = dErrors.New(dErrors.CodeBadRequest, MessageBodyTooLarge)

// ReadBody reads the whole request body. An exceeded size cap is reported as
// ErrBodyTooLarge so callers can answer 413.
func ReadBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, ErrBodyTooLarge
		}
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, MessageInvalidBody)
	}
	return body, nil
}

// WriteBodyError answers a ReadBody failure.
func WriteBodyError(w http.ResponseWriter, err error) {
	if err == ErrBodyTooLarge { //nolint:errorlint // sentinel is returned unwrapped
		WriteMessage(w, http.StatusRequestEntityTooLarge, MessageBodyTooLarge)
		return
	}
	WriteMessage(w, http.StatusBadRequest, MessageInvalidBody)
}

// DecodeJSON decodes a JSON request body into the target type. An empty body
// decodes to the zero value. On failure it writes a 400 and returns false.
//
// Usage:
//
//	req, ok := httputil.DecodeJSON[models.LoginRequest](w, r, h.logger, ctx, requestID)
//	if !ok {
//	    return
//	}
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	if r.Body == nil {
		return &req, true
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	if err == nil || errors.Is(err, io.EOF) {
		return &req, true
	}

	logger.WarnContext(ctx, "failed to decode request body",
		"error", err,
		"request_id", requestID,
	)
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		WriteMessage(w, http.StatusRequestEntityTooLarge, MessageBodyTooLarge)
		return nil, false
	}
	WriteError(w, dErrors.New(dErrors.CodeBadRequest, MessageInvalidBody))
	return nil, false
}

// Validatable is implemented by request types that support validation.
type Validatable interface {
	Validate() error
}

// Normalizable is implemented by request types that support normalization.
type Normalizable interface {
	Normalize()
}

// PrepareRequest normalizes and validates a request.
// Types without a Validate method fall back to struct tag validation.
func PrepareRequest(req any) error {
	if n, ok := req.(Normalizable); ok {
		n.Normalize()
	}
	if v, ok := req.(Validatable); ok {
		return v.Validate()
	}
	return validation.Validate(req)
}

// DecodeAndPrepare combines JSON decoding with request preparation.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	req, ok := DecodeJSON[T](w, r, logger, ctx, requestID)
	if !ok {
		return nil, false
	}

	if err := PrepareRequest(req); err != nil {
		logger.WarnContext(ctx, "invalid request",
			"error", err,
			"request_id", requestID,
		)
		WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, err.Error()))
		return nil, false
	}

	return req, true
}
