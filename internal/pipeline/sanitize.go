package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"

	"thgate/internal/security/sanitize"
	dErrors "thgate/pkg/domain-errors"
)

const (
	MessageInvalidInput    = "Invalid input data"
	MessageInvalidEmail    = "Invalid email format"
	MessageInvalidPassword = "Password does not meet security requirements"
)

var (
	ErrInvalidInput    = dErrors.New(dErrors.CodeBadRequest, MessageInvalidInput)
	ErrInvalidEmail    = dErrors.New(dErrors.CodeValidation, MessageInvalidEmail)
	ErrInvalidPassword = dErrors.New(dErrors.CodeValidation, MessageInvalidPassword)
)

// sanitizeBody cleans every string in a JSON object body and checks the shape
// of email and password when they carry a value. It returns the re-encoded
// body. An empty body is treated as {}.
func sanitizeBody(s sanitize.Sanitizer, body []byte) ([]byte, error) {
	if len(body) == 0 {
		body = []byte("{}")
	}
	// Numbers stay json.Number so they are re-encoded exactly as sent.
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, ErrInvalidInput
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, ErrInvalidInput
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, ErrInvalidInput
	}
	clean, _ := s.Sanitize(obj).(map[string]any)

	if v, present := clean["email"]; present && truthy(v) {
		if str, ok := v.(string); !ok || !sanitize.ValidEmail(str) {
			return nil, ErrInvalidEmail
		}
	}
	if v, present := clean["password"]; present && truthy(v) {
		if str, ok := v.(string); !ok || !sanitize.ValidPassword(str) {
			return nil, ErrInvalidPassword
		}
	}

	out, err := json.Marshal(clean)
	if err != nil {
		return nil, ErrInvalidInput
	}
	return out, nil
}

// truthy reports whether a decoded JSON value counts as set: not null, not
// false, not zero and not the empty string.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		return err != nil || f != 0
	case string:
		return t != ""
	default:
		return true
	}
}
