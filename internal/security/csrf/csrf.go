// Package csrf checks that state-changing requests carry a CSRF token.
//
// The check is on presence and length only. Tokens are generated by the
// browser per page load and no server-side copy exists, so a token cannot be
// matched against anything; this is weaker than a double-submit cookie.
package csrf

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "thgate/pkg/domain-errors"
)

const (
	MinTokenLength = 32
	HeaderName     = "X-CSRF-Token"
	BodyField      = "csrf_token"
)

var (
	ErrTokenMissing = dErrors.New(dErrors.CodeForbidden, "CSRF token missing")
	ErrTokenInvalid = dErrors.New(dErrors.CodeForbidden, "Invalid CSRF token")
	ErrInvalidBody  = dErrors.New(dErrors.CodeBadRequest, "Invalid request body")
)

// SafeMethod reports whether method never changes state and is exempt.
func SafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// Validate checks the token for a request. body is the raw request body; an
// empty body is treated as an empty JSON object. The body field takes
// precedence over the header.
func Validate(method string, body []byte, header http.Header) error {
	if SafeMethod(method) {
		return nil
	}

	token, present, err := tokenFromBody(body)
	if err != nil {
		return err
	}
	if !present {
		token = header.Get(HeaderName)
		present = token != ""
	}
	if !present {
		return ErrTokenMissing
	}
	if utf8.RuneCountInString(token) < MinTokenLength {
		return ErrTokenInvalid
	}
	return nil
}

// tokenFromBody extracts csrf_token from a JSON object body. A non-object
// body is valid JSON without a token. A token that is present but not a
// string yields an empty token, which fails the length check.
func tokenFromBody(body []byte) (token string, present bool, err error) {
	if len(body) == 0 {
		return "", false, nil
	}
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", false, ErrInvalidBody
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return "", false, nil
	}
	v, ok := obj[BodyField]
	if !ok || v == nil {
		return "", false, nil
	}
	s, isString := v.(string)
	if isString && s == "" {
		return "", false, nil
	}
	return s, true, nil
}

// GenerateToken returns a fresh 32-character alphanumeric token for clients
// that cannot produce their own.
func GenerateToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "generate csrf token")
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

