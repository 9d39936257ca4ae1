package validation

import (
	"fmt"
	"unicode/utf8"

	dErrors "thgate/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize is the maximum accepted request body (64 KB). Login and
	// refresh payloads are a few hundred bytes.
	MaxBodySize = 64 * 1024
)

// String length limits applied before any expensive work (bcrypt, JWT parsing).
const (
	MaxEmailLength = 254

	// bcrypt ignores input past 72 bytes; longer passwords are rejected
	// rather than silently truncated.
	MaxPasswordLength = 72

	MaxTokenLength = 4096

	MaxFullNameLength = 200
)

// CheckStringLength fails with CodeValidation when value has more than max characters.
func CheckStringLength(fieldName, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// CheckByteLength fails with CodeValidation when value is longer than max bytes.
func CheckByteLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}
