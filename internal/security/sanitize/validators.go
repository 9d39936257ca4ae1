package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxEmailLength    = 254
	MinPasswordLength = 8
)

// passwordSymbols is the fixed set a password must draw at least one symbol from.
const passwordSymbols = `!@#$%^&*(),.?":{}|<>`

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether s has a single '@', no whitespace, a dot in the
// domain and at most 254 characters.
func ValidEmail(s string) bool {
	return len(s) <= MaxEmailLength && emailPattern.MatchString(s)
}

// ValidPassword reports whether s has at least 8 characters including an
// upper-case letter, a lower-case letter, a digit and a symbol.
func ValidPassword(s string) bool {
	if utf8.RuneCountInString(s) < MinPasswordLength {
		return false
	}
	var upper, lower, digit, symbol bool
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		}
	}
	return upper && lower && digit && symbol
}
