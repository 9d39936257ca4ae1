package models

import (
	"strings"
)

// KeyPrefix represents the type of rate limit key.
type KeyPrefix string

const KeyPrefixClient KeyPrefix = "client"

// ClientKey is a value object encapsulating rate-limit key construction for
// a client identity. Identities come from forwarded headers, so they are
// attacker-controlled and must be escaped before use as a storage key.
type ClientKey struct {
	identity string
}

// NewClientKey builds the storage key for a client identity.
func NewClientKey(identity string) ClientKey {
	return ClientKey{identity: sanitizeKeySegment(identity)}
}

// String returns the formatted key for storage lookup.
func (k ClientKey) String() string {
	return string(KeyPrefixClient) + ":" + k.identity
}

// sanitizeKeySegment escapes delimiter characters so that no two distinct
// identities produce the same key.
//
// Escape rules (order matters):
//  1. Escape '_' to '__' (escape the escape character first)
//  2. Escape ':' to '_c' (escape the delimiter)
//
// Examples:
//   - "::1"         → "_c_c1"
//   - "a_b"         → "a__b"
//   - "a_:b"        → "a___cb"
func sanitizeKeySegment(s string) string {
	s = strings.ReplaceAll(s, "_", "__")
	s = strings.ReplaceAll(s, ":", "_c")
	return s
}
