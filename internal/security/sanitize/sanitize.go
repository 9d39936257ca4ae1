// Package sanitize strips markup from untrusted request values and checks
// credential shape.
package sanitize

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer cleans a decoded JSON value. Maps and slices are walked
// recursively, strings are cleaned and every other value is returned as is.
type Sanitizer interface {
	Sanitize(value any) any
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	anglePattern      = regexp.MustCompile(`[<>]`)
	jsSchemePattern   = regexp.MustCompile(`(?i)javascript:`)
	scriptOpenPattern = regexp.MustCompile(`(?i)<script`)
)

// Policy is the default Sanitizer: an allowlist HTML parse that keeps text
// only, followed by a denylist for fragments the parser leaves as text.
type Policy struct {
	html *bluemonday.Policy
}

type Option func(*Policy)

// WithoutHTMLParser disables the allowlist pass and keeps only the denylist.
func WithoutHTMLParser() Option {
	return func(p *Policy) {
		p.html = nil
	}
}

func New(opts ...Option) *Policy {
	p := &Policy{html: bluemonday.StrictPolicy()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Policy) Sanitize(value any) any {
	switch v := value.(type) {
	case string:
		return p.CleanString(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = p.Sanitize(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = p.Sanitize(item)
		}
		return out
	default:
		return value
	}
}

// CleanString repeats a cleaning pass until the string stops changing, so
// CleanString(CleanString(s)) == CleanString(s). A changing pass removes at
// least one byte, so len(s)+1 passes always reach the fixpoint.
func (p *Policy) CleanString(s string) string {
	for range len(s) + 1 {
		next := p.pass(s)
		if next == s {
			return s
		}
		s = next
	}
	return s
}

func (p *Policy) pass(s string) string {
	if p.html != nil {
		// The strict policy emits escaped text; unescape so entities like
		// &lt;script are exposed to the denylist below.
		s = html.UnescapeString(p.html.Sanitize(s))
	}
	s = tagPattern.ReplaceAllString(s, "")
	s = anglePattern.ReplaceAllString(s, "")
	s = jsSchemePattern.ReplaceAllString(s, "")
	s = scriptOpenPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
