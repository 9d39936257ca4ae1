package metadata

import (
	"net/http"
	"net/netip"
	"strings"

	"thgate/pkg/requestcontext"
)

// MaxHeaderLength bounds forwarding headers before they are parsed.
const MaxHeaderLength = 500

// identityHeaders are consulted in order; the first non-empty one wins.
var identityHeaders = []string{"X-Forwarded-For", "X-Real-IP", "X-Client-IP"}

// Config holds configuration for the metadata middleware.
type Config struct {
	// TrustedProxies restricts which peers may set forwarding headers. When
	// empty, forwarding headers are always honored: the service is expected
	// to sit behind an edge proxy that sets them.
	TrustedProxies []netip.Prefix
}

func DefaultConfig() *Config {
	return &Config{}
}

type Middleware struct {
	config *Config
}

func NewMiddleware(cfg *Config) *Middleware {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Middleware{config: cfg}
}

// Handler resolves the client identity and User-Agent and stores them in
// the request context.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), m.ClientIdentity(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIdentity returns the first hop of X-Forwarded-For, then X-Real-IP,
// then X-Client-IP. Clients sending none of them share the "unknown"
// identity. With trusted proxies configured, an untrusted peer is identified
// by its socket address instead.
func (m *Middleware) ClientIdentity(r *http.Request) string {
	if len(m.config.TrustedProxies) > 0 {
		remoteIP := parseRemoteAddr(r.RemoteAddr)
		if !m.isTrustedProxy(remoteIP) {
			if remoteIP == "" {
				return requestcontext.UnknownClient
			}
			return remoteIP
		}
	}
	return FromHeaders(r.Header)
}

// FromHeaders applies the header precedence without any proxy check.
func FromHeaders(h http.Header) string {
	for _, name := range identityHeaders {
		v := h.Get(name)
		if v == "" || len(v) > MaxHeaderLength {
			continue
		}
		first, _, _ := strings.Cut(v, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return requestcontext.UnknownClient
}

func (m *Middleware) isTrustedProxy(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, prefix := range m.config.TrustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// parseRemoteAddr strips the port from RemoteAddr.
func parseRemoteAddr(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	if ap, err := netip.ParseAddrPort(remoteAddr); err == nil {
		return ap.Addr().String()
	}
	if addr, err := netip.ParseAddr(remoteAddr); err == nil {
		return addr.String()
	}
	return ""
}
