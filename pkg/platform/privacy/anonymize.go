// Package privacy reduces client identifiers to forms that are safe to log.
package privacy

import (
	"net/netip"
	"strings"
)

// AnonymizeIP truncates an address to its network prefix: /24 for IPv4
// (including IPv4-mapped IPv6) and /48 for IPv6.
//
// Client identities arrive from forwarded headers, so a value may be a
// comma-separated chain; only the first hop is considered.
//
// Returns "unknown" for empty or sentinel input and "invalid" for values
// that are not addresses.
func AnonymizeIP(ip string) string {
	ip, _, _ = strings.Cut(ip, ",")
	ip = strings.TrimSpace(ip)
	if ip == "" || ip == "unknown" {
		return "unknown"
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap().WithZone("")

	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}

// MaskEmail keeps the first character of the local part and the full domain:
// "demo@themehackers.com" -> "d***@themehackers.com". Values without an '@'
// are fully masked.
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}
