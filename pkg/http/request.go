package http

import (
	"net"
	"net/http"
	"strings"
)

const maxUserAgentLen = 512

// IPResolver extracts the real client IP. Forwarding headers are honoured
// only when the direct peer is inside one of the trusted proxy ranges.
type IPResolver struct {
	trusted []*net.IPNet
}

// NewIPResolver parses trustedProxies as CIDRs. Unparseable entries are
// returned in invalid and otherwise ignored.
func NewIPResolver(trustedProxies []string) (resolver *IPResolver, invalid []string) {
	resolver = &IPResolver{}
	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			invalid = append(invalid, cidr)
			continue
		}
		resolver.trusted = append(resolver.trusted, ipNet)
	}
	return resolver, invalid
}

// ClientIP walks X-Forwarded-For from the right, skipping trusted hops, then
// falls back to X-Real-IP and RemoteAddr. Entries left of the first untrusted
// hop are client-controlled and never used. A nil resolver trusts nothing.
func (ir *IPResolver) ClientIP(r *http.Request) string {
	remoteIP := remoteAddrIP(r)

	if ir == nil || !ir.isTrusted(remoteIP) {
		return remoteIP
	}

	if ip := ir.forwardedFor(r); ip != "" {
		return ip
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}

	return remoteIP
}

func (ir *IPResolver) forwardedFor(r *http.Request) string {
	var hops []string
	for _, value := range r.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(value, ",")...)
	}

	// innermost trusted hop, used when every entry is a proxy
	var lastTrusted string
	for i := len(hops) - 1; i >= 0; i-- {
		ip := strings.TrimSpace(hops[i])
		if net.ParseIP(ip) == nil {
			break
		}
		if !ir.isTrusted(ip) {
			return ip
		}
		lastTrusted = ip
	}
	return lastTrusted
}

func (ir *IPResolver) isTrusted(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, ipNet := range ir.trusted {
		if ipNet.Contains(parsed) {
			return true
		}
	}
	return false
}

// UserAgent returns the request's User-Agent, truncated for storage.
func UserAgent(r *http.Request) string {
	ua := r.UserAgent()
	if len(ua) > maxUserAgentLen {
		return ua[:maxUserAgentLen]
	}
	return ua
}

func remoteAddrIP(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}
