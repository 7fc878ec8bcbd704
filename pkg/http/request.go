package http

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// IPConfig holds the proxies whose forwarding headers are believed
type IPConfig struct {
	TrustedProxies []string // CIDR ranges of trusted proxies

	prefixes []netip.Prefix
}

// NewIPConfig parses the trusted proxy ranges once. A bare address is
// treated as a single-host range.
func NewIPConfig(trustedProxies []string) (*IPConfig, error) {
	cfg := &IPConfig{TrustedProxies: trustedProxies}
	for _, raw := range trustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		prefix, err := parsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		cfg.prefixes = append(cfg.prefixes, prefix)
	}
	return cfg, nil
}

func parsePrefix(raw string) (netip.Prefix, error) {
	if strings.Contains(raw, "/") {
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return netip.Prefix{}, err
		}
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// ExtractClientIP returns the address of the client that made the request.
// Forwarding headers are only consulted when the direct peer is a trusted
// proxy, so a client cannot choose the address its login is recorded under.
//
// X-Forwarded-For is walked right to left, skipping trusted proxies; the
// first untrusted hop is the client. X-Real-IP is the fallback, then RemoteAddr.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config == nil || !config.isTrusted(remoteIP) {
		return remoteIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			addr, err := netip.ParseAddr(hop)
			if err != nil {
				break
			}
			if !config.isTrusted(addr.Unmap().String()) {
				return addr.Unmap().String()
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if addr, err := netip.ParseAddr(xri); err == nil {
			return addr.Unmap().String()
		}
	}

	return remoteIP
}

// getRemoteAddr extracts the IP address from RemoteAddr (removing port if present)
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap().String()
	}
	return host
}

// isTrusted reports whether ip falls inside a trusted proxy range
func (c *IPConfig) isTrusted(ip string) bool {
	prefixes := c.prefixes
	if prefixes == nil && len(c.TrustedProxies) > 0 {
		// Built as a literal rather than with NewIPConfig
		parsed, err := NewIPConfig(c.TrustedProxies)
		if err != nil {
			return false
		}
		prefixes = parsed.prefixes
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, prefix := range prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
