// Package netpolicy implements the outbound network policy gate (C2): host
// pattern matching, SSRF-safe IP classification, and the request decision
// algorithm shared by the HTTP/HTTPS forward proxy and the SOCKS5 listener.
package netpolicy

import (
	"net"
	"strings"
)

// normalizeHost trims whitespace, strips a trailing `:port` (when there is
// exactly one colon, so bare IPv6 literals are left alone), unwraps IPv6
// brackets, lowercases, and strips a trailing dot.
func normalizeHost(host string) string {
	host = strings.TrimSpace(host)

	if strings.HasPrefix(host, "[") {
		if end := strings.IndexByte(host, ']'); end != -1 {
			return normalizeDNSHost(host[1:end])
		}
	}

	if strings.Count(host, ":") == 1 {
		if idx := strings.IndexByte(host, ':'); idx != -1 {
			return normalizeDNSHost(host[:idx])
		}
	}

	return normalizeDNSHost(host)
}

func normalizeDNSHost(host string) string {
	host = strings.ToLower(host)
	return strings.TrimSuffix(host, ".")
}

// normalizePattern applies normalizeHost to the domain portion of a policy
// glob pattern, leaving a leading `*.`/`**.` wildcard prefix untouched.
func normalizePattern(pattern string) string {
	pattern = strings.TrimSpace(pattern)
	if pattern == "*" {
		return "*"
	}

	prefix := ""
	rest := pattern
	switch {
	case strings.HasPrefix(pattern, "**."):
		prefix, rest = "**.", pattern[3:]
	case strings.HasPrefix(pattern, "*."):
		prefix, rest = "*.", pattern[2:]
	}

	rest = normalizeHost(rest)
	return prefix + rest
}

// domainEqual reports whether two (already-normalized-or-not) domains are
// the same host, ignoring case and a trailing dot.
func domainEqual(a, b string) bool {
	return normalizeDNSHost(a) == normalizeDNSHost(b)
}

func isSubdomainOrEqual(child, parent string) bool {
	child = normalizeDNSHost(child)
	parent = normalizeDNSHost(parent)
	if child == parent {
		return true
	}
	return strings.HasSuffix(child, "."+parent)
}

func isStrictSubdomain(child, parent string) bool {
	child = normalizeDNSHost(child)
	parent = normalizeDNSHost(parent)
	return child != parent && strings.HasSuffix(child, "."+parent)
}

// matchPattern reports whether host matches the policy glob pattern, per the
// four supported forms: exact, `*.domain` (strict subdomains only),
// `**.domain` (apex and subdomains), and `*` (anything).
func matchPattern(pattern, host string) bool {
	pattern = normalizePattern(pattern)
	host = normalizeHost(host)

	switch {
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "**."):
		domain := pattern[3:]
		return isSubdomainOrEqual(host, domain)
	case strings.HasPrefix(pattern, "*."):
		domain := pattern[2:]
		return isStrictSubdomain(host, domain)
	default:
		return domainEqual(host, pattern)
	}
}

// matchAny reports whether host matches any of patterns.
func matchAny(patterns []string, host string) bool {
	for _, p := range patterns {
		if matchPattern(p, host) {
			return true
		}
	}
	return false
}

// isLoopbackHost reports whether host is the literal "localhost" or an IP
// literal in the loopback range, after stripping an IPv6 zone suffix.
func isLoopbackHost(host string) bool {
	host = normalizeHost(host)
	if host == "localhost" {
		return true
	}
	if idx := strings.IndexByte(host, '%'); idx != -1 {
		host = host[:idx]
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
