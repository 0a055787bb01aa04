// Package fetch retrieves remote documents over HTTPS with SSRF protection:
// private and local targets are refused both before the request and again
// after DNS resolution, so rebinding cannot reach an internal address.
package fetch

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"
)

// ErrBlockedURL is returned for URLs the fetcher refuses to contact.
var ErrBlockedURL = errors.New("blocked URL")

// Pre-compiled CIDR networks for reserved ranges not covered by net.IP helpers.
var (
	cgnat    = mustCIDR("100.64.0.0/10") // Carrier-grade NAT
	v6unique = mustCIDR("fc00::/7")      // IPv6 unique local
	v6link   = mustCIDR("fe80::/10")     // IPv6 link-local
)

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic("invalid CIDR " + s + ": " + err.Error())
	}
	return n
}

// IsURL reports whether arg looks like a remote document reference rather
// than a local path.
func IsURL(arg string) bool {
	lower := strings.ToLower(arg)
	return strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://")
}

// ValidateURL validates a URL for security (SSRF prevention).
// It requires HTTPS and blocks localhost, private IPs, and local domains.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: invalid URL: %v", ErrBlockedURL, err)
	}

	if parsed.Scheme != "https" {
		return fmt.Errorf("%w: only HTTPS URLs are allowed", ErrBlockedURL)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrBlockedURL)
	}

	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: localhost URLs are not allowed", ErrBlockedURL)
	}

	if strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return fmt.Errorf("%w: local domain URLs are not allowed", ErrBlockedURL)
	}

	if ip := net.ParseIP(host); ip != nil && IsPrivateIP(ip) {
		return fmt.Errorf("%w: private IP addresses are not allowed", ErrBlockedURL)
	}

	return nil
}

// IsPrivateIP checks if an IP is in private/reserved ranges.
// It handles IPv4, IPv6, and IPv6-mapped IPv4 addresses.
func IsPrivateIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}

	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}

	return cgnat.Contains(ip) || v6unique.Contains(ip) || v6link.Contains(ip)
}

// FilenameFromURL returns the last path segment of a URL, or the host when
// the path is empty. Parsers use it for extension fallback and IDs.
func FilenameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "document"
	}
	if base := path.Base(parsed.Path); base != "." && base != "/" && base != "" {
		return base
	}
	if host := parsed.Hostname(); host != "" {
		return host
	}
	return "document"
}
