package reports

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// ValidateImageURL applies the SSRF defenses to a user-supplied image URL:
// https-or-http only, and no loopback, link-local, or private-range hosts.
// Hostnames are checked literally; DNS rebinding is out of scope because the
// server never fetches the image itself.
func ValidateImageURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid image URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("image URL must use http or https")
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("image URL must include a host")
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return fmt.Errorf("image URL host is not allowed")
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("image URL host is not allowed")
		}
	}
	return nil
}

// parseTimestamp accepts the client-side timestamp formats.
func parseTimestamp(value string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
