package shadowban

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// cookieURLs are the origins whose cookie jars may carry session cookies.
var cookieURLs = []string{"https://api.twitter.com", "https://twitter.com"}

// GenerateCT0 generates a random 32-byte hex string for use as a ct0 CSRF token.
func GenerateCT0() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return strings.Repeat("0", 64)
	}
	return hex.EncodeToString(b)
}

// cookieValue returns the first non-empty value of a cookie across cookieURLs.
func cookieValue(t Transport, name string) string {
	for _, u := range cookieURLs {
		if v := t.GetCookieValue(u, name); v != "" {
			return v
		}
	}
	return ""
}

// extractCT0FromHeaders parses the ct0 value from a set-cookie response header.
func extractCT0FromHeaders(headers map[string]string) string {
	for _, part := range strings.Split(headers["set-cookie"], ";") {
		part = strings.TrimSpace(part)
		if val, ok := strings.CutPrefix(part, "ct0="); ok && val != "" {
			return val
		}
	}
	return ""
}
