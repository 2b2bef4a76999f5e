package classifier

import (
	"regexp"
	"strings"
)

// Octet ranges are deliberately not validated: 999.1.1.1 still routes to the
// reputation handler, which reports the lookup result.
var (
	ipv4Pattern  = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	urlPattern   = regexp.MustCompile(`https?://[^\s<>"']+`)
	emailPattern = regexp.MustCompile(`<?\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b>?`)
)

// FirstIPv4 returns the first IPv4-looking literal in s, or "".
func FirstIPv4(s string) string {
	return ipv4Pattern.FindString(s)
}

// FirstURL returns the first http(s) URL in s without trailing punctuation, or "".
func FirstURL(s string) string {
	return strings.TrimRight(urlPattern.FindString(s), ".,;:!?)")
}

// FirstEmail returns the first email address in s without angle brackets, or "".
func FirstEmail(s string) string {
	return strings.Trim(emailPattern.FindString(s), "<>")
}

// HasIPOrURL reports whether s contains an IPv4 literal or an http(s) URL.
func HasIPOrURL(s string) bool {
	return ipv4Pattern.MatchString(s) || urlPattern.MatchString(s)
}
