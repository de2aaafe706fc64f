// Package urlutil resolves page-relative references and inspects resource URLs.
package urlutil

import (
	"net/url"
	"regexp"
	"strings"
)

var extensionPattern = regexp.MustCompile(`\.([a-zA-Z0-9]+)$`)

// Resolve resolves ref against base. It returns false when either cannot be
// parsed or base is not absolute.
func Resolve(ref, base string) (string, bool) {
	baseURL, err := url.Parse(strings.TrimSpace(base))
	if err != nil || !baseURL.IsAbs() {
		return "", false
	}

	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", false
	}

	return baseURL.ResolveReference(refURL).String(), true
}

// Extension returns the lower-cased extension of the URL path without the dot,
// or an empty string.
func Extension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	m := extensionPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// IsHTTP reports whether rawURL is an absolute http or https URL.
func IsHTTP(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// IsBlob reports whether rawURL uses the blob scheme.
func IsBlob(rawURL string) bool {
	return strings.HasPrefix(strings.ToLower(rawURL), "blob:")
}

// Hostname returns the host of rawURL without port. For blob URLs the host of
// the embedded origin is returned.
func Hostname(rawURL string) string {
	if IsBlob(rawURL) {
		rawURL = rawURL[len("blob:"):]
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Path returns the decoded path of rawURL, or "" when it cannot be parsed.
func Path(rawURL string) string {
	if IsBlob(rawURL) {
		rawURL = rawURL[len("blob:"):]
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Path
}
