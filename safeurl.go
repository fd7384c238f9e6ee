package main

import (
	"net/url"
	"strings"
)

// isSafeURL is the trust boundary for every externally supplied reference.
// Only absolute http(s) URLs pointing at the allowed domain or one of its
// subdomains pass; anything else is rejected, never repaired.
func isSafeURL(domain, raw string) bool {
	if raw == "" {
		return false
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}

	host := parsed.Hostname()
	if host == "" {
		return false
	}

	return host == domain || strings.HasSuffix(host, "."+domain)
}

func (c *Config) isSafeURL(raw string) bool {
	return isSafeURL(c.wikiDomain, raw)
}

// normalizedPath returns the decoded, lowercased path component of a URL,
// used to decide whether a move landed on the target page.
func normalizedPath(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}

	return strings.ToLower(parsed.Path)
}

// titleFromURL derives the article title recorded for guess checking: the
// decoded final path segment with underscores restored to spaces.
func titleFromURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	segments := strings.Split(parsed.Path, "/")
	last := segments[len(segments)-1]

	return strings.ReplaceAll(last, "_", " ")
}
