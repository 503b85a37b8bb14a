package model

import (
	"net/url"
	"strings"
)

var strippableLeadingLabels = map[string]bool{
	"web":    true,
	"m":      true,
	"mobile": true,
	"www":    true,
}

// NormalizeDomain implements invariant (iv): lowercase, strip scheme, strip
// "www.", and strip one leading label from {web, m, mobile, www}. Idempotent:
// NormalizeDomain(NormalizeDomain(x)) == NormalizeDomain(x).
func NormalizeDomain(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	// Strip scheme if present.
	if idx := strings.Index(s, "://"); idx >= 0 {
		s = s[idx+3:]
	}

	// Drop path/query/fragment if a full URL slipped in.
	if idx := strings.IndexAny(s, "/?#"); idx >= 0 {
		s = s[:idx]
	}

	// Drop userinfo and port.
	if idx := strings.Index(s, "@"); idx >= 0 {
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, ":"); idx >= 0 {
		s = s[:idx]
	}

	s = strings.ToLower(s)

	if strings.HasPrefix(s, "www.") {
		s = strings.TrimPrefix(s, "www.")
	}

	labels := strings.Split(s, ".")
	if len(labels) > 1 && strippableLeadingLabels[labels[0]] {
		s = strings.Join(labels[1:], ".")
	}

	return s
}

// Host extracts and normalizes the host from a URL string. Returns "" if the
// URL cannot be parsed and carries no usable host fragment.
func Host(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return NormalizeDomain(u.Host)
	}
	return NormalizeDomain(rawURL)
}

// NormalizeURL reduces a URL to scheme://host/path for comparison purposes,
// used by KnowledgeBase.GetKnownURL's fallback match.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	path := strings.TrimRight(u.Path, "/")
	return scheme + "://" + NormalizeDomain(u.Host) + path
}
