package ingestion

import (
	"net/url"
	"path"
	"strings"
)

// SourceInfo is a display label for a loaded page, used when listing the
// sources an answer drew on.
type SourceInfo struct {
	// URL is the page URL as entered.
	URL string `json:"url"`
	// Host is the hostname without a leading "www.".
	Host string `json:"host"`
	// Label is the page title, or a readable form of the last path segment.
	Label string `json:"label"`
}

// indexPages are path segments that say nothing about the page.
var indexPages = map[string]bool{
	"index":   true,
	"default": true,
	"amp":     true,
	"article": true,
	"story":   true,
}

// InferSource builds a SourceInfo from a URL and an optional page title.
// The title wins when present. Otherwise the last meaningful path segment is
// de-slugged ("rate-hike_explained.html" → "rate hike explained"), falling
// back to the host.
func InferSource(rawURL, title string) SourceInfo {
	info := SourceInfo{URL: rawURL, Label: strings.TrimSpace(title)}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		if info.Label == "" {
			info.Label = rawURL
		}
		return info
	}
	info.Host = strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	if info.Label != "" {
		return info
	}

	segments := trimSegments(parsed.Path)
	for i := len(segments) - 1; i >= 0; i-- {
		seg := strings.TrimSuffix(segments[i], path.Ext(segments[i]))
		if seg == "" || indexPages[strings.ToLower(seg)] || isNumeric(seg) {
			continue
		}
		info.Label = deslug(seg)
		return info
	}
	info.Label = info.Host
	return info
}

// deslug replaces slug separators with spaces.
func deslug(s string) string {
	s = strings.NewReplacer("-", " ", "_", " ", "+", " ").Replace(s)
	if u, err := url.PathUnescape(s); err == nil {
		s = u
	}
	return strings.Join(strings.Fields(s), " ")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// trimSegments splits a URL path into non-empty segments.
func trimSegments(p string) []string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
