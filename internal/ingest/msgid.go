package ingest

import (
	"regexp"
	"strings"
)

var angleToken = regexp.MustCompile(`<([^>]+)>`)

// NormalizeMessageID canonicalizes an email identifier header value: angle
// brackets stripped, case folded, and when several ids are present (a
// References-style header) only the last one is kept. Returns "" for an empty
// or unusable value.
func NormalizeMessageID(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	matches := angleToken.FindAllStringSubmatch(value, -1)
	if len(matches) > 0 {
		return strings.ToLower(strings.TrimSpace(matches[len(matches)-1][1]))
	}
	value = strings.TrimPrefix(value, "<")
	value = strings.TrimSuffix(value, ">")
	return strings.ToLower(strings.TrimSpace(value))
}
