package orchestrator

import (
	"net/url"
	"regexp"
)

// DefaultFilename matches the generation service's default artifact name.
const DefaultFilename = "ebook_gerado.pdf"

// Matches the RFC 5987 extended form first, then the plain
// quoted/unquoted form. Group 1 carries the percent-encoded extended
// value, group 2 the plain value.
var dispositionPattern = regexp.MustCompile(`filename\*=UTF-8''([^;]+)|filename="?([^";]+)"?`)

// extractFilename pulls the suggested filename out of a
// Content-Disposition header value. A missing header, an unmatched
// grammar, or any anomaly falls back to DefaultFilename; this never
// fails the submission.
func extractFilename(disposition string) string {
	if disposition == "" {
		return DefaultFilename
	}
	m := dispositionPattern.FindStringSubmatch(disposition)
	if m == nil {
		return DefaultFilename
	}
	if m[1] != "" {
		decoded, err := url.PathUnescape(m[1])
		if err != nil {
			// Malformed percent-encoding: keep the raw match rather
			// than losing the whole result.
			return m[1]
		}
		return decoded
	}
	if m[2] != "" {
		return m[2]
	}
	return DefaultFilename
}
