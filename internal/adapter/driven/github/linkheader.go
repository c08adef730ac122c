package github

import (
	"regexp"
	"strings"
)

// Cursor is the opaque URL of the next page of a listing, taken verbatim from
// the Link response header. Query parameters of the original request are
// already embedded in it.
type Cursor string

// linkEntryPattern matches one `<url>; param; param` entry of a Link header.
var linkEntryPattern = regexp.MustCompile(`<([^>]*)>((?:\s*;\s*[^;,<]*)*)`)

// ParseNextLink returns the URL tagged rel="next" in a Link header value,
// e.g. `<https://api.github.com/x?page=2>; rel="next", <...>; rel="last"`.
func ParseNextLink(header string) (Cursor, bool) {
	if header == "" {
		return "", false
	}

	for _, m := range linkEntryPattern.FindAllStringSubmatch(header, -1) {
		if hasRel(m[2], "next") && m[1] != "" {
			return Cursor(strings.TrimSpace(m[1])), true
		}
	}

	return "", false
}

// hasRel reports whether the parameter list contains rel=want. The rel value
// may be quoted and may hold several space-separated relation types.
func hasRel(params, want string) bool {
	for _, param := range strings.Split(params, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "rel") {
			continue
		}
		for _, rel := range strings.Fields(strings.Trim(strings.TrimSpace(value), `"`)) {
			if strings.EqualFold(rel, want) {
				return true
			}
		}
	}
	return false
}
