// Package sanitize strips unsafe markup from user-supplied text before it is
// stored.
//
// Two policies are used:
//   - Text: every tag removed. Titles, locations, names.
//   - HTML: safe formatting kept (<p>, <b>, <a href>, lists). Event descriptions.
//
// Both run on the way IN, so every reader of the database (API, seed output,
// a future frontend) sees already-cleaned values.
package sanitize

import (
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	ugcPolicy    = bluemonday.UGCPolicy()
)

// Text removes all HTML and trims surrounding whitespace.
func Text(input string) string {
	return strings.TrimSpace(strictPolicy.Sanitize(input))
}

// HTML keeps user-generated-content formatting and drops scripts, iframes,
// event handler attributes and inline styles.
func HTML(input string) string {
	return strings.TrimSpace(ugcPolicy.Sanitize(input))
}

// URL validates a link field. Anything that is not an absolute http(s) URL,
// or that carries markup characters, becomes the empty string. URLs are not
// run through the HTML policies because those would escape "&" in queries.
func URL(input string) string {
	s := strings.TrimSpace(input)
	if s == "" || strings.ContainsAny(s, "<>\"' \t\n") {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return s
}
