package asset

import (
	"net/url"
	"strings"
)

// NormalizeURL strips the query string from a URL. Asset files are often
// requested with cache-busting or signing parameters tacked on, and every
// index in the system is keyed on the bare URL.
func NormalizeURL(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}

// DecodePath percent-decodes a normalized URL into the relative path used
// inside a pack container. A URL that does not decode is used as is.
func DecodePath(u string) string {
	p, err := url.PathUnescape(u)
	if err != nil {
		return u
	}
	return p
}
