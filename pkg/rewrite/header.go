// Package rewrite rewrites response headers and bodies so that an
// upstream worker mounted at a sub-path behaves as if it were mounted
// there natively: redirects, cookie scopes, HTML attribute references,
// and CSS asset references are all translated relative to mount.
//
// Every function in this package takes mount in its canonical form: "/"
// at the root mount, or a non-empty prefix with no trailing slash
// otherwise (e.g. "/app"). Callers are expected to pass the MountActual
// captured by the route table, never an empty string.
package rewrite

import (
	"net/url"
	"regexp"
	"strings"
)

// RewriteLocation rewrites a Location header value so that an
// upstream-relative or same-origin-absolute redirect keeps pointing at
// the mounted sub-path. Values that don't parse, or whose origin differs
// from the incoming request's, pass through unchanged.
func RewriteLocation(location string, reqURL *url.URL, mount string) string {
	parsed, err := url.Parse(location)
	if err != nil {
		return location
	}

	if mount == "/" {
		return location
	}

	sameOrigin := (parsed.Scheme == "" && parsed.Host == "") ||
		(parsed.Scheme == reqURL.Scheme && parsed.Host == reqURL.Host)
	if !sameOrigin {
		return location
	}

	if !strings.HasPrefix(parsed.Path, "/") {
		return location
	}

	parsed.Path = mount + parsed.Path
	if parsed.Scheme == "" && parsed.Host == "" {
		parsed.Scheme = reqURL.Scheme
		parsed.Host = reqURL.Host
	}
	return parsed.String()
}

// setCookiePathRe matches a "; Path=/" cookie attribute (case-insensitive,
// optional whitespace before "Path"), anchored so it only fires when the
// attribute value is exactly "/".
var setCookiePathRe = regexp.MustCompile(`(?i);(\s*)Path=/(;|$)`)

// RewriteSetCookie rewrites the Path scope of every cookie whose Path
// attribute is exactly "/" to "<mount>/", leaving all other cookies (and
// cookies scoped to some other path) untouched. The slice is rebuilt from
// scratch to preserve ordering.
func RewriteSetCookie(cookies []string, mount string) []string {
	if mount == "/" {
		out := make([]string, len(cookies))
		copy(out, cookies)
		return out
	}

	out := make([]string, len(cookies))
	for i, c := range cookies {
		out[i] = setCookiePathRe.ReplaceAllString(c, ";${1}Path="+mount+"/${2}")
	}
	return out
}
