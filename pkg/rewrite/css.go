package rewrite

import (
	"regexp"
	"strings"

	"github.com/chr33s/workerstack/pkg/assets"
)

// RewriteCSS rewrites `url(...)` and `@import` targets whose path begins
// with a known asset prefix so that they resolve under mount. Targets
// without a recognized asset prefix are left unchanged. It operates
// line-agnostically on the full text, so matching targets inside comments
// or unrelated quoted strings are rewritten too.
func RewriteCSS(body, mount string, set *assets.Set) string {
	alt := assetAlternation(set)
	if alt == "" {
		return body
	}

	insert := mount
	if mount == "/" {
		insert = ""
	}

	urlRe := regexp.MustCompile(`url\(\s*(['"]?)(/(?:` + alt + `)/)`)
	importRe := regexp.MustCompile(`@import\s+(['"])(/(?:` + alt + `)/)`)

	body = urlRe.ReplaceAllString(body, "url(${1}"+insert+"${2}")
	body = importRe.ReplaceAllString(body, "@import ${1}"+insert+"${2}")
	return body
}

// assetAlternation builds a `|`-joined, regex-escaped alternation of
// asset prefix bodies (each prefix with its leading/trailing '/'
// stripped), e.g. "assets|static|_next".
func assetAlternation(set *assets.Set) string {
	prefixes := set.List()
	parts := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		trimmed := strings.Trim(p, "/")
		if trimmed == "" {
			continue
		}
		parts = append(parts, regexp.QuoteMeta(trimmed))
	}
	return strings.Join(parts, "|")
}
