// Package pathexpr compiles the router's declarative path expressions —
// static mounts, named parameters, and bounded/unbounded trailing
// wildcards — into anchored regular expressions.
package pathexpr

import (
	"fmt"
	"regexp"
	"strings"
)

// Compiled is an immutable compiled path expression: a regular expression
// anchored at the start of an incoming URL path, whose first capture group
// captures the mount actual, plus the metadata the route table needs to
// rank routes.
type Compiled struct {
	Expr            string
	Matcher         *regexp.Regexp
	IsStaticMount   bool
	StaticMount     string
	BaseSpecificity int
}

// Error reports a malformed path expression.
type Error struct {
	Expr string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid path expression %q: %v", e.Expr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var trailingWildcardRe = regexp.MustCompile(`^:([A-Za-z0-9_]+)([*+])$`)

// Compile parses a path expression into a matcher plus specificity score.
func Compile(expr string) (*Compiled, error) {
	norm, err := normalize(expr)
	if err != nil {
		return nil, &Error{Expr: expr, Err: err}
	}

	base := baseSpecificity(norm)

	if !strings.ContainsAny(norm, ":()\\") {
		pattern := "^(" + regexp.QuoteMeta(norm) + ")(?:/.*)?$"
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, &Error{Expr: expr, Err: err}
		}
		return &Compiled{
			Expr:            norm,
			Matcher:         re,
			IsStaticMount:   true,
			StaticMount:     norm,
			BaseSpecificity: base,
		}, nil
	}

	parts := splitSegments(norm)
	if len(parts) == 0 {
		return nil, &Error{Expr: expr, Err: fmt.Errorf("path expression has no segments")}
	}

	last := parts[len(parts)-1]
	marker, _ := trailingWildcard(last)

	toTranslate := parts
	if marker != 0 {
		toTranslate = parts[:len(parts)-1]
	}

	segs := make([]string, 0, len(toTranslate))
	for _, seg := range toTranslate {
		t, err := translateSegment(seg)
		if err != nil {
			return nil, &Error{Expr: expr, Err: err}
		}
		segs = append(segs, t)
	}
	mountPattern := "/" + strings.Join(segs, "/")

	var pattern string
	if marker == '+' {
		pattern = "^(" + mountPattern + ")/.+$"
	} else {
		// No trailing wildcard, or a '*' wildcard: both permit zero or
		// more further path segments after the mount.
		pattern = "^(" + mountPattern + ")(?:/.*)?$"
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &Error{Expr: expr, Err: err}
	}

	return &Compiled{
		Expr:            norm,
		Matcher:         re,
		IsStaticMount:   false,
		BaseSpecificity: base,
	}, nil
}

func normalize(expr string) (string, error) {
	if expr == "" {
		return "", fmt.Errorf("path expression must not be empty")
	}
	if !strings.HasPrefix(expr, "/") {
		expr = "/" + expr
	}
	if expr != "/" {
		trimmed := strings.TrimRight(expr, "/")
		if trimmed == "" {
			trimmed = "/"
		}
		expr = trimmed
	}
	return expr, nil
}

// baseSpecificity is the byte length of the literal prefix before the
// first unescaped ':'; the full length if there is none.
func baseSpecificity(norm string) int {
	i := 0
	for i < len(norm) {
		c := norm[i]
		if c == '\\' && i+1 < len(norm) {
			i += 2
			continue
		}
		if c == ':' {
			return i
		}
		i++
	}
	return len(norm)
}

func splitSegments(norm string) []string {
	raw := strings.Split(norm, "/")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// trailingWildcard reports whether seg is, in its entirety, a named
// parameter followed by '*' or '+' with no constraint.
func trailingWildcard(seg string) (marker byte, name string) {
	m := trailingWildcardRe.FindStringSubmatch(seg)
	if m == nil {
		return 0, ""
	}
	return m[2][0], m[1]
}

func isNameChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// translateSegment turns one literal/parameter segment into its regex
// fragment, scanning left to right: backslash escapes the next
// character, ':' begins a parameter name optionally followed by a
// balanced, backslash-aware `(...)` constraint, and everything else is a
// regex-escaped literal.
func translateSegment(seg string) (string, error) {
	var out strings.Builder
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			out.WriteString(regexp.QuoteMeta(lit.String()))
			lit.Reset()
		}
	}

	i := 0
	for i < len(seg) {
		c := seg[i]
		switch {
		case c == '\\':
			if i+1 >= len(seg) {
				return "", fmt.Errorf("trailing backslash in segment %q", seg)
			}
			lit.WriteByte(seg[i+1])
			i += 2

		case c == ':':
			flush()
			j := i + 1
			nameStart := j
			for j < len(seg) && isNameChar(seg[j]) {
				j++
			}
			if j == nameStart {
				return "", fmt.Errorf("expected parameter name after ':' in segment %q", seg)
			}
			i = j
			if i < len(seg) && seg[i] == '(' {
				frag, next, err := consumeParen(seg, i)
				if err != nil {
					return "", err
				}
				out.WriteString("(")
				out.WriteString(unescapeOnce(frag))
				out.WriteString(")")
				i = next
			} else {
				out.WriteString("([^/]+)")
			}

		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush()
	return out.String(), nil
}

// consumeParen reads a balanced, backslash-aware parenthesized fragment
// starting at seg[open] == '(' and returns its interior (excluding the
// outer parens) plus the index just past the closing ')'.
func consumeParen(seg string, open int) (frag string, next int, err error) {
	depth := 0
	i := open
	start := open + 1
	for i < len(seg) {
		c := seg[i]
		switch {
		case c == '\\':
			if i+1 >= len(seg) {
				return "", 0, fmt.Errorf("trailing backslash inside constraint in segment %q", seg)
			}
			i += 2
		case c == '(':
			depth++
			i++
		case c == ')':
			depth--
			if depth == 0 {
				return seg[start:i], i + 1, nil
			}
			i++
		default:
			i++
		}
	}
	return "", 0, fmt.Errorf("unterminated '(' in segment %q", seg)
}

func unescapeOnce(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		if s[i] == '\\' && i+1 < len(s) {
			b.WriteByte(s[i+1])
			i += 2
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}
