// Package routetable compiles a list of route specs into a deterministic,
// longest-specific-prefix selector.
package routetable

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chr33s/workerstack/pkg/env"
	"github.com/chr33s/workerstack/pkg/pathexpr"
)

// ErrNoMatch is returned by Select when no route matches the incoming
// path and no root route is defined.
var ErrNoMatch = errors.New("no route matched")

// Error reports a rejected route spec: a missing binding or path, an
// unresolved binding, or an invalid path expression.
type Error struct {
	Key string
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Key, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Key, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Spec is a raw, uncompiled route entry as read from ROUTES.
type Spec struct {
	Binding string `json:"binding"`
	Path    string `json:"path"`
	Preload bool   `json:"preload,omitempty"`
}

// Route is a compiled, immutable route table entry.
type Route struct {
	Expr            string
	Matcher         *pathexpr.Compiled
	Binding         string
	Fetcher         env.Fetcher
	Preload         bool
	BaseSpecificity int
}

func (r *Route) isRoot() bool {
	return (r.Matcher.IsStaticMount && r.Matcher.StaticMount == "/") || r.Expr == "/"
}

// Table is an ordered, sorted sequence of compiled routes.
type Table struct {
	routes []*Route
	root   *Route
}

// Build validates specs against environment, compiles each path
// expression, and sorts the resulting table descending by
// (baseSpecificity, len(expr)).
func Build(specs []Spec, environment env.Map) (*Table, error) {
	if len(specs) == 0 {
		return nil, &Error{Key: "ROUTES", Msg: "route list must not be empty"}
	}

	routes := make([]*Route, 0, len(specs))
	var root *Route

	for _, spec := range specs {
		if spec.Binding == "" {
			return nil, &Error{Key: "ROUTES", Msg: "route entry missing \"binding\""}
		}
		if spec.Path == "" {
			return nil, &Error{Key: "ROUTES", Msg: "route entry missing \"path\""}
		}

		fetcher, ok := environment.Binding(spec.Binding)
		if !ok {
			return nil, &Error{Key: spec.Binding, Msg: "binding not found in environment"}
		}

		compiled, err := pathexpr.Compile(spec.Path)
		if err != nil {
			return nil, &Error{Key: "ROUTES", Msg: "invalid path expression " + spec.Path, Err: err}
		}

		route := &Route{
			Expr:            compiled.Expr,
			Matcher:         compiled,
			Binding:         spec.Binding,
			Fetcher:         fetcher,
			Preload:         spec.Preload,
			BaseSpecificity: compiled.BaseSpecificity,
		}
		routes = append(routes, route)
		if root == nil && route.isRoot() {
			root = route
		}
	}

	sort.SliceStable(routes, func(i, j int) bool {
		a, b := routes[i], routes[j]
		if a.BaseSpecificity != b.BaseSpecificity {
			return a.BaseSpecificity > b.BaseSpecificity
		}
		return len(a.Expr) > len(b.Expr)
	})

	return &Table{routes: routes, root: root}, nil
}

// Selection is the outcome of matching an incoming path against the
// table.
type Selection struct {
	Route       *Route
	MountActual string
}

// Select scans the table for the highest-scoring match of path,
// falling back to the root route (mount "/") if nothing else matched,
// and returning ErrNoMatch if the table has neither.
func (t *Table) Select(path string) (*Selection, error) {
	var best *Selection
	bestScore := -1

	for _, r := range t.routes {
		m := r.Matcher.Matcher.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		mountActual := m[1]
		score := len(mountActual)*1_000_000 + r.BaseSpecificity*1_000 + len(r.Expr)
		if score > bestScore {
			bestScore = score
			best = &Selection{Route: r, MountActual: mountActual}
		}
	}

	if best != nil {
		return best, nil
	}

	if t.root != nil {
		return &Selection{Route: t.root, MountActual: "/"}, nil
	}

	return nil, ErrNoMatch
}

// Routes returns the compiled routes in their sorted order. Used by the
// preload endpoint to enumerate other static mounts.
func (t *Table) Routes() []*Route {
	return t.routes
}
