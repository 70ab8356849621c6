package routetable

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chr33s/workerstack/pkg/env"
)

func noopFetcher() env.Fetcher {
	return env.FetcherFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: 200}, nil
	})
}

func testEnv(names ...string) env.Map {
	b := make(env.Bindings, len(names))
	for _, n := range names {
		b[n] = noopFetcher()
	}
	return env.Map{Bindings: b}
}

func TestBuildRejectsEmpty(t *testing.T) {
	_, err := Build(nil, testEnv())
	require.Error(t, err)
}

func TestBuildRejectsMissingBinding(t *testing.T) {
	_, err := Build([]Spec{{Path: "/app"}}, testEnv())
	require.Error(t, err)
}

func TestBuildRejectsMissingPath(t *testing.T) {
	_, err := Build([]Spec{{Binding: "APP"}}, testEnv("APP"))
	require.Error(t, err)
}

func TestBuildRejectsUnresolvedBinding(t *testing.T) {
	_, err := Build([]Spec{{Binding: "MISSING", Path: "/app"}}, testEnv())
	require.Error(t, err)
}

func TestSelectMountStrip(t *testing.T) {
	tbl, err := Build([]Spec{{Binding: "APP", Path: "/app"}}, testEnv("APP"))
	require.NoError(t, err)

	sel, err := tbl.Select("/app/page")
	require.NoError(t, err)
	require.Equal(t, "/app", sel.MountActual)
	require.Equal(t, "APP", sel.Route.Binding)
}

func TestSelectSpecificity(t *testing.T) {
	tbl, err := Build([]Spec{
		{Binding: "APP", Path: "/app"},
		{Binding: "API", Path: "/app/api"},
	}, testEnv("APP", "API"))
	require.NoError(t, err)

	sel, err := tbl.Select("/app/api/users")
	require.NoError(t, err)
	require.Equal(t, "API", sel.Route.Binding)
	require.Equal(t, "/app/api", sel.MountActual)
}

func TestSelectFallbackToRoot(t *testing.T) {
	tbl, err := Build([]Spec{
		{Binding: "ROOT", Path: "/"},
		{Binding: "APP", Path: "/app"},
	}, testEnv("ROOT", "APP"))
	require.NoError(t, err)

	sel, err := tbl.Select("/other")
	require.NoError(t, err)
	require.Equal(t, "ROOT", sel.Route.Binding)
	require.Equal(t, "/", sel.MountActual)
}

func TestSelectNoMatchNoRoot(t *testing.T) {
	tbl, err := Build([]Spec{{Binding: "APP", Path: "/app"}}, testEnv("APP"))
	require.NoError(t, err)

	_, err = tbl.Select("/other")
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestBuildSortedDescending(t *testing.T) {
	tbl, err := Build([]Spec{
		{Binding: "A", Path: "/a"},
		{Binding: "AB", Path: "/ab"},
		{Binding: "ABC", Path: "/abc"},
	}, testEnv("A", "AB", "ABC"))
	require.NoError(t, err)

	routes := tbl.Routes()
	for i := 1; i < len(routes); i++ {
		prev, cur := routes[i-1], routes[i]
		if prev.BaseSpecificity == cur.BaseSpecificity {
			require.GreaterOrEqual(t, len(prev.Expr), len(cur.Expr))
		} else {
			require.Greater(t, prev.BaseSpecificity, cur.BaseSpecificity)
		}
	}
}

func TestSelectExactMountCapturesMount(t *testing.T) {
	tbl, err := Build([]Spec{{Binding: "APP", Path: "/app"}}, testEnv("APP"))
	require.NoError(t, err)

	sel, err := tbl.Select("/app")
	require.NoError(t, err)
	require.Equal(t, "/app", sel.MountActual)
}
