package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chr33s/workerstack/pkg/assets"
	"github.com/chr33s/workerstack/pkg/env"
)

func fetcherFunc(fn func(ctx context.Context, req *http.Request) (*http.Response, error)) env.Fetcher {
	return env.FetcherFunc(fn)
}

func newRequest(t *testing.T, rawURL, userAgent string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, rawURL, nil)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	return req
}

func jsonResp(status int, contentType, body string) *http.Response {
	h := make(http.Header)
	h.Set("Content-Type", contentType)
	return &http.Response{
		StatusCode: status,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestHandleMountStrip(t *testing.T) {
	var gotPath string
	fetcher := fetcherFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		gotPath = req.URL.Path
		return jsonResp(200, "text/plain", "ok"), nil
	})

	req := newRequest(t, "https://example.com/app/page", "")
	res, err := Handle(context.Background(), req, "/app", "APP", fetcher, assets.New(nil), Options{})
	require.NoError(t, err)
	require.Equal(t, "/page", gotPath)
	require.Equal(t, 200, res.StatusCode)
}

func TestHandleExactMountStripsToRoot(t *testing.T) {
	var gotPath string
	fetcher := fetcherFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		gotPath = req.URL.Path
		return jsonResp(200, "text/plain", "ok"), nil
	})

	req := newRequest(t, "https://example.com/app", "")
	_, err := Handle(context.Background(), req, "/app", "APP", fetcher, assets.New(nil), Options{})
	require.NoError(t, err)
	require.Equal(t, "/", gotPath)
}

func TestHandleRootMountUnchanged(t *testing.T) {
	var gotPath string
	fetcher := fetcherFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		gotPath = req.URL.Path
		return jsonResp(200, "text/plain", "ok"), nil
	})

	req := newRequest(t, "https://example.com/page", "")
	_, err := Handle(context.Background(), req, "/", "APP", fetcher, assets.New(nil), Options{})
	require.NoError(t, err)
	require.Equal(t, "/page", gotPath)
}

func TestHandleRedirectRewritesLocation(t *testing.T) {
	fetcher := fetcherFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		resp := jsonResp(302, "text/plain", "")
		resp.Header.Set("Location", "/other")
		return resp, nil
	})

	req := newRequest(t, "https://example.com/app/page", "")
	res, err := Handle(context.Background(), req, "/app", "APP", fetcher, assets.New(nil), Options{})
	require.NoError(t, err)
	require.Equal(t, 302, res.StatusCode)
	require.Equal(t, "https://example.com/app/other", res.Header.Get("Location"))
	require.Empty(t, res.Body)
}

func TestHandleHTMLRewritesBody(t *testing.T) {
	fetcher := fetcherFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		resp := jsonResp(200, "text/html; charset=utf-8", `<html><head></head><body><img src="/assets/a.png"></body></html>`)
		resp.Header.Set("Content-Length", "1000")
		resp.Header.Set("Etag", `"abc"`)
		return resp, nil
	})

	req := newRequest(t, "https://example.com/app/page", "")
	res, err := Handle(context.Background(), req, "/app", "APP", fetcher, assets.New(nil), Options{})
	require.NoError(t, err)
	require.Contains(t, string(res.Body), `src="/app/assets/a.png"`)
	require.Contains(t, string(res.Body), `window.__BASE_PATH__="/app"`)
	require.Empty(t, res.Header.Get("Content-Length"))
	require.Empty(t, res.Header.Get("Etag"))
}

func TestHandleCSSRewritesBody(t *testing.T) {
	fetcher := fetcherFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return jsonResp(200, "text/css", `body { background: url(/assets/bg.png); }`), nil
	})

	req := newRequest(t, "https://example.com/app/page", "")
	res, err := Handle(context.Background(), req, "/app", "APP", fetcher, assets.New(nil), Options{})
	require.NoError(t, err)
	require.Equal(t, `body { background: url(/app/assets/bg.png); }`, string(res.Body))
}

func TestHandlePassthroughOtherContentType(t *testing.T) {
	fetcher := fetcherFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return jsonResp(200, "application/json", `{"ok":true}`), nil
	})

	req := newRequest(t, "https://example.com/app/page", "")
	res, err := Handle(context.Background(), req, "/app", "APP", fetcher, assets.New(nil), Options{})
	require.NoError(t, err)
	require.Equal(t, `{"ok":true}`, string(res.Body))
}

func TestHandlePreloadShortCircuit(t *testing.T) {
	called := false
	fetcher := fetcherFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		called = true
		return jsonResp(200, "text/plain", "ok"), nil
	})

	req := newRequest(t, "https://example.com/app/__mf-preload.js", "")
	res, err := Handle(context.Background(), req, "/app", "APP", fetcher, assets.New(nil), Options{
		PreloadMounts: []string{"/other"},
	})
	require.NoError(t, err)
	require.False(t, called)
	require.Equal(t, "application/javascript; charset=utf-8", res.Header.Get("Content-Type"))
	require.Contains(t, string(res.Body), "/other")
}

func TestHandlePreloadNotShortCircuitedWithoutMounts(t *testing.T) {
	called := false
	fetcher := fetcherFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		called = true
		return jsonResp(200, "text/plain", "ok"), nil
	})

	req := newRequest(t, "https://example.com/app/__mf-preload.js", "")
	_, err := Handle(context.Background(), req, "/app", "APP", fetcher, assets.New(nil), Options{})
	require.NoError(t, err)
	require.True(t, called)
}

func TestHandleUpstreamErrorNamesBinding(t *testing.T) {
	fetcher := fetcherFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})

	req := newRequest(t, "https://example.com/app/page", "")
	_, err := Handle(context.Background(), req, "/app", "APP", fetcher, assets.New(nil), Options{})
	require.Error(t, err)

	var upstreamErr *env.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.Equal(t, "APP", upstreamErr.Binding)
}

func TestBuildForwardURLQueryPreserved(t *testing.T) {
	u, err := url.Parse("https://example.com/app/page?x=1")
	require.NoError(t, err)
	forward := buildForwardURL(u, "/app")
	require.Equal(t, "/page", forward.Path)
	require.Equal(t, "x=1", forward.RawQuery)
}
