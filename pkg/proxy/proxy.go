// Package proxy composes the route table, header rewriter, and body
// rewriters into the end-to-end request handler: build the forwarding
// URL, dispatch to the bound upstream, and branch the response by status
// and content-type.
package proxy

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/chr33s/workerstack/pkg/assets"
	"github.com/chr33s/workerstack/pkg/env"
	"github.com/chr33s/workerstack/pkg/rewrite"
)

// PreloadPath is the synthesized endpoint path serving the preload
// script, always relative to a mount.
const PreloadPath = "/__mf-preload.js"

var hopByHop = []string{"Content-Length", "Etag", "Content-Encoding"}

// Options carries the per-route behavioral flags that shape rewriting.
type Options struct {
	SmoothTransitions bool
	PreloadMounts     []string
}

// Result is the fully rewritten response ready to be written back to the
// downstream client.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Handle builds the forwarding request for mount, dispatches it to
// fetcher (short-circuiting to the synthesized preload script when
// applicable), and rewrites the response per its content-type. binding
// names the upstream for error reporting only; it never affects
// forwarding or rewriting.
func Handle(ctx context.Context, req *http.Request, mount, binding string, fetcher env.Fetcher, assetPrefixes *assets.Set, opts Options) (*Result, error) {
	forwardURL := buildForwardURL(req.URL, mount)

	if len(opts.PreloadMounts) > 0 && forwardURL.Path == PreloadPath {
		return preloadScript(opts.PreloadMounts), nil
	}

	outReq := req.Clone(ctx)
	outReq.URL = forwardURL
	outReq.RequestURI = ""

	resp, err := fetcher.Fetch(ctx, outReq)
	if err != nil {
		return nil, &env.UpstreamError{Binding: binding, Err: err}
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	switch {
	case status >= 300 && status < 400:
		return handleRedirect(resp, req.URL, mount), nil

	case strings.Contains(resp.Header.Get("Content-Type"), "text/html"):
		return handleHTML(resp, mount, assetPrefixes, opts, req.Header.Get("User-Agent"))

	case strings.Contains(resp.Header.Get("Content-Type"), "text/css"):
		return handleCSS(resp, mount, assetPrefixes)

	default:
		return handlePassthrough(resp, mount)
	}
}

// buildForwardURL copies reqURL and strips mount from its path: the
// upstream always sees paths as if it were mounted at "/".
func buildForwardURL(reqURL *url.URL, mount string) *url.URL {
	forward := *reqURL

	if mount == "/" {
		return &forward
	}

	if forward.Path == mount {
		forward.Path = "/"
		return &forward
	}

	rest := strings.TrimPrefix(forward.Path, mount+"/")
	if rest == "" {
		forward.Path = "/"
	} else {
		forward.Path = "/" + rest
	}
	return &forward
}

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		vv := make([]string, len(v))
		copy(vv, v)
		out[k] = vv
	}
	return out
}

func stripHopByHop(h http.Header) {
	for _, k := range hopByHop {
		h.Del(k)
	}
}

func rewriteCookies(h http.Header, mount string) {
	cookies := h.Values("Set-Cookie")
	if len(cookies) == 0 {
		return
	}
	h.Del("Set-Cookie")
	for _, c := range rewrite.RewriteSetCookie(cookies, mount) {
		h.Add("Set-Cookie", c)
	}
}

func handleRedirect(resp *http.Response, reqURL *url.URL, mount string) *Result {
	header := cloneHeader(resp.Header)
	if loc := header.Get("Location"); loc != "" {
		header.Set("Location", rewrite.RewriteLocation(loc, reqURL, mount))
	}
	rewriteCookies(header, mount)
	return &Result{StatusCode: resp.StatusCode, Header: header, Body: nil}
}

func handleHTML(resp *http.Response, mount string, assetPrefixes *assets.Set, opts Options, userAgent string) (*Result, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	header := cloneHeader(resp.Header)
	stripHopByHop(header)
	rewriteCookies(header, mount)

	out, err := rewrite.RewriteHTML(string(body), rewrite.HTMLOptions{
		Mount:             mount,
		AssetPrefixes:     assetPrefixes,
		SmoothTransitions: opts.SmoothTransitions,
		PreloadMounts:     opts.PreloadMounts,
		UserAgent:         userAgent,
	})
	if err != nil {
		return nil, err
	}

	return &Result{StatusCode: resp.StatusCode, Header: header, Body: []byte(out)}, nil
}

func handleCSS(resp *http.Response, mount string, assetPrefixes *assets.Set) (*Result, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	header := cloneHeader(resp.Header)
	stripHopByHop(header)
	rewriteCookies(header, mount)

	out := rewrite.RewriteCSS(string(body), mount, assetPrefixes)
	return &Result{StatusCode: resp.StatusCode, Header: header, Body: []byte(out)}, nil
}

func handlePassthrough(resp *http.Response, mount string) (*Result, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	header := cloneHeader(resp.Header)
	rewriteCookies(header, mount)

	return &Result{StatusCode: resp.StatusCode, Header: header, Body: body}, nil
}
