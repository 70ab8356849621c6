//go:build js && wasm

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall/js"

	"github.com/chr33s/workerstack/pkg/config"
	"github.com/chr33s/workerstack/pkg/env"
	"github.com/chr33s/workerstack/pkg/proxy"
	"github.com/chr33s/workerstack/pkg/routetable"
)

// handleRequest builds the per-request env.Map from the host's env
// object, loads the configuration, and runs the request through the
// same proxy core the net/http entry point (cmd/workerstack) uses.
func handleRequest(request, environment js.Value) (js.Value, error) {
	cfg, err := config.Load(buildEnv(environment))
	if err != nil {
		return createErrorResponse(500, err.Error()), nil
	}

	httpReq, err := toHTTPRequest(request)
	if err != nil {
		return createErrorResponse(400, err.Error()), nil
	}

	result, err := dispatch(httpReq, cfg)
	if err != nil {
		return createErrorResponse(502, err.Error()), nil
	}
	if result == nil {
		return createErrorResponse(404, "Not found"), nil
	}

	return toJSResponse(result), nil
}

// dispatch mirrors handlers.Dispatch without pulling fasthttp into the
// WASM binary: selects a route and runs it through the same proxy core.
func dispatch(req *http.Request, cfg *config.Config) (*proxy.Result, error) {
	sel, err := cfg.Routes.Select(req.URL.Path)
	if err != nil {
		if err == routetable.ErrNoMatch {
			return nil, nil
		}
		return nil, err
	}

	opts := proxy.Options{
		SmoothTransitions: cfg.Options.SmoothTransitions,
		PreloadMounts:     preloadMounts(cfg.Routes),
	}

	return proxy.Handle(context.Background(), req, sel.MountActual, sel.Route.Binding, sel.Route.Fetcher, cfg.AssetPrefixes, opts)
}

// preloadMounts collects the mount of every route whose entry requested
// preload, in table order.
func preloadMounts(table *routetable.Table) []string {
	var mounts []string
	for _, r := range table.Routes() {
		if !r.Preload {
			continue
		}
		if r.Matcher.IsStaticMount {
			mounts = append(mounts, r.Matcher.StaticMount)
		} else {
			mounts = append(mounts, r.Expr)
		}
	}
	return mounts
}

// buildEnv reads ROUTES/ASSET_PREFIXES plus every other key exposing a
// fetch function as a named binding, mirroring a Cloudflare Worker's
// host-provided env object.
func buildEnv(environment js.Value) env.Map {
	bindings := make(env.Bindings)

	keys := js.Global().Get("Object").Call("keys", environment)
	for i := 0; i < keys.Length(); i++ {
		name := keys.Index(i).String()
		if name == "ROUTES" || name == "ASSET_PREFIXES" {
			continue
		}
		value := environment.Get(name)
		if value.Get("fetch").IsUndefined() {
			continue
		}
		bindings[name] = &jsFetcher{binding: value}
	}

	m := env.Map{Bindings: bindings}
	if routes := environment.Get("ROUTES"); !routes.IsUndefined() {
		m.Routes = jsValueToAny(routes)
	}
	if assetPrefixes := environment.Get("ASSET_PREFIXES"); !assetPrefixes.IsUndefined() {
		m.AssetPrefixes = jsValueToAny(assetPrefixes)
	}
	return m
}

// jsValueToAny passes strings through untouched (config.Load parses them
// as JSON) and JSON-stringifies anything already structured.
func jsValueToAny(v js.Value) any {
	if v.Type() == js.TypeString {
		return v.String()
	}
	return js.Global().Get("JSON").Call("stringify", v).String()
}

// jsFetcher adapts a host-provided binding (any object exposing a
// `fetch(request)` method returning a Promise<Response>) to env.Fetcher.
type jsFetcher struct {
	binding js.Value
}

func (f *jsFetcher) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	jsReq, err := toJSRequest(req)
	if err != nil {
		return nil, err
	}

	promise := f.binding.Call("fetch", jsReq)
	resp, err := await(promise)
	if err != nil {
		return nil, err
	}

	return fromJSResponse(resp)
}

// await blocks the calling goroutine until promise settles, translating
// its resolution into a (js.Value, error) pair.
func await(promise js.Value) (js.Value, error) {
	resultCh := make(chan js.Value, 1)
	errCh := make(chan error, 1)

	promise.Call("then",
		js.FuncOf(func(this js.Value, args []js.Value) interface{} {
			resultCh <- args[0]
			return nil
		}),
		js.FuncOf(func(this js.Value, args []js.Value) interface{} {
			errCh <- fmt.Errorf("%s", args[0].String())
			return nil
		}),
	)

	select {
	case v := <-resultCh:
		return v, nil
	case err := <-errCh:
		return js.Value{}, err
	}
}

func toJSRequest(req *http.Request) (js.Value, error) {
	init := js.Global().Get("Object").New()
	init.Set("method", req.Method)

	headers := js.Global().Get("Object").New()
	for k := range req.Header {
		headers.Set(k, req.Header.Get(k))
	}
	init.Set("headers", headers)

	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return js.Value{}, err
		}
		if len(body) > 0 {
			init.Set("body", string(body))
		}
	}

	return js.Global().Get("Request").New(req.URL.String(), init), nil
}

func toHTTPRequest(request js.Value) (*http.Request, error) {
	rawURL := request.Get("url").String()
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing request URL %q: %w", rawURL, err)
	}

	method := "GET"
	if m := request.Get("method"); !m.IsUndefined() {
		method = m.String()
	}

	req, err := http.NewRequest(method, u.String(), nil)
	if err != nil {
		return nil, err
	}

	req.Header = make(http.Header)
	jsHeaders := request.Get("headers")
	if !jsHeaders.IsUndefined() {
		entries := jsHeaders.Call("entries")
		for {
			next := entries.Call("next")
			if next.Get("done").Bool() {
				break
			}
			pair := next.Get("value")
			req.Header.Add(pair.Index(0).String(), pair.Index(1).String())
		}
	}

	return req, nil
}

func toJSResponse(result *proxy.Result) js.Value {
	headers := js.Global().Get("Object").New()
	for k, vs := range result.Header {
		headers.Set(k, strings.Join(vs, ", "))
	}

	init := js.Global().Get("Object").New()
	init.Set("status", result.StatusCode)
	init.Set("headers", headers)

	return js.Global().Get("Response").New(string(result.Body), init)
}

func fromJSResponse(resp js.Value) (*http.Response, error) {
	text, err := await(resp.Call("text"))
	if err != nil {
		return nil, err
	}

	header := make(http.Header)
	entries := resp.Get("headers").Call("entries")
	for {
		next := entries.Call("next")
		if next.Get("done").Bool() {
			break
		}
		pair := next.Get("value")
		header.Add(pair.Index(0).String(), pair.Index(1).String())
	}

	return &http.Response{
		StatusCode: resp.Get("status").Int(),
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(text.String())),
	}, nil
}

func createErrorResponse(status int, message string) js.Value {
	headers := js.Global().Get("Object").New()
	headers.Set("Content-Type", "text/plain")

	init := js.Global().Get("Object").New()
	init.Set("status", status)
	init.Set("headers", headers)

	return js.Global().Get("Response").New(message, init)
}
