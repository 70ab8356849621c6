// Package handlers adapts the host-agnostic proxy core to the Fiber
// server in cmd/workerstack. Dispatch is the transport-agnostic
// route-select-then-proxy step; the WASM worker keeps its own copy of it
// (worker/proxy.go) rather than importing this package.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/chr33s/workerstack/internal/telemetry"
	"github.com/chr33s/workerstack/pkg/config"
	"github.com/chr33s/workerstack/pkg/env"
	"github.com/chr33s/workerstack/pkg/proxy"
	"github.com/chr33s/workerstack/pkg/routetable"
)

// Result is the transport-agnostic outcome of Dispatch.
type Result = proxy.Result

// Dispatch selects a route for req against cfg and runs it through the
// proxy core. A nil, nil return means no route matched and no root
// route exists; callers translate that into a 404.
func Dispatch(ctx context.Context, req *http.Request, cfg *config.Config) (*Result, error) {
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

	return proxy.Handle(ctx, req, sel.MountActual, sel.Route.Binding, sel.Route.Fetcher, cfg.AssetPrefixes, opts)
}

// ProxySite is a Fiber handler that re-resolves environment into a
// *config.Config on every request — matching the WASM worker entry
// point, which re-validates the host-provided env object per call rather
// than trusting a configuration loaded once at startup — then runs the
// request through the proxy core, translating between Fiber's fasthttp
// request/response and the net/http types the proxy core speaks.
func ProxySite(environment env.Map) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-Id")
		if requestID == "" {
			requestID = telemetry.NewRequestID()
		}
		c.Set("X-Request-Id", requestID)
		logger := telemetry.RequestLogger(requestID, c.Method(), c.Path())

		cfg, err := config.Load(environment)
		if err != nil {
			var cfgErr *config.Error
			if errors.As(err, &cfgErr) {
				logger.WithField("key", cfgErr.Key).Error("invalid configuration")
				return c.Status(fiber.StatusInternalServerError).SendString(cfgErr.Error())
			}
			logger.WithError(err).Error("failed to load configuration")
			return c.Status(fiber.StatusInternalServerError).SendString(err.Error())
		}

		req, err := toHTTPRequest(c)
		if err != nil {
			logger.WithError(err).Error("failed to build upstream request")
			return c.Status(fiber.StatusBadRequest).SendString("bad request")
		}

		result, err := Dispatch(c.Context(), req, cfg)
		if err != nil {
			logger.WithError(err).Error("upstream request failed")
			return c.Status(fiber.StatusBadGateway).SendString("upstream request failed")
		}
		if result == nil {
			logger.Warn("no route matched")
			return c.Status(fiber.StatusNotFound).SendString("Not found")
		}

		for key, values := range result.Header {
			for _, value := range values {
				c.Response().Header.Add(key, value)
			}
		}
		c.Status(result.StatusCode)
		return c.Send(result.Body)
	}
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

func toHTTPRequest(c *fiber.Ctx) (*http.Request, error) {
	rawURL := c.OriginalURL()
	if !strings.HasPrefix(rawURL, "/") {
		rawURL = "/" + rawURL
	}

	req, err := http.NewRequestWithContext(c.Context(), c.Method(), rawURL, strings.NewReader(string(c.Body())))
	if err != nil {
		return nil, err
	}

	req.Header = make(http.Header)
	c.Request().Header.VisitAll(func(key, value []byte) {
		req.Header.Add(string(key), string(value))
	})

	req.Host = c.Hostname()
	req.URL.Scheme = c.Protocol()
	req.URL.Host = c.Hostname()

	return req, nil
}
