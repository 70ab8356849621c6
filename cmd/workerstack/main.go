// Command workerstack runs the microfrontend edge router as a standalone
// HTTP server, assembling the same per-request env.Map the core handler
// expects from static CLI flags instead of a host-runtime environment.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/chr33s/workerstack/handlers"
	"github.com/chr33s/workerstack/internal/telemetry"
	"github.com/chr33s/workerstack/pkg/config"
	"github.com/chr33s/workerstack/pkg/env"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	parser := argparse.NewParser("workerstack", "Microfrontend edge router")

	addr := parser.String("a", "addr", &argparse.Options{
		Default: ":8080",
		Help:    "listen address",
	})
	routesPath := parser.String("r", "routes", &argparse.Options{
		Required: true,
		Help:     "path to a JSON or YAML routes document",
	})
	assetPrefixesPath := parser.String("", "asset-prefixes", &argparse.Options{
		Help: "path to a JSON array of extra asset path prefixes",
	})
	binds := parser.StringList("b", "bind", &argparse.Options{
		Help: "upstream binding, repeatable: name=http://host:port",
	})
	logFormat := parser.String("", "log-format", &argparse.Options{
		Default: "text",
		Help:    "text or json",
	})

	if err := parser.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, parser.Usage(err))
		return 1
	}

	telemetry.Configure(*logFormat, "info")

	environment, err := buildEnvironment(*routesPath, *assetPrefixesPath, *binds)
	if err != nil {
		log.WithError(err).Error("failed to build environment")
		return 1
	}

	if _, err := config.Load(environment); err != nil {
		log.WithError(err).Error("failed to load configuration")
		return 1
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.All("/*", handlers.ProxySite(environment))

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(*addr)
	}()
	log.WithField("addr", *addr).Info("workerstack listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("listener exited")
			return 1
		}
		return 0

	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(ctx); err != nil {
			log.WithError(err).Error("graceful shutdown failed")
		}

		if sig == syscall.SIGINT {
			return 130
		}
		return 0
	}
}

// buildEnvironment reads the --routes and --asset-prefixes documents,
// normalizing YAML to JSON, and resolves --bind flags into an
// env.Bindings registry of env.HTTPFetchers.
func buildEnvironment(routesPath, assetPrefixesPath string, binds []string) (env.Map, error) {
	routesJSON, err := loadDocumentAsJSON(routesPath)
	if err != nil {
		return env.Map{}, fmt.Errorf("reading --routes: %w", err)
	}

	var assetPrefixesJSON string
	if assetPrefixesPath != "" {
		assetPrefixesJSON, err = loadDocumentAsJSON(assetPrefixesPath)
		if err != nil {
			return env.Map{}, fmt.Errorf("reading --asset-prefixes: %w", err)
		}
	}

	bindings := make(env.Bindings, len(binds))
	for _, b := range binds {
		name, target, ok := strings.Cut(b, "=")
		if !ok {
			return env.Map{}, fmt.Errorf("invalid --bind %q, expected name=URL", b)
		}
		base, err := url.Parse(target)
		if err != nil {
			return env.Map{}, fmt.Errorf("invalid --bind URL %q: %w", target, err)
		}
		bindings[name] = env.NewHTTPFetcher(base, 15*time.Second)
	}

	return env.Map{
		Routes:        routesJSON,
		AssetPrefixes: assetPrefixesJSON,
		Bindings:      bindings,
	}, nil
}

// loadDocumentAsJSON reads path and, if it doesn't already look like
// JSON, decodes it as YAML and re-marshals it to JSON — so the file
// format is a loading convenience only, never a second validation path.
func loadDocumentAsJSON(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return trimmed, nil
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("parsing %s as YAML: %w", path, err)
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("re-marshaling %s to JSON: %w", path, err)
	}
	return string(out), nil
}
