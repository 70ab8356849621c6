package config

import (
	"encoding/json"
	"errors"

	"github.com/chr33s/workerstack/pkg/assets"
	"github.com/chr33s/workerstack/pkg/env"
	"github.com/chr33s/workerstack/pkg/routetable"
)

// Options carries the per-request behavioral flags decoded from ROUTES.
type Options struct {
	SmoothTransitions bool
}

// Config is the fully materialized per-request configuration: the
// compiled route table, the merged asset-prefix set, and decoded
// options.
type Config struct {
	Routes        *routetable.Table
	AssetPrefixes *assets.Set
	Options       Options
}

type routesDocument struct {
	Routes            []routetable.Spec `json:"routes"`
	SmoothTransitions bool              `json:"smoothTransitions"`
}

// Load validates and materializes the route table, asset-prefix set, and
// options from the per-request environment map.
func Load(environment env.Map) (*Config, error) {
	if environment.Routes == nil {
		return nil, newError("ROUTES", "ROUTES environment variable is required")
	}

	specs, smooth, err := decodeRoutes(environment.Routes)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, newError("ROUTES", "route list must not be empty")
	}

	table, err := routetable.Build(specs, environment)
	if err != nil {
		var rtErr *routetable.Error
		if errors.As(err, &rtErr) {
			return nil, &Error{Key: rtErr.Key, Msg: rtErr.Msg, Err: rtErr.Err}
		}
		return nil, err
	}

	return &Config{
		Routes:        table,
		AssetPrefixes: loadAssetPrefixes(environment.AssetPrefixes),
		Options:       Options{SmoothTransitions: smooth},
	}, nil
}

// decodeRoutes extracts the route spec list and smoothTransitions flag
// from a ROUTES value that may be a JSON string, a bare array, or an
// object of shape {routes, smoothTransitions?}.
func decodeRoutes(raw any) (specs []routetable.Spec, smoothTransitions bool, err error) {
	var data []byte

	switch v := raw.(type) {
	case string:
		data = []byte(v)
	default:
		data, err = json.Marshal(v)
		if err != nil {
			return nil, false, wrapError("ROUTES", "failed to encode ROUTES", err)
		}
	}

	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, false, wrapError("ROUTES", "failed to parse ROUTES", err)
	}

	switch probe.(type) {
	case []any:
		var arr []routetable.Spec
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, false, wrapError("ROUTES", "failed to parse ROUTES", err)
		}
		// smoothTransitions can only ever be honored on the object form;
		// a bare array has no way to express it. Preserved literally,
		// matching the documented quirk in the distilled spec rather
		// than generalizing it.
		return arr, false, nil

	case map[string]any:
		var doc routesDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, false, wrapError("ROUTES", "failed to parse ROUTES", err)
		}
		return doc.Routes, doc.SmoothTransitions, nil

	default:
		return nil, false, newError("ROUTES", "ROUTES must be a JSON object or a JSON string")
	}
}

func loadAssetPrefixes(raw any) *assets.Set {
	s, ok := raw.(string)
	if !ok || s == "" {
		return assets.New(nil)
	}

	var list []string
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return assets.New(nil)
	}

	filtered := make([]string, 0, len(list))
	for _, p := range list {
		if p != "" {
			filtered = append(filtered, p)
		}
	}
	return assets.New(filtered)
}
