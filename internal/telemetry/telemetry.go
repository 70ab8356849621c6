// Package telemetry wires structured logging and per-request ID
// generation for the router process.
package telemetry

import (
	"os"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Configure sets the process-wide logrus formatter and level. format is
// either "json" or "text"; any other value falls back to "text".
func Configure(format, level string) {
	switch format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetOutput(os.Stderr)
}

// NewRequestID mints a request-scoped identifier for log correlation.
func NewRequestID() string {
	return uuid.NewString()
}

// RequestLogger returns a logger pre-populated with the request's
// correlation fields.
func RequestLogger(requestID, method, path string) *log.Entry {
	return log.WithFields(log.Fields{
		"request_id": requestID,
		"method":     method,
		"path":       path,
	})
}
