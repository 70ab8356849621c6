// Package config loads and validates the per-request route table and
// options from the environment map.
package config

import "fmt"

// Error reports invalid or missing configuration: a malformed ROUTES
// value, an empty route list, an unresolved binding, or an invalid path
// expression. It is surfaced to the caller and never retried.
type Error struct {
	// Key names the offending environment key, e.g. "ROUTES".
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

func newError(key, msg string) *Error {
	return &Error{Key: key, Msg: msg}
}

func wrapError(key, msg string, err error) *Error {
	return &Error{Key: key, Msg: msg, Err: err}
}
