package models

import (
	"errors"
	"fmt"
)

// ParseError marks malformed input: skip the unit, never abort the batch.
type ParseError struct {
	Kind  string // commlog, subject, history, ...
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("parse %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("parse %s %q: %v", e.Kind, e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NewParseError wraps err as a ParseError.
func NewParseError(kind, input string, err error) *ParseError {
	return &ParseError{Kind: kind, Input: input, Err: err}
}

// TransportError marks an unreachable inbox/provider or a non-200 reply.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
	default:
		return e.Op + ": transport failure"
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// ConfigError marks missing contacts or schedule gaps. These degrade, never abort.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "config: " + e.Msg }

// IsParseError reports whether err wraps a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsTransportError reports whether err wraps a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
