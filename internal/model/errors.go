package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig aborts a run before any matching starts.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMalformedRecord marks a record that is skipped with a warning.
	ErrMalformedRecord = errors.New("malformed record")
)

// ErrorClassifier lets errors declare a coarse kind for callers that map
// failures to exit codes or log levels.
type ErrorClassifier interface {
	ErrorKind() string
}

// ConfigError describes one invalid configuration value.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s=%v: %s", ErrInvalidConfig, e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

func (e *ConfigError) ErrorKind() string { return "configuration" }

// RecordError describes why a record was rejected.
type RecordError struct {
	Record string // "image" or "observation"
	ID     string
	Reason string
}

func (e *RecordError) Error() string {
	id := e.ID
	if id == "" {
		id = "<no id>"
	}
	return fmt.Sprintf("%s: %s %s: %s", ErrMalformedRecord, e.Record, id, e.Reason)
}

func (e *RecordError) Unwrap() error { return ErrMalformedRecord }

func (e *RecordError) ErrorKind() string { return "validation" }

// ErrorKind returns the classification of err, or "" when it has none.
func ErrorKind(err error) string {
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorKind()
	}
	return ""
}
