package rules

import (
	"errors"
	"fmt"
	"strings"
)

// Error types for classifying rule outcomes.

// Failure is a domain validation failure: expected, user-correctable and
// collected by the runner rather than aborting the stage.
type Failure struct {
	Rule     string
	Property string
	Message  string
}

func (e *Failure) Error() string {
	if e.Property != "" {
		return e.Property + ": " + e.Message
	}
	return e.Message
}

// Failf creates a domain failure with a formatted message.
func Failf(format string, args ...any) error {
	return &Failure{Message: fmt.Sprintf(format, args...)}
}

// WithProperty annotates a domain failure with the offending property.
// Other errors are returned unchanged.
func WithProperty(err error, property string) error {
	var f *Failure
	if errors.As(err, &f) && f.Property == "" {
		c := *f
		c.Property = property
		return &c
	}
	return err
}

// CompositeFailure is the result of a stage in which one or more rules
// failed. Its message is every failure joined with newlines.
type CompositeFailure struct {
	Stage    Stage
	Failures []*Failure
}

func (e *CompositeFailure) Error() string {
	return strings.Join(e.Messages(), "\n")
}

// Messages returns the individual failure messages in rule order.
func (e *CompositeFailure) Messages() []string {
	out := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f.Error()
	}
	return out
}

// TransientError represents an operational fault (database, lock timeout,
// network) that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError represents a configuration or programmer error that should
// not be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsFailure returns true if err is a domain failure (single or composite).
func IsFailure(err error) bool {
	var f *Failure
	var c *CompositeFailure
	return errors.As(err, &c) || errors.As(err, &f)
}

// IsTransient returns true if the error is transient and should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal returns true if the error is fatal and should not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// AsComposite extracts the composite failure from err, wrapping a single
// Failure if needed.
func AsComposite(err error) (*CompositeFailure, bool) {
	var c *CompositeFailure
	if errors.As(err, &c) {
		return c, true
	}
	var f *Failure
	if errors.As(err, &f) {
		return &CompositeFailure{Failures: []*Failure{f}}, true
	}
	return nil, false
}

// Failures accumulates several failures inside one rule.
type Failures []*Failure

// Addf records a formatted failure.
func (fs *Failures) Addf(format string, args ...any) {
	*fs = append(*fs, &Failure{Message: fmt.Sprintf(format, args...)})
}

// AddProperty records a failure for property.
func (fs *Failures) AddProperty(property, format string, args ...any) {
	*fs = append(*fs, &Failure{Property: property, Message: fmt.Sprintf(format, args...)})
}

// Err returns nil, the single failure, or a composite of all of them.
func (fs Failures) Err() error {
	switch len(fs) {
	case 0:
		return nil
	case 1:
		return fs[0]
	}
	return &CompositeFailure{Failures: fs}
}
