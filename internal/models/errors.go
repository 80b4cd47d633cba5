package models

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies why a capability or a request failed.
type ErrorKind string

const (
	KindLocationUnresolved   ErrorKind = "LocationUnresolved"
	KindInvalidCoordinate    ErrorKind = "InvalidCoordinate"
	KindInvalidRange         ErrorKind = "InvalidRange"
	KindUpstreamUnavailable  ErrorKind = "UpstreamUnavailable"
	KindTimeout              ErrorKind = "Timeout"
	KindInsufficientData     ErrorKind = "InsufficientData"
	KindDependencyUnresolved ErrorKind = "DependencyUnresolved"
	// KindModelUnavailable never appears on a Failed result; it names the
	// reason a crop recommendation was served by the rule-based estimator.
	KindModelUnavailable ErrorKind = "ModelUnavailable"
)

// Sentinel errors for errors.Is checks. A sentinel matches any *Error of the same kind.
var (
	ErrLocationUnresolved   = &Error{Kind: KindLocationUnresolved}
	ErrInvalidCoordinate    = &Error{Kind: KindInvalidCoordinate}
	ErrInvalidRange         = &Error{Kind: KindInvalidRange}
	ErrUpstreamUnavailable  = &Error{Kind: KindUpstreamUnavailable}
	ErrTimeout              = &Error{Kind: KindTimeout}
	ErrInsufficientData     = &Error{Kind: KindInsufficientData}
	ErrDependencyUnresolved = &Error{Kind: KindDependencyUnresolved}
	ErrModelUnavailable     = &Error{Kind: KindModelUnavailable}
)

// Error is a classified failure. Err optionally carries the underlying cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError returns an *Error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf returns an *Error of the given kind with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies err under kind.
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality against a sentinel. An invalid coordinate is also
// an unresolved location.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Message != "" || t.Err != nil {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return e.Kind == KindInvalidCoordinate && t.Kind == KindLocationUnresolved
}

// KindOf classifies err. Context deadlines map to Timeout; anything
// unclassified is treated as an unavailable upstream.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUpstreamUnavailable
}

// MessageOf returns the human-readable part of err without the kind prefix.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch {
		case e.Message != "" && e.Err != nil:
			return e.Message + ": " + e.Err.Error()
		case e.Message != "":
			return e.Message
		case e.Err != nil:
			return e.Err.Error()
		}
		return string(e.Kind)
	}
	return err.Error()
}
