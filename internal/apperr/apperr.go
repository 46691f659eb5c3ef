// Package apperr classifies failures along the capture and recognition
// pipeline so callers can decide between retrying, surfacing to the operator,
// or giving up.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the category of a failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfiguration means a device or backend is not wired correctly. Fatal.
	KindConfiguration
	// KindTransport is a network-level failure. Retryable.
	KindTransport
	// KindDataFormat is a malformed or mismatched payload. Not retried.
	KindDataFormat
	// KindAnalysis is a vision API failure or unusable model output.
	KindAnalysis
	// KindPersistence is a datastore or media store write failure.
	KindPersistence
	KindNotFound
	KindConflict
	KindInvalid
	// KindForbidden means the caller may not perform the operation.
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindTransport:
		return "transport"
	case KindDataFormat:
		return "data_format"
	case KindAnalysis:
		return "analysis"
	case KindPersistence:
		return "persistence"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalid:
		return "invalid"
	case KindForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Error carries a Kind alongside the operation that failed and its cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with kind and op. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a new classified error from a format string.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func Configuration(op string, err error) error { return E(KindConfiguration, op, err) }
func Transport(op string, err error) error     { return E(KindTransport, op, err) }
func DataFormat(op string, err error) error    { return E(KindDataFormat, op, err) }
func Analysis(op string, err error) error      { return E(KindAnalysis, op, err) }
func Persistence(op string, err error) error   { return E(KindPersistence, op, err) }
func NotFound(op string, err error) error      { return E(KindNotFound, op, err) }
func Conflict(op string, err error) error      { return E(KindConflict, op, err) }
func Invalid(op string, err error) error       { return E(KindInvalid, op, err) }
func Forbidden(op string, err error) error     { return E(KindForbidden, op, err) }

// KindOf returns the Kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether a task that failed with err may succeed if run
// again. Unclassified errors are treated as retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindConfiguration, KindDataFormat, KindNotFound, KindInvalid, KindForbidden:
		return false
	default:
		return true
	}
}
