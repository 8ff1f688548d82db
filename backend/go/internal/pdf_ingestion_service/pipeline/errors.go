// Package pipeline turns one source PDF into a page-addressable corpus:
// chunked OCR, per-page text and images, tags and a manifest written last.
package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindConfiguration   Kind = "ConfigurationError"
	KindSourceFetch     Kind = "SourceFetchError"
	KindMalformedSource Kind = "MalformedSourceError"
	KindExternalService Kind = "ExternalServiceError"
	KindValidation      Kind = "ValidationError"
)

// Error is the error type returned across the pipeline boundary.
type Error struct {
	Kind    Kind
	Op      string // failing operation, e.g. "ocr.chunk"
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates an Error with a formatted message and no cause.
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and op to err. An err that already carries a kind keeps it.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// Message returns the caller-facing message: the *Error's message when
// present, err.Error() otherwise.
func Message(err error) string {
	var pe *Error
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return err.Error()
}
