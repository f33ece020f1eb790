// Package apperr classifies failures so transports and the consumer loop can
// decide how to surface them.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the failure class.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindValidation     Kind = "validation"
	KindRender         Kind = "render"
	KindRasterization  Kind = "rasterization"
	KindInfrastructure Kind = "infrastructure"
	KindInternal       Kind = "internal"
)

// Error carries a kind, a caller-facing message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error with no cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error around cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func Render(cause error, format string, args ...any) *Error {
	return Wrap(KindRender, cause, format, args...)
}

func Rasterization(cause error, format string, args ...any) *Error {
	return Wrap(KindRasterization, cause, format, args...)
}

func Infrastructure(cause error, format string, args ...any) *Error {
	return Wrap(KindInfrastructure, cause, format, args...)
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
