package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure so transports can map it to a status.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindForbidden    Kind = "forbidden"
	KindUnauthorized Kind = "unauthorized"
	KindValidation   Kind = "validation"
	KindInternal     Kind = "internal"
)

// Error carries a kind, an "operation.reason" code and the underlying cause.
type Error struct {
	kind Kind
	code string
	err  error
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the "operation.reason" identifier.
func (e *Error) Code() string {
	return e.code
}

// Kind returns the failure class.
func (e *Error) Kind() Kind {
	return e.kind
}

// New builds an *Error with code "<operation>.<reason>".
func New(kind Kind, operation, reason string, cause error) error {
	return &Error{
		kind: kind,
		code: fmt.Sprintf("%s.%s", operation, reason),
		err:  cause,
	}
}

func NotFound(operation, reason string, cause error) error {
	return New(KindNotFound, operation, reason, cause)
}

func Conflict(operation, reason string, cause error) error {
	return New(KindConflict, operation, reason, cause)
}

func Forbidden(operation, reason string, cause error) error {
	return New(KindForbidden, operation, reason, cause)
}

func Unauthorized(operation, reason string, cause error) error {
	return New(KindUnauthorized, operation, reason, cause)
}

func Validation(operation, reason string, cause error) error {
	return New(KindValidation, operation, reason, cause)
}

func Internal(operation, reason string, cause error) error {
	return New(KindInternal, operation, reason, cause)
}

// KindOf reports the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.kind
	}
	return KindInternal
}

// CodeOf reports the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var target *Error
	if errors.As(err, &target) {
		return target.code
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var target *Error
	return errors.As(err, &target) && target.kind == kind
}
