// Package apperr classifies failures returned by the group chat services.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	NotFound
	NotAMember
	Forbidden
	Conflict
	InvalidReference
	InvalidInput
	NotImplemented
	Unauthenticated
	RateLimited
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case NotAMember:
		return "not_a_member"
	case Forbidden:
		return "forbidden"
	case Conflict:
		return "conflict"
	case InvalidReference:
		return "invalid_reference"
	case InvalidInput:
		return "invalid_input"
	case NotImplemented:
		return "not_implemented"
	case Unauthenticated:
		return "unauthenticated"
	case RateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Status maps the kind to an HTTP status code.
func (k Kind) Status() int {
	switch k {
	case NotFound:
		return http.StatusNotFound
	case NotAMember, Forbidden:
		return http.StatusForbidden
	case Conflict:
		return http.StatusConflict
	case InvalidReference, InvalidInput:
		return http.StatusBadRequest
	case NotImplemented:
		return http.StatusNotImplemented
	case Unauthenticated:
		return http.StatusUnauthorized
	case RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure with a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err, apperr.Of(apperr.Conflict)) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Kind == e.Kind
}

// Of returns a bare error of the given kind for use with errors.Is.
func Of(k Kind) error { return &Error{Kind: k} }

func New(k Kind, format string, args ...any) error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under kind k.
func Wrap(k Kind, cause error, format string, args ...any) error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the kind of err, or Internal when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// MessageOf returns the human-readable part of a classified error.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal error"
}

func NotFoundf(format string, args ...any) error { return New(NotFound, format, args...) }
func Forbiddenf(format string, args ...any) error { return New(Forbidden, format, args...) }
func Conflictf(format string, args ...any) error { return New(Conflict, format, args...) }
func InvalidRef(format string, args ...any) error {
	return New(InvalidReference, format, args...)
}
func Invalid(format string, args ...any) error { return New(InvalidInput, format, args...) }
