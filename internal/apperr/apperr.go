// ABOUTME: Error kinds shared by the relay, stores, and catalog
// ABOUTME: Translates kinds to HTTP status codes at the server boundary

package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindAlreadyExists
	KindConfiguration
	KindUpstream
	KindTimeout
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindConfiguration:
		return "configuration"
	case KindUpstream:
		return "upstream"
	case KindTimeout:
		return "timeout"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Error carries a kind alongside the failing operation and cause.
// Status is only meaningful for KindUpstream, where it holds the
// status code returned by the remote service.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Kind.String()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Kind == KindUpstream && e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind so callers can write
// errors.Is(err, apperr.NotFound) against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	NotFound      = &Error{Kind: KindNotFound}
	AlreadyExists = &Error{Kind: KindAlreadyExists}
	Configuration = &Error{Kind: KindConfiguration}
	Upstream      = &Error{Kind: KindUpstream}
	Timeout       = &Error{Kind: KindTimeout}
	Validation    = &Error{Kind: KindValidation}
)

// New returns an error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf formats a message into an error of the given kind.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// UpstreamStatus returns an upstream error carrying the remote status code.
func UpstreamStatus(op string, status int, err error) *Error {
	return &Error{Kind: KindUpstream, Op: op, Status: status, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error to the status code the API contract requires.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyExists:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindValidation:
		return http.StatusBadRequest
	default:
		// configuration and uncategorized errors
		return http.StatusInternalServerError
	}
}
