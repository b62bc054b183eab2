package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies failures surfaced to API callers.
type Kind string

const (
	Auth            Kind = "auth"
	NotFound        Kind = "not_found"
	Config          Kind = "config"
	Validation      Kind = "validation"
	Upstream        Kind = "upstream"
	UpstreamTimeout Kind = "upstream_timeout"
	Storage         Kind = "storage"
	Schema          Kind = "schema"
	Persistence     Kind = "persistence"
	Internal        Kind = "internal"
)

var statusByKind = map[Kind]int{
	Auth:            http.StatusUnauthorized,
	NotFound:        http.StatusNotFound,
	Config:          http.StatusInternalServerError,
	Validation:      http.StatusBadRequest,
	Upstream:        http.StatusBadGateway,
	UpstreamTimeout: http.StatusGatewayTimeout,
	Storage:         http.StatusInternalServerError,
	Schema:          http.StatusInternalServerError,
	Persistence:     http.StatusInternalServerError,
	Internal:        http.StatusInternalServerError,
}

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error without an underlying cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Status maps err to the HTTP status of its kind.
func Status(err error) int {
	if s, ok := statusByKind[KindOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}
