package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies failures of the checkout and settlement flows.
type Kind string

const (
	KindValidation        Kind = "VALIDATION"
	KindConfiguration     Kind = "CONFIGURATION"
	KindInsufficientStock Kind = "INSUFFICIENT_STOCK"
	KindExpired           Kind = "EXPIRED"
	KindNotFound          Kind = "NOT_FOUND"
	KindSignatureInvalid  Kind = "SIGNATURE_INVALID"
	KindGateway           Kind = "GATEWAY"
	KindDatabase          Kind = "DATABASE"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its kind.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrConfiguration     = &Error{Kind: KindConfiguration}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrExpired           = &Error{Kind: KindExpired}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrSignatureInvalid  = &Error{Kind: KindSignatureInvalid}
	ErrGateway           = &Error{Kind: KindGateway}
	ErrDatabase          = &Error{Kind: KindDatabase}
)

type Error struct {
	Kind    Kind
	Message string
	// Detail carries upstream diagnostics (e.g. a gateway's raw error body).
	// It is logged, never rendered to external callers.
	Detail []byte
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so callers can write errors.Is(err, apperr.ErrExpired).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func Configuration(format string, args ...any) *Error {
	return New(KindConfiguration, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func Database(err error, format string, args ...any) *Error {
	return Wrap(KindDatabase, err, format, args...)
}

// Gateway wraps a non-success provider response, keeping the raw body.
func Gateway(body []byte, format string, args ...any) *Error {
	return &Error{Kind: KindGateway, Message: fmt.Sprintf(format, args...), Detail: body}
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps an error to the status code returned to storefront clients.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindSignatureInvalid:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInsufficientStock:
		return http.StatusConflict
	case KindExpired:
		return http.StatusGone
	case KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to show to a storefront user.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal server error"
	}
	switch e.Kind {
	case KindValidation, KindInsufficientStock, KindExpired, KindNotFound:
		if e.Message != "" {
			return e.Message
		}
		return e.Error()
	case KindSignatureInvalid:
		return "payment verification failed"
	case KindGateway:
		return "payment provider unavailable, please retry"
	case KindConfiguration:
		return "payments are not configured"
	default:
		return "internal server error"
	}
}
