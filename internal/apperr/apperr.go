package apperr

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindInsufficientStock
	KindDeviceUnavailable
	KindInvalidTransition
	KindRateLimited
	KindDataCorruption
	KindTimeout
)

var kindNames = map[Kind]string{
	KindInternal:          "internal",
	KindValidation:        "validation",
	KindUnauthenticated:   "unauthenticated",
	KindForbidden:         "forbidden",
	KindNotFound:          "not_found",
	KindConflict:          "conflict",
	KindInsufficientStock: "insufficient_stock",
	KindDeviceUnavailable: "device_unavailable",
	KindInvalidTransition: "invalid_transition",
	KindRateLimited:       "rate_limited",
	KindDataCorruption:    "data_corruption",
	KindTimeout:           "timeout",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// HTTPStatus maps a kind onto the status code used in the response envelope.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindInsufficientStock, KindDeviceUnavailable:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInvalidTransition:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Machine codes.
const (
	CodeValidation            = "VALIDATION_ERROR"
	CodeUnauthenticated       = "UNAUTHENTICATED"
	CodeForbidden             = "FORBIDDEN"
	CodeInvalidCredentials    = "INVALID_CREDENTIALS"
	CodeDeviceNotFound        = "DEVICE_NOT_FOUND"
	CodeAccessoryNotFound     = "ACCESSORY_NOT_FOUND"
	CodeParcelNotFound        = "PARCEL_NOT_FOUND"
	CodeTrackingNotFound      = "TRACKING_NOT_FOUND"
	CodeTicketNotFound        = "TICKET_NOT_FOUND"
	CodeUserNotFound          = "USER_NOT_FOUND"
	CodeTrackingExists        = "TRACKING_EXISTS"
	CodeTicketAlreadyAssigned = "TICKET_ALREADY_ASSIGNED"
	CodePhoneTaken            = "PHONE_TAKEN"
	CodeConflict              = "CONFLICT"
	CodeDuplicateRequest      = "DUPLICATE_REQUEST"
	CodeInsufficientStock     = "INSUFFICIENT_STOCK"
	CodeDeviceUnavailable     = "DEVICE_UNAVAILABLE"
	CodeInvalidTransition     = "INVALID_TRANSITION"
	CodeRateLimited           = "RATE_LIMITED"
	CodeDataCorruption        = "DATA_CORRUPTION"
	CodeTimeout               = "TIMEOUT"
	CodeInternal              = "INTERNAL"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func Validation(format string, args ...any) *Error {
	return Newf(KindValidation, CodeValidation, format, args...)
}

func NotFound(code, format string, args ...any) *Error {
	return Newf(KindNotFound, code, format, args...)
}

func Conflict(code, format string, args ...any) *Error {
	return Newf(KindConflict, code, format, args...)
}

func InvalidTransition(format string, args ...any) *Error {
	return Newf(KindInvalidTransition, CodeInvalidTransition, format, args...)
}

// As extracts the typed error. Deadline errors without a typed error are
// reported as timeouts, everything else untyped is internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, KindTimeout, CodeTimeout, "request timed out, outcome unknown")
	}
	return Wrap(err, KindInternal, CodeInternal, "internal error")
}

func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	return As(err).Kind
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return As(err).Code
}
