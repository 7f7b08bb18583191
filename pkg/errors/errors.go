package errors

import (
	stdErrors "errors"
	"net/http"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeStateConflict     Code = "STATE_CONFLICT"
	CodeIdempotency       Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit         Code = "RATE_LIMITED"
	CodeVariantRequired   Code = "VARIANT_REQUIRED"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeStockConflict     Code = "STOCK_CONFLICT"
	CodeStaleReservation  Code = "STALE_RESERVATION"
	CodeLocationNotFound  Code = "LOCATION_NOT_FOUND"
	CodePersistence       Code = "PERSISTENCE_ERROR"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a code surfaces over HTTP. When ExposeMessage is
// set the error's own message replaces PublicMessage.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	ExposeMessage  bool
}

type surface uint8

const (
	retryable surface = 1 << iota
	details
	expose
)

func describe(status int, public string, s surface) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      s&retryable != 0,
		DetailsAllowed: s&details != 0,
		ExposeMessage:  s&expose != 0,
	}
}

// Codes marked expose carry messages written for callers. The rest hide
// their message behind PublicMessage because it may name tables or hosts.
var metadataByCode = map[Code]Metadata{
	CodeValidation:        describe(http.StatusBadRequest, "validation failed", details|expose),
	CodeForbidden:         describe(http.StatusForbidden, "forbidden", expose),
	CodeNotFound:          describe(http.StatusNotFound, "resource not found", details|expose),
	CodeConflict:          describe(http.StatusConflict, "conflict detected", expose),
	CodeStateConflict:     describe(http.StatusUnprocessableEntity, "state transition disallowed", details|expose),
	CodeIdempotency:       describe(http.StatusConflict, "idempotency key reused", details|expose),
	CodeRateLimit:         describe(http.StatusTooManyRequests, "too many requests", retryable|expose),
	CodeVariantRequired:   describe(http.StatusUnprocessableEntity, "variant selection required", details|expose),
	CodeInsufficientStock: describe(http.StatusConflict, "insufficient stock", details|expose),
	CodeStockConflict:     describe(http.StatusConflict, "stock changed concurrently", retryable|details),
	CodeStaleReservation:  describe(http.StatusConflict, "reservation is stale", retryable|details),
	CodeLocationNotFound:  describe(http.StatusNotFound, "location not found", details|expose),
	CodePersistence:       describe(http.StatusServiceUnavailable, "storage unavailable", retryable),
	CodeInternal:          describe(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:        describe(http.StatusServiceUnavailable, "dependency unavailable", retryable|details),
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// IsRetryable reports whether err is typed with a code a caller may retry.
// Untyped errors are not retryable.
func IsRetryable(err error) bool {
	typed := As(err)
	return typed != nil && MetadataFor(typed.code).Retryable
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

// Code is CodeInternal for a nil receiver.
func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails attaches a caller-safe payload in place and returns e for chaining.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

// Error omits the cause; LogFields renders the full chain.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the given typed code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// Persistence wraps a storage failure unless it already carries a typed code.
func Persistence(err error, message string) error {
	if err == nil {
		return nil
	}
	if As(err) != nil {
		return err
	}
	return Wrap(CodePersistence, err, message)
}
