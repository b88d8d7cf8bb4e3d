// Package errors defines the error taxonomy shared by the SIEM engine,
// the threat-intelligence orchestrator, and the transport layer.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrConfig            = errors.New("configuration error")
	ErrTransport         = errors.New("transport error")
	ErrInvalidParams     = errors.New("invalid params")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrExternalService   = errors.New("external service error")
	ErrTimeout           = errors.New("timeout")
	ErrInternal          = errors.New("internal error")
	ErrNotFound          = errors.New("not found")
	ErrUnauthenticated   = errors.New("authentication required")
)

// Kind classifies an error for dispatch and retry decisions.
type Kind string

const (
	KindConfig          Kind = "config"
	KindTransport       Kind = "transport"
	KindInvalidParams   Kind = "invalid_params"
	KindRateLimit       Kind = "rate_limit"
	KindExternalService Kind = "external_service"
	KindTimeout         Kind = "timeout"
	KindInternal        Kind = "internal"
	KindNotFound        Kind = "not_found"
)

// Error is a structured error for engine operations.
type Error struct {
	Kind       Kind
	Op         string // operation that failed, e.g. "siem.search"
	Service    string // external service name if applicable
	Err        error
	StatusCode int // HTTP status code if applicable
	Timestamp  time.Time
	Retryable  bool
}

func (e *Error) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Service, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is maps kinds back to the base sentinel errors.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	switch target {
	case ErrConfig:
		return e.Kind == KindConfig
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrInvalidParams:
		return e.Kind == KindInvalidParams
	case ErrRateLimitExceeded:
		return e.Kind == KindRateLimit
	case ErrExternalService:
		return e.Kind == KindExternalService
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrInternal:
		return e.Kind == KindInternal
	case ErrNotFound:
		return e.Kind == KindNotFound
	}
	return errors.Is(e.Err, target)
}

// New creates a structured Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{
		Kind:      kind,
		Op:        op,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: kindRetryable(kind),
	}
}

// WithService tags the error with the external service that produced it.
func (e *Error) WithService(service string) *Error {
	e.Service = service
	return e
}

// WithStatusCode records the HTTP status and refines retryability.
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	if code >= 500 || code == 429 || code == 408 {
		e.Retryable = true
	} else if code >= 400 && code < 500 {
		e.Retryable = false
	}
	return e
}

func kindRetryable(kind Kind) bool {
	switch kind {
	case KindExternalService:
		return true
	case KindTimeout, KindRateLimit, KindConfig, KindInvalidParams, KindTransport, KindInternal, KindNotFound:
		return false
	}
	return false
}

// Helper constructors used at service boundaries.

func InvalidParams(op string, err error) *Error {
	return New(KindInvalidParams, op, err)
}

func Invalidf(op, format string, args ...any) *Error {
	return New(KindInvalidParams, op, fmt.Errorf(format, args...))
}

func External(op, service string, err error) *Error {
	return New(KindExternalService, op, err).WithService(service)
}

func Timeoutf(op, format string, args ...any) *Error {
	return New(KindTimeout, op, fmt.Errorf(format, args...))
}

func Internal(op string, err error) *Error {
	return New(KindInternal, op, err)
}

func NotFoundf(op, format string, args ...any) *Error {
	return New(KindNotFound, op, fmt.Errorf(format, args...))
}

func Configf(format string, args ...any) *Error {
	return New(KindConfig, "config.load", fmt.Errorf(format, args...))
}

// KindOf classifies an arbitrary error, defaulting to internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrInvalidParams):
		return KindInvalidParams
	case errors.Is(err, ErrRateLimitExceeded):
		return KindRateLimit
	case errors.Is(err, ErrExternalService):
		return KindExternalService
	case errors.Is(err, ErrTransport), errors.Is(err, ErrUnauthenticated):
		return KindTransport
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConfig):
		return KindConfig
	}
	return KindInternal
}

// IsRetryable reports whether an operation that returned err may be retried.
// Only idempotent reads should consult this.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
