package shared

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Kind sentinels; every [*Error] matches the sentinel of its [Kind] via [errors.Is].
	ErrInvalidDomain      = fmt.Errorf("invalid domain")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidInput       = fmt.Errorf("invalid input")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrConnection         = fmt.Errorf("connection failed")
	ErrNoContent          = fmt.Errorf("no content found")
	ErrIntegrity          = fmt.Errorf("integrity violation")

	// Storage errors
	ErrNotFound  = fmt.Errorf("record not found")
	ErrDuplicate = fmt.Errorf("record already exists")

	// Input validation errors
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)

// Kind classifies failures of the linking and feed operations.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidDomain
	KindInvalidCredentials
	KindInvalidInput
	KindServiceUnavailable
	KindConnection
	KindNoContent
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindInvalidDomain:
		return "invalid_domain"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindInvalidInput:
		return "invalid_input"
	case KindServiceUnavailable:
		return "service_unavailable"
	case KindConnection:
		return "connection_error"
	case KindNoContent:
		return "no_content_found"
	case KindIntegrity:
		return "integrity_error"
	default:
		return "unknown"
	}
}

// Status returns the HTTP status the web layer reports for the kind.
func (k Kind) Status() int {
	switch k {
	case KindInvalidDomain:
		return http.StatusNotFound
	case KindInvalidCredentials, KindInvalidInput:
		return http.StatusForbidden
	case KindNoContent:
		return http.StatusBadRequest
	case KindServiceUnavailable, KindConnection:
		return http.StatusServiceUnavailable
	case KindIntegrity:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidDomain:
		return ErrInvalidDomain
	case KindInvalidCredentials:
		return ErrInvalidCredentials
	case KindInvalidInput:
		return ErrInvalidInput
	case KindServiceUnavailable:
		return ErrServiceUnavailable
	case KindConnection:
		return ErrConnection
	case KindNoContent:
		return ErrNoContent
	case KindIntegrity:
		return ErrIntegrity
	default:
		return nil
	}
}

// Error is a typed failure carrying a user-facing message and the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// NewError builds an [*Error] of kind k.
func NewError(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Message: msg, Err: cause}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the [Kind] of the first [*Error] in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// MessageOf returns the user-facing message of err, or fallback when err is not an [*Error].
func MessageOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}
