package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrConfiguration = errors.New("email service not configured")
	ErrValidation    = errors.New("invalid input")
	ErrNotFound      = errors.New("not found")
	ErrExpired       = errors.New("expired")
	ErrMismatch      = errors.New("code mismatch")
	ErrDispatch      = errors.New("email dispatch failed")
	ErrNotVerified   = errors.New("email not verified")
)

// Error kinds, used as metric labels and as the machine-readable error code in responses.
const (
	KindOK            = "ok"
	KindConfiguration = "configuration"
	KindValidation    = "validation"
	KindNotFound      = "not_found"
	KindExpired       = "expired"
	KindMismatch      = "mismatch"
	KindDispatch      = "dispatch"
	KindNotVerified   = "not_verified"
	KindUnknown       = "unknown"
)

// Kind classifies err by the first sentinel it wraps.
func Kind(err error) string {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrExpired):
		return KindExpired
	case errors.Is(err, ErrMismatch):
		return KindMismatch
	case errors.Is(err, ErrDispatch):
		return KindDispatch
	case errors.Is(err, ErrNotVerified):
		return KindNotVerified
	default:
		return KindUnknown
	}
}

// AsDispatchError makes sure an error coming back from an email backend carries one of
// ErrConfiguration, ErrValidation or ErrDispatch. Unclassified errors become ErrDispatch.
func AsDispatchError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConfiguration) || errors.Is(err, ErrValidation) || errors.Is(err, ErrDispatch) {
		return err
	}
	return &dispatchError{err: err}
}

type dispatchError struct{ err error }

func (e *dispatchError) Error() string { return e.err.Error() + ": " + ErrDispatch.Error() }

func (e *dispatchError) Unwrap() []error { return []error{e.err, ErrDispatch} }
