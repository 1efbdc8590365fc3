package apierrors

import (
	"errors"
	"fmt"
)

// Kind identifies a failure category surfaced to callers of the engine.
type Kind string

// Verification failures. These travel inside result values, never as Go errors.
const (
	ErrInvalidCodeFormat Kind = "INVALID_CODE_FORMAT"
	ErrInvalidCode       Kind = "INVALID_CODE"
	ErrCodeExpired       Kind = "CODE_EXPIRED"
	ErrCodeAlreadyUsed   Kind = "CODE_ALREADY_USED"
	ErrRateLimited       Kind = "RATE_LIMITED"
	ErrMethodNotEnabled  Kind = "METHOD_NOT_ENABLED"
)

// Lookup and enrollment failures.
const (
	ErrUserNotFound           Kind = "USER_NOT_FOUND"
	ErrConfigNotFound         Kind = "CONFIG_NOT_FOUND"
	ErrChannelUnavailable     Kind = "CHANNEL_UNAVAILABLE"
	ErrDuplicateMethodForUser Kind = "DUPLICATE_METHOD_FOR_USER"
	ErrInvalidPhoneFormat     Kind = "INVALID_PHONE_FORMAT"
	ErrInvalidEmailFormat     Kind = "INVALID_EMAIL_FORMAT"
	ErrInvalidSecretFormat    Kind = "INVALID_SECRET_FORMAT"
)

// Hard failures. Never reported as a wrong code.
const (
	ErrEncryptionFailure Kind = "ENCRYPTION_FAILURE"
	ErrStoreUnavailable  Kind = "STORE_UNAVAILABLE"
)

type APIError struct {
	Code  int    `json:"-"`
	Kind  Kind   `json:"error"`
	cause error
}

func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	}
	return string(e.Kind)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

func NewAPIError(code int, kind Kind) *APIError {
	return &APIError{Code: code, Kind: kind}
}

// Wrap attaches the underlying cause so it is logged but never shown to the end user.
func Wrap(code int, kind Kind, cause error) *APIError {
	return &APIError{Code: code, Kind: kind, cause: cause}
}

func StoreUnavailable(cause error) *APIError {
	return Wrap(503, ErrStoreUnavailable, cause)
}

func EncryptionFailure(cause error) *APIError {
	return Wrap(500, ErrEncryptionFailure, cause)
}

// KindOf returns the Kind carried by err, or an empty Kind for foreign errors.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsHardFailure reports crypto and storage faults, including errors that did not originate here.
// A stored secret that no longer decodes is a crypto fault, not a wrong code.
func IsHardFailure(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case ErrEncryptionFailure, ErrInvalidSecretFormat, ErrStoreUnavailable, "":
		return true
	default:
		return false
	}
}
