package errors

import (
	"context"
	"errors"
	"fmt"
)

type Code string

const (
	ErrConfiguration Code = "CONFIGURATION_ERROR"
	ErrAsset         Code = "ASSET_ERROR"
	ErrTransient     Code = "TRANSIENT_ERROR"
	ErrPolicy        Code = "POLICY_ERROR"
	ErrCancelled     Code = "CANCELLED"
	ErrUnknown       Code = "UNKNOWN"

	ErrRateLimited      Code = "RATE_LIMITED"
	ErrTimeout          Code = "TIMEOUT"
	ErrDecodeFailed     Code = "DECODE_FAILED"
	ErrValidationFailed Code = "VALIDATION_FAILED"
	ErrDatabaseError    Code = "DATABASE_ERROR"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code Code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// GetCode returns the code of the outermost coded error in the chain.
func GetCode(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrUnknown
}

// IsCancelled reports whether err stands for a caller-initiated cancellation,
// either as a coded CANCELLED error or a bare context.Canceled.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	return HasCode(err, ErrCancelled)
}

func IsConfiguration(err error) bool {
	return HasCode(err, ErrConfiguration)
}

// HasCode reports whether any coded error in the chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}
