package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on error code so wrapped instances compare equal to the
// sentinel values below.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	// ErrValidation: malformed recurrence parameters or other bad input,
	// rejected before anything is persisted or scheduled.
	ErrValidation = &AppError{Code: "VALIDATION_001", Message: "invalid input"}

	// ErrNotFound: the referenced medication id is absent from the store.
	ErrNotFound = &AppError{Code: "NOTFOUND_001", Message: "medication not found"}

	// ErrScheduling: an individual alert failed to register with the
	// platform; does not abort the batch.
	ErrScheduling = &AppError{Code: "SCHED_001", Message: "alert scheduling failed"}

	// ErrCancellation: a previously stored alert handle could not be
	// cancelled; logged, never fatal.
	ErrCancellation = &AppError{Code: "SCHED_002", Message: "alert cancellation failed"}

	// ErrStorage: the persistent store rejected a read or write; fatal to
	// the current operation.
	ErrStorage = &AppError{Code: "STORAGE_001", Message: "storage operation failed"}

	ErrLookupUnavailable = &AppError{Code: "LOOKUP_001", Message: "drug lookup service unavailable"}
	ErrLookupNoMatch     = &AppError{Code: "LOOKUP_002", Message: "no medication matches the code"}

	ErrConfigInvalid = &AppError{Code: "CONFIG_001", Message: "invalid configuration"}

	ErrUnauthorized = &AppError{Code: "AUTH_001", Message: "unauthorized"}
)

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:    sentinel.Code,
		Message: message,
		Cause:   err,
	}
}
