/*
Package errs provides custom error types and application-level error code constants.

This file defines the CustomError struct, which implements the standard Go error interface
and carries a business code, a user-facing message, an HTTP status code and an error kind.
Kinds let callers decide between retrying, signing out, or just showing the message.
*/
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"buzzchat/internal/pkg/logx"
)

// Kind classifies an error by how the caller should react to it.
type Kind string

const (
	// KindAuth covers invalid credentials and sessions that are expired or point at a removed account.
	KindAuth Kind = "auth"
	// KindValidation covers input rejected before any request is sent.
	KindValidation Kind = "validation"
	// KindTransport covers backend failures on read, write or upload.
	KindTransport Kind = "transport"
	// KindPermission covers operations the caller is not allowed to perform.
	KindPermission Kind = "permission"
	// KindInternal covers everything else.
	KindInternal Kind = "internal"
)

// CustomError is the custom error structure used throughout the application.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int

	// Message is the user-friendly error description.
	Message string

	// Status is the standard HTTP status code corresponding to this error.
	Status int

	// Kind is the error class.
	Kind Kind

	// Cause is the underlying error, if any. It is never shown to clients.
	Cause error
}

// Error implements the standard Go error interface.
func (e *CustomError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("Error Code %d (HTTP %d): %s: %v", e.Code, e.Status, e.Message, e.Cause)
	}
	return fmt.Sprintf("Error Code %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// Unwrap returns the underlying cause.
func (e *CustomError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a CustomError with the same code, so that
// errors.Is(err, errs.NewError(errs.ErrNameTaken)) works.
func (e *CustomError) Is(target error) bool {
	var t *CustomError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// NewError constructs a new *CustomError from a predefined error code.
// The optional details are printf-style arguments for the message template.
// An unknown code yields ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrUnknown]
		return &unknownErr
	}

	customErr := templateErr

	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	if code == ErrUnknown && len(details) > 0 {
		if originalErr, ok := details[0].(error); ok {
			customErr.Cause = originalErr
			logx.Error(
				originalErr,
				"Handling ErrUnknown with underlying error",
			)
		}
	} else if len(details) > 0 {
		if strings.Contains(customErr.Message, "%") {
			customErr.Message = fmt.Sprintf(customErr.Message, details...)
		} else {
			logx.Warn(
				"Details provided for error, but message template has no formatting placeholders. Details ignored.",
				"code", code,
			)
		}
	}

	return &customErr
}

// Wrap builds the error for code and attaches cause to it.
func Wrap(code int, cause error, details ...any) *CustomError {
	e := NewError(code, details...)
	e.Cause = cause
	return e
}

// As extracts a *CustomError from err's chain.
func As(err error) (*CustomError, bool) {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// KindOf returns the kind of err. Errors that are not CustomErrors are internal.
func KindOf(err error) Kind {
	if ce, ok := As(err); ok && ce.Kind != "" {
		return ce.Kind
	}
	return KindInternal
}

// HasCode reports whether err carries the given business code.
func HasCode(err error, code int) bool {
	ce, ok := As(err)
	return ok && ce.Code == code
}
