/*
Package req provides helper functions for HTTP request parsing and data binding.

It parses JSON and multipart bodies, enforces size limits, and runs struct tag
validation so handlers receive well-formed input or a ready-made CustomError.
*/
package req

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"buzzchat/internal/pkg/errs"

	"github.com/go-playground/validator/v10"
)

const (
	// MaxFormMemory is the memory ParseMultipartForm may use before spilling to temporary files.
	MaxFormMemory int64 = 8 << 20 // 8 MB

	// MaxRequestFileSize caps the whole multipart body, enforced via http.MaxBytesReader.
	MaxRequestFileSize int64 = 8 << 20 // 8 MB
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// BindJSON decodes the JSON request body into dst and validates it with its `validate` tags.
func BindJSON(r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return Validate(dst)
}

// Validate runs struct validation on dst.
func Validate(dst any) *errs.CustomError {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return errs.NewError(errs.ErrUnknown, err)
	}
	return errs.Wrap(errs.ErrInvalidParams, err)
}

// SetupMultipart parses a multipart or URL-encoded form body under MaxRequestFileSize.
func SetupMultipart(w http.ResponseWriter, r *http.Request) *errs.CustomError {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestFileSize)

	err := r.ParseMultipartForm(MaxFormMemory)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			return errs.NewError(errs.ErrRequestEntityTooLarge)
		}

		return errs.NewError(errs.ErrFormParseFailed)
	}

	return nil
}
