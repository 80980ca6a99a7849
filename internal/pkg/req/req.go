/*
Package req binds and validates request payloads.

JSON bodies are decoded strictly (unknown fields rejected, single document) and every bound
struct is checked against its `validate` tags with go-playground/validator.
*/
package req

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"chatterbox/internal/pkg/errs"
	"chatterbox/internal/pkg/logx"
)

const (
	// MaxFormMemory is the in-memory budget for multipart parsing; larger parts spill to temp files.
	MaxFormMemory int64 = 8 << 20

	// MaxRequestBodySize bounds a whole multipart request, file included.
	MaxRequestBodySize int64 = 12 << 20
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate runs struct-tag validation on dst.
func Validate(dst any) *errs.CustomError {
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			logx.Warn("Request validation failed", "field", verrs[0].Namespace(), "tag", verrs[0].Tag())
		}
		return errs.NewError(errs.ErrInvalidParams)
	}
	return nil
}

// BindJSON decodes the JSON body into dst and validates it.
func BindJSON(r *http.Request, dst any) *errs.CustomError {
	if !IsJSON(r) {
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

// IsJSON reports whether the request declares a JSON body.
func IsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// IsMultipart reports whether the request declares a multipart body.
func IsMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// SetupMultipart bounds the body size and parses the multipart form.
func SetupMultipart(w http.ResponseWriter, r *http.Request) *errs.CustomError {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	if err := r.ParseMultipartForm(MaxFormMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errs.NewError(errs.ErrRequestEntityTooLarge)
		}
		return errs.NewError(errs.ErrFormParseFailed)
	}

	return nil
}

// FormFile returns the named file part of a parsed multipart form, or nil when absent.
// The caller closes the returned file.
func FormFile(r *http.Request, field string) (multipart.File, *multipart.FileHeader, *errs.CustomError) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errs.NewError(errs.ErrFormParseFailed)
	}
	return file, header, nil
}

// ReadAllLimited reads at most limit bytes from rd, failing when the source is larger.
func ReadAllLimited(rd io.Reader, limit int64) ([]byte, *errs.CustomError) {
	data, err := io.ReadAll(io.LimitReader(rd, limit+1))
	if err != nil {
		return nil, errs.NewError(errs.ErrFormParseFailed)
	}
	if int64(len(data)) > limit {
		return nil, errs.NewError(errs.ErrFileSizeTooLarge)
	}
	return data, nil
}
