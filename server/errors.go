package server

import (
	"errors"
	"fmt"
	"net/http"

	vdot "github.com/lucasjlepore/vdot-analyzer"
	"github.com/lucasjlepore/vdot-analyzer/forecast"
)

// ErrorCode is the machine-readable code in error envelopes.
type ErrorCode string

const (
	ErrCodeInvalidUpload       ErrorCode = "validation_invalid_upload"
	ErrCodeInvalidQuery        ErrorCode = "validation_invalid_query"
	ErrCodeUploadTooLarge      ErrorCode = "validation_upload_too_large"
	ErrCodeSchemaMissingColumn ErrorCode = "schema_missing_column"
	ErrCodeNoRuns              ErrorCode = "data_quality_no_runs"
	ErrCodeInsufficientData    ErrorCode = "forecast_insufficient_data"
	ErrCodeModelFailed         ErrorCode = "forecast_model_failed"
	ErrCodeForecastInput       ErrorCode = "forecast_invalid_input"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps a code to its response status.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrCodeInvalidUpload, ErrCodeInvalidQuery, ErrCodeForecastInput:
		return http.StatusBadRequest
	case ErrCodeUploadTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrCodeSchemaMissingColumn, ErrCodeNoRuns, ErrCodeInsufficientData, ErrCodeModelFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// AppError is an error with a client-facing code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError builds an AppError.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// classify maps pipeline errors onto client-facing codes. Unknown errors stay
// unclassified and are reported as internal.
func classify(err error) error {
	var (
		appErr    *AppError
		schemaErr *vdot.SchemaError
		dqErr     *vdot.DataQualityError
		maxErr    *http.MaxBytesError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &maxErr):
		return NewAppError(ErrCodeUploadTooLarge, fmt.Sprintf("upload exceeds %d bytes", maxErr.Limit), err)
	case errors.As(err, &schemaErr):
		return NewAppError(ErrCodeSchemaMissingColumn, schemaErr.Error(), err)
	case errors.As(err, &dqErr):
		return NewAppError(ErrCodeNoRuns, dqErr.Error(), err)
	default:
		return err
	}
}

// forecastError converts a forecast failure into an AppError.
func forecastError(f *forecast.Failure) *AppError {
	code := ErrCodeInternalUnexpected
	switch f.Reason {
	case forecast.ReasonInsufficientData:
		code = ErrCodeInsufficientData
	case forecast.ReasonModelFailed:
		code = ErrCodeModelFailed
	case forecast.ReasonInvalidInput:
		code = ErrCodeForecastInput
	}
	return NewAppError(code, f.Message, f)
}
