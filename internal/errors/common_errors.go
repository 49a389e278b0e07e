package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeSourceNotFound     ErrorType = "SOURCE_NOT_FOUND"
	ErrTypeMalformedRow       ErrorType = "MALFORMED_ROW"
	ErrTypeComputationSkipped ErrorType = "COMPUTATION_SKIPPED"
	ErrTypeModelFitFailure    ErrorType = "MODEL_FIT_FAILURE"
	ErrTypeWriteConflict      ErrorType = "WRITE_CONFLICT"
	ErrTypeParsing            ErrorType = "PARSING"
	ErrTypeStorage            ErrorType = "STORAGE"
	ErrTypeValidation         ErrorType = "VALIDATION"
	ErrTypeConfig             ErrorType = "CONFIG"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another AppError of the same type, so sentinel-style checks
// such as errors.Is(err, &AppError{Type: ErrTypeWriteConflict}) work.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Type == e.Type && (t.Message == "" || t.Message == e.Message)
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// TypeOf returns the ErrorType of the first AppError in err's chain, or ""
// when there is none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsType reports whether err's chain holds an AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	return TypeOf(err) == errType
}

// NewSourceNotFoundError reports a registry source whose file could not be
// located under dir.
func NewSourceNotFoundError(source, fileName, dir string) *AppError {
	return NewAppError(ErrTypeSourceNotFound,
		fmt.Sprintf("source %q: %s not found under %s", source, fileName, dir), nil).
		WithContext("source", source).
		WithContext("file", fileName)
}

// NewMalformedRowError reports rows discarded as header or footer noise.
func NewMalformedRowError(source string, dropped int) *AppError {
	return NewAppError(ErrTypeMalformedRow,
		fmt.Sprintf("source %q: dropped %d rows with a non-numeric identifier", source, dropped), nil).
		WithContext("source", source).
		WithContext("dropped", dropped)
}

// NewComputationSkippedError reports a derived field that could not be
// computed for some rows.
func NewComputationSkippedError(field, reason string, rows int) *AppError {
	return NewAppError(ErrTypeComputationSkipped,
		fmt.Sprintf("%s left missing for %d rows: %s", field, rows, reason), nil).
		WithContext("field", field).
		WithContext("rows", rows)
}

// NewModelFitError reports a model that could not be estimated.
func NewModelFitError(model, message string, cause error) *AppError {
	return NewAppError(ErrTypeModelFitFailure,
		fmt.Sprintf("model %q: %s", model, message), cause).
		WithContext("model", model)
}

// NewWriteConflictError reports a destination that could not be replaced,
// usually because another program holds it open.
func NewWriteConflictError(path string, cause error) *AppError {
	return NewAppError(ErrTypeWriteConflict,
		fmt.Sprintf("cannot write %s; close the file if it is open in Excel or another program and retry", path), cause).
		WithContext("path", path)
}

// NewParsingError creates a parsing-related error
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewAppValidationError creates a validation error for AppError type
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}
