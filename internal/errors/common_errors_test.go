package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorType_Constants(t *testing.T) {
	tests := []struct {
		name     string
		errType  ErrorType
		expected string
	}{
		{"source not found", ErrTypeSourceNotFound, "SOURCE_NOT_FOUND"},
		{"malformed row", ErrTypeMalformedRow, "MALFORMED_ROW"},
		{"computation skipped", ErrTypeComputationSkipped, "COMPUTATION_SKIPPED"},
		{"model fit failure", ErrTypeModelFitFailure, "MODEL_FIT_FAILURE"},
		{"write conflict", ErrTypeWriteConflict, "WRITE_CONFLICT"},
		{"config", ErrTypeConfig, "CONFIG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.errType))
		})
	}
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name        string
		appError    *AppError
		wantMessage string
	}{
		{
			name:        "error without cause",
			appError:    &AppError{Type: ErrTypeConfig, Message: "bad year cutoff"},
			wantMessage: "[CONFIG] bad year cutoff",
		},
		{
			name: "error with cause",
			appError: &AppError{
				Type:    ErrTypeStorage,
				Message: "insert run",
				Cause:   fmt.Errorf("disk full"),
			},
			wantMessage: "[STORAGE] insert run: disk full",
		},
		{
			name:        "error with empty message",
			appError:    &AppError{Type: ErrTypeValidation},
			wantMessage: "[VALIDATION] ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMessage, tt.appError.Error())
		})
	}
}

func TestAppError_WithContext_NilContext(t *testing.T) {
	appError := &AppError{Type: ErrTypeParsing, Message: "bad cell"}

	result := appError.WithContext("row", 7)

	assert.Same(t, appError, result)
	require.NotNil(t, result.Context)
	assert.Equal(t, 7, result.Context["row"])
}

func TestTypeOf(t *testing.T) {
	wrapped := fmt.Errorf("stage clean: %w", NewSourceNotFoundError("debt", "FI_T1.xlsx", "/data"))

	assert.Equal(t, ErrTypeSourceNotFound, TypeOf(wrapped))
	assert.True(t, IsType(wrapped, ErrTypeSourceNotFound))
	assert.False(t, IsType(wrapped, ErrTypeWriteConflict))
	assert.Equal(t, ErrorType(""), TypeOf(errors.New("plain")))
}

func TestAppError_Is(t *testing.T) {
	err := fmt.Errorf("save: %w", NewWriteConflictError("/out/final_data.csv", fs.ErrPermission))

	assert.True(t, errors.Is(err, &AppError{Type: ErrTypeWriteConflict}))
	assert.False(t, errors.Is(err, &AppError{Type: ErrTypeStorage}))
	assert.True(t, errors.Is(err, fs.ErrPermission), "cause must stay reachable")
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		wantType ErrorType
		contains string
		ctxKey   string
	}{
		{
			name:     "source not found",
			err:      NewSourceNotFoundError("tobin_q", "FI_T10.xlsx", "/base"),
			wantType: ErrTypeSourceNotFound,
			contains: "FI_T10.xlsx not found under /base",
			ctxKey:   "source",
		},
		{
			name:     "malformed rows",
			err:      NewMalformedRowError("debt", 2),
			wantType: ErrTypeMalformedRow,
			contains: "dropped 2 rows",
			ctxKey:   "dropped",
		},
		{
			name:     "computation skipped",
			err:      NewComputationSkippedError("Age", "negative age", 4),
			wantType: ErrTypeComputationSkipped,
			contains: "Age left missing for 4 rows: negative age",
			ctxKey:   "field",
		},
		{
			name:     "model fit",
			err:      NewModelFitError("tfp", "column TFP_OLS not found", nil),
			wantType: ErrTypeModelFitFailure,
			contains: `model "tfp": column TFP_OLS not found`,
			ctxKey:   "model",
		},
		{
			name:     "write conflict carries guidance",
			err:      NewWriteConflictError("final_data.csv", fs.ErrPermission),
			wantType: ErrTypeWriteConflict,
			contains: "close the file",
			ctxKey:   "path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.Contains(t, tt.err.Error(), tt.contains)
			assert.Contains(t, tt.err.Context, tt.ctxKey)
		})
	}
}
