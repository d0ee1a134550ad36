package errors

import (
	stderrors "errors"
	"fmt"
)

// LoadError is the structured error type for ragload.
// It carries an error code, category, and severity so chunk-level
// failures can be classified in the LoadReport without string matching.
type LoadError struct {
	// Code is the unique error code (e.g., "ERR_401_STORE_WRITE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Conversion, Store, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with LoadError.
func (e *LoadError) Is(target error) bool {
	if t, ok := target.(*LoadError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *LoadError) WithDetail(key, value string) *LoadError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new LoadError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *LoadError {
	return &LoadError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a LoadError from an existing error.
// Returns nil if err is nil.
func Wrap(code string, err error) *LoadError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error (fatal, pre-flight).
func ConfigError(message string, cause error) *LoadError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ChunkingParamsError creates an invalid-chunking-parameters error.
// Rejected at the boundary before any store is touched.
func ChunkingParamsError(message string) *LoadError {
	return New(ErrCodeChunkingParams, message, nil)
}

// ConversionError creates a document-conversion error.
// Fatal for that document, never for siblings.
func ConversionError(message string, cause error) *LoadError {
	return New(ErrCodeConversionFailed, message, cause)
}

// EmbeddingError creates a per-chunk embedding failure.
func EmbeddingError(message string, cause error) *LoadError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// StoreError creates a store-write error (retryable with backoff).
func StoreError(message string, cause error) *LoadError {
	return New(ErrCodeStoreWrite, message, cause)
}

// ConsistencyError creates a cross-store consistency error: a parent
// record could not be confirmed before its children were due.
func ConsistencyError(message string, cause error) *LoadError {
	return New(ErrCodeConsistency, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *LoadError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain contains a LoadError with the
// Retryable flag set.
func IsRetryable(err error) bool {
	var le *LoadError
	if stderrors.As(err, &le) {
		return le.Retryable
	}
	return false
}

// CategoryOf returns the category of the LoadError in the chain, or
// CategoryInternal for any other error.
func CategoryOf(err error) Category {
	var le *LoadError
	if stderrors.As(err, &le) {
		return le.Category
	}
	return CategoryInternal
}

// CodeOf returns the code of the LoadError in the chain, or
// ErrCodeInternal for any other error.
func CodeOf(err error) string {
	var le *LoadError
	if stderrors.As(err, &le) {
		return le.Code
	}
	return ErrCodeInternal
}
