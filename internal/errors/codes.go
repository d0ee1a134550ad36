// Package errors provides structured error handling for ragload.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors (fatal, rejected before processing)
//   - 2XX: Conversion errors (fatal for one document)
//   - 3XX: Embedding errors (per-chunk, recoverable)
//   - 4XX: Store errors (per-chunk, retryable with backoff)
//   - 5XX: Consistency and internal errors
package errors

import "strings"

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryConversion indicates document conversion errors.
	CategoryConversion Category = "CONVERSION"
	// CategoryEmbedding indicates embedding collaborator errors.
	CategoryEmbedding Category = "EMBEDDING"
	// CategoryStore indicates target-store write errors.
	CategoryStore Category = "STORE"
	// CategoryConsistency indicates cross-store consistency violations.
	CategoryConsistency Category = "CONSISTENCY"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, the load must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but the load continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeChunkingParams = "ERR_103_CHUNKING_PARAMS"

	// Conversion errors (200-299)
	ErrCodeConversionFailed = "ERR_201_CONVERSION_FAILED"
	ErrCodeManifestInvalid  = "ERR_202_MANIFEST_INVALID"
	ErrCodeSourceNotFound   = "ERR_203_SOURCE_NOT_FOUND"

	// Embedding errors (300-399)
	ErrCodeEmbeddingFailed     = "ERR_301_EMBEDDING_FAILED"
	ErrCodeEmbedderUnavailable = "ERR_302_EMBEDDER_UNAVAILABLE"
	ErrCodeDimensionMismatch   = "ERR_303_DIMENSION_MISMATCH"

	// Store errors (400-499)
	ErrCodeStoreWrite   = "ERR_401_STORE_WRITE"
	ErrCodeStoreCorrupt = "ERR_402_STORE_CORRUPT"
	ErrCodeStoreLocked  = "ERR_403_STORE_LOCKED"

	// Consistency and internal errors (500-599)
	ErrCodeConsistency = "ERR_501_CONSISTENCY"
	ErrCodeInternal    = "ERR_502_INTERNAL"
)

// categoryFromCode extracts the category from an error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 || !strings.HasPrefix(code, "ERR_") {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryConversion
	case '3':
		return CategoryEmbedding
	case '4':
		return CategoryStore
	case '5':
		if code == ErrCodeConsistency {
			return CategoryConsistency
		}
		return CategoryInternal
	default:
		return CategoryInternal
	}
}

// severityFromCode derives severity from the error code.
// Config and conversion errors abort the document; everything else is
// chunk-level and the load continues.
func severityFromCode(code string) Severity {
	switch categoryFromCode(code) {
	case CategoryConfig, CategoryConversion:
		return SeverityFatal
	default:
		return SeverityError
	}
}

// retryableCodes are errors worth retrying with backoff.
var retryableCodes = map[string]bool{
	ErrCodeStoreWrite:          true,
	ErrCodeStoreLocked:         true,
	ErrCodeEmbedderUnavailable: true,
}

// isRetryableCode reports whether the code designates a retryable failure.
func isRetryableCode(code string) bool {
	return retryableCodes[code]
}
