package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents an arag error code.
type ErrorCode string

const (
	ErrInvalidRequest           ErrorCode = "INVALID_REQUEST"           // 400
	ErrNotFound                 ErrorCode = "NOT_FOUND"                 // 404
	ErrAlreadyExists            ErrorCode = "ALREADY_EXISTS"            // 409
	ErrDestinationExists        ErrorCode = "DESTINATION_EXISTS"        // 409
	ErrConfirmationRequired     ErrorCode = "CONFIRMATION_REQUIRED"     // 409
	ErrMissingPrerequisite      ErrorCode = "MISSING_PREREQUISITE"      // 412
	ErrShortRead                ErrorCode = "SHORT_READ"                // 500
	ErrUnsupportedCompression   ErrorCode = "UNSUPPORTED_COMPRESSION"   // 415
	ErrWriteNotSupported        ErrorCode = "WRITE_NOT_SUPPORTED"       // 405
	ErrProvider                 ErrorCode = "PROVIDER_ERROR"            // 502
	ErrProviderUnavailable      ErrorCode = "PROVIDER_UNAVAILABLE"      // 503
	ErrAuthenticationMissing    ErrorCode = "AUTHENTICATION_MISSING"    // 401
	ErrUnsupportedConfiguration ErrorCode = "UNSUPPORTED_CONFIGURATION" // 400
	ErrIndexingAborted          ErrorCode = "INDEXING_ABORTED"          // 502
	ErrEmptyIndex               ErrorCode = "EMPTY_INDEX"               // 422
	ErrNotUTF8                  ErrorCode = "NOT_UTF8"                  // 422 (per-file warning)
	ErrUnsupportedFormat        ErrorCode = "UNSUPPORTED_FORMAT"        // 415 (per-file warning)
	ErrRuneTooLarge             ErrorCode = "RUNE_TOO_LARGE"            // 422
	ErrCancelled                ErrorCode = "CANCELLED"                 // 499
	ErrInternal                 ErrorCode = "INTERNAL"                  // 500
)

// AragError represents a structured error with code, status, and details.
type AragError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *AragError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AragError) Unwrap() error {
	return e.Err
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *AragError {
	return &AragError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing file, member or chunk.
func NewNotFound(identifier string) *AragError {
	return &AragError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewAlreadyExists creates a 409 error when a chunk store is already present.
func NewAlreadyExists(path string) *AragError {
	return &AragError{
		Code:    ErrAlreadyExists,
		Status:  409,
		Message: fmt.Sprintf("%s already exists; pass overwrite to rebuild it", path),
		Details: map[string]any{"path": path},
	}
}

// NewDestinationExists creates a 409 error when a pack/unpack/download target exists.
func NewDestinationExists(path string) *AragError {
	return &AragError{
		Code:    ErrDestinationExists,
		Status:  409,
		Message: fmt.Sprintf("destination already exists: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewConfirmationRequired creates a 409 error for destructive operations that need
// an explicit confirmation.
func NewConfirmationRequired(msg string, details map[string]any) *AragError {
	return &AragError{
		Code:    ErrConfirmationRequired,
		Status:  409,
		Message: msg,
		Details: details,
	}
}

// NewMissingPrerequisite creates a 412 error, e.g. querying before chunking.
func NewMissingPrerequisite(msg string) *AragError {
	return &AragError{
		Code:    ErrMissingPrerequisite,
		Status:  412,
		Message: msg,
	}
}

// NewShortRead creates an error for a read that returned fewer bytes than requested.
func NewShortRead(offset int64, want, got int) *AragError {
	return &AragError{
		Code:    ErrShortRead,
		Status:  500,
		Message: fmt.Sprintf("short read at offset %d: wanted %d bytes, got %d", offset, want, got),
		Details: map[string]any{"offset": offset, "want": want, "got": got},
	}
}

// NewUnsupportedCompression creates a 415 error for archive members that are not stored.
func NewUnsupportedCompression(member string, method uint16) *AragError {
	return &AragError{
		Code:    ErrUnsupportedCompression,
		Status:  415,
		Message: fmt.Sprintf("archive member %s is compressed (method %d); it must be stored", member, method),
		Details: map[string]any{"member": member, "method": method},
	}
}

// NewWriteNotSupported creates a 405 error for writes against read-only storage.
func NewWriteNotSupported(msg string) *AragError {
	return &AragError{
		Code:    ErrWriteNotSupported,
		Status:  405,
		Message: msg,
	}
}

// NewProviderError wraps an embedding provider failure.
func NewProviderError(err error) *AragError {
	return &AragError{
		Code:    ErrProvider,
		Status:  502,
		Message: fmt.Sprintf("embedding provider failed: %v", err),
		Err:     err,
	}
}

// NewProviderUnavailable creates a 503 error when the provider cannot be reached.
func NewProviderUnavailable(method string, err error) *AragError {
	return &AragError{
		Code:    ErrProviderUnavailable,
		Status:  503,
		Message: fmt.Sprintf("embedding provider %s unavailable: %v", method, err),
		Details: map[string]any{"method": method},
		Err:     err,
	}
}

// NewAuthenticationMissing creates a 401 error when provider credentials are absent.
func NewAuthenticationMissing(method string) *AragError {
	return &AragError{
		Code:    ErrAuthenticationMissing,
		Status:  401,
		Message: fmt.Sprintf("credentials are required for embedding method %s", method),
		Details: map[string]any{"method": method},
	}
}

// NewUnsupportedConfiguration creates a 400 error for unknown provider settings.
func NewUnsupportedConfiguration(msg string) *AragError {
	return &AragError{
		Code:    ErrUnsupportedConfiguration,
		Status:  400,
		Message: msg,
	}
}

// NewIndexingAborted creates an error for an embedding run that stopped mid-way.
// Rows committed before the failing batch are kept.
func NewIndexingAborted(chunkID int64, committed int, err error) *AragError {
	return &AragError{
		Code:    ErrIndexingAborted,
		Status:  502,
		Message: fmt.Sprintf("indexing aborted at chunk %d after %d committed embeddings: %v", chunkID, committed, err),
		Details: map[string]any{"chunk_id": chunkID, "committed": committed},
		Err:     err,
	}
}

// NewEmptyIndex creates a 422 error when there are no embeddings to query.
func NewEmptyIndex() *AragError {
	return &AragError{
		Code:    ErrEmptyIndex,
		Status:  422,
		Message: "no embeddings found in the corpus",
	}
}

// NewNotUTF8 creates a per-file warning for content that is not valid UTF-8.
func NewNotUTF8(path string) *AragError {
	return &AragError{
		Code:    ErrNotUTF8,
		Status:  422,
		Message: fmt.Sprintf("skipping non-UTF-8 file: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewUnsupportedFormat creates a per-file warning when extraction fails.
func NewUnsupportedFormat(path string, err error) *AragError {
	return &AragError{
		Code:    ErrUnsupportedFormat,
		Status:  415,
		Message: fmt.Sprintf("skipping %s: %v", path, err),
		Details: map[string]any{"path": path},
		Err:     err,
	}
}

// NewRuneTooLarge creates an error when one character does not fit in a chunk.
func NewRuneTooLarge(offset, maxBytes int) *AragError {
	return &AragError{
		Code:    ErrRuneTooLarge,
		Status:  422,
		Message: fmt.Sprintf("character at byte %d is larger than chunk size %d", offset, maxBytes),
		Details: map[string]any{"offset": offset, "max_bytes": maxBytes},
	}
}

// NewCancelled creates an error for an operation stopped by its context.
func NewCancelled(operation string) *AragError {
	return &AragError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the cause is kept in Details for logging.
func NewInternal(err error) *AragError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &AragError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
		Err:     err,
	}
}

// Is checks if err (or anything it wraps) is an AragError with the given code.
func Is(err error, code ErrorCode) bool {
	var aErr *AragError
	if stderrors.As(err, &aErr) {
		return aErr.Code == code
	}
	return false
}

// As returns the first AragError in err's chain.
func As(err error) (*AragError, bool) {
	var aErr *AragError
	ok := stderrors.As(err, &aErr)
	return aErr, ok
}
