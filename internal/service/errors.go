package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound means no document row matches the requested id.
	ErrNotFound = errors.New("document not found")
	// ErrBlobMissing means the row exists but its file is gone. It matches ErrNotFound.
	ErrBlobMissing = fmt.Errorf("%w: file not found on disk", ErrNotFound)
	// ErrStorage wraps blob store failures.
	ErrStorage = errors.New("storage failure")
	// ErrPersistence wraps metadata store failures.
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError rejects an upload before any side effect happens.
// Code is a stable machine-readable identifier surfaced to HTTP clients.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

var (
	ErrFileRequired    = &ValidationError{Code: "FILE_REQUIRED", Message: "no file uploaded"}
	ErrUnsupportedType = &ValidationError{Code: "INVALID_FILE_TYPE", Message: "only PDF files are allowed"}
	ErrFileTooLarge    = &ValidationError{Code: "FILE_TOO_LARGE", Message: "file exceeds the 10 MiB limit"}
)
