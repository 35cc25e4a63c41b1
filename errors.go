package client

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrMissingEndpoint   = errors.New("endpoint cannot be empty")
	ErrMissingParameters = errors.New("parameters cannot be nil")
	ErrMissingFile       = errors.New("file parameter is required for upload input")
	ErrMissingURL        = errors.New("url parameter is required for download input")
	ErrMissingUUID       = errors.New("response did not include a job uuid")
	ErrNilResult         = errors.New("conversion result cannot be nil")
	ErrNotProcessed      = errors.New("conversion result is not processed")
	ErrEmptyDownloadURL  = errors.New("download url cannot be empty")
	ErrNilWriter         = errors.New("writer cannot be nil")
)

// ValidationError reports options rejected before any network call.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid conversion options: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// FileNotFoundError reports an upload source that could not be read or is empty.
type FileNotFoundError struct {
	Path string
	Err  error
}

func (e *FileNotFoundError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("file not found: %s is empty", e.Path)
	}
	return fmt.Sprintf("file not found: %s: %v", e.Path, e.Err)
}

func (e *FileNotFoundError) Unwrap() error { return e.Err }

// RemoteError reports a submit request the service did not accept.
type RemoteError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s failed with status %d", OperationSubmit, e.StatusCode)
	}
	return fmt.Sprintf("%s failed with status %d: %s", OperationSubmit, e.StatusCode, e.Message)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// ConversionError reports a job the service moved to the error state.
type ConversionError struct {
	UUID    string
	Message string
}

func (e *ConversionError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Sprintf("%s failed for uuid %s: %s", OperationConversion, normalizeUUID(e.UUID), msg)
}

// PollExhaustedError reports too many consecutive transport failures while polling.
type PollExhaustedError struct {
	UUID     string
	Attempts int
	Err      error
}

func (e *PollExhaustedError) Error() string {
	return fmt.Sprintf("%s for uuid %s gave up after %d failed attempts: %v",
		OperationGetStatus, normalizeUUID(e.UUID), e.Attempts, e.Err)
}

func (e *PollExhaustedError) Unwrap() error { return e.Err }

// ConversionTimeoutError reports that the accumulated poll wait exceeded the budget.
type ConversionTimeoutError struct {
	UUID    string
	Timeout time.Duration
	Elapsed time.Duration
}

func (e *ConversionTimeoutError) Error() string {
	return fmt.Sprintf("%s timeout reached for uuid %s: waited %s, limit %s",
		OperationConversion, normalizeUUID(e.UUID), e.Elapsed, e.Timeout)
}

// DownloadError reports a failed artifact fetch or write.
type DownloadError struct {
	URL  string
	Path string
	Err  error
}

func (e *DownloadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s from %s failed: %v", OperationDownload, e.URL, e.Err)
	}
	return fmt.Sprintf("%s from %s to %s failed: %v", OperationDownload, e.URL, e.Path, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// errStatus formats an unexpected HTTP status for an operation.
func errStatus(operation Operation, statusCode int, status string) error {
	return fmt.Errorf("%s failed with status %d: %s", operation, statusCode, status)
}

func normalizeUUID(uuid string) string {
	if uuid == "" {
		return "unknown"
	}
	return uuid
}
