package ledgersync

import (
	"errors"
	"fmt"

	"bitbucket.org/imfsl/ledger_backend/models"
)

// SyncError tags a per-record failure with the class the sync item will
// carry. Failures are contained at the record boundary; only request-level
// auth/parse failures ever surface as a top-level error response.
type SyncError struct {
	Class   string
	Message string
	Err     error
}

func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Class, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

func newValidationError(format string, args ...interface{}) *SyncError {
	return &SyncError{Class: models.SyncErrorValidation, Message: fmt.Sprintf(format, args...)}
}

func newResolutionError(format string, args ...interface{}) *SyncError {
	return &SyncError{Class: models.SyncErrorResolution, Message: fmt.Sprintf(format, args...)}
}

func newUpstreamError(msg string, err error) *SyncError {
	return &SyncError{Class: models.SyncErrorUpstream, Message: msg, Err: err}
}

func newPersistenceError(msg string, err error) *SyncError {
	return &SyncError{Class: models.SyncErrorPersistence, Message: msg, Err: err}
}

// classify returns the sync-item error class for any error. Untyped errors
// from the store count as persistence failures.
func classify(err error) string {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Class
	}
	return models.SyncErrorPersistence
}

// isSkip reports whether the error is a per-record skip (validation or
// resolution) rather than a hard failure.
func isSkip(err error) bool {
	class := classify(err)
	return class == models.SyncErrorValidation || class == models.SyncErrorResolution
}
