package errors

import (
	"errors"
	"fmt"
)

// Error codes
const (
	CodeInternal            = "INTERNAL_ERROR"
	CodeInvalidConfig       = "INVALID_CONFIG"
	CodeInvalidAction       = "INVALID_ACTION"
	CodeCheckpointNotFound  = "CHECKPOINT_NOT_FOUND"
	CodeMissingRNGState     = "MISSING_RNG_STATE"
	CodeWeightMismatch      = "WEIGHT_MISMATCH"
	CodeUnsupportedVersion  = "UNSUPPORTED_VERSION"
	CodeUnknownCollaborator = "UNKNOWN_COLLABORATOR"
	CodeDataNotFound        = "DATA_NOT_FOUND"
)

// AppError represents an application error with context
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithError wraps an underlying error
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Internal creates an internal error
func Internal(message string) *AppError {
	return New(CodeInternal, message)
}

// InvalidConfig creates a configuration error
func InvalidConfig(message string) *AppError {
	return New(CodeInvalidConfig, message)
}

// InvalidAction creates an error for a malformed action sequence
func InvalidAction(message string) *AppError {
	return New(CodeInvalidAction, message)
}

// CheckpointNotFound creates an error for a missing checkpoint slot
func CheckpointNotFound(slot string) *AppError {
	return New(CodeCheckpointNotFound, fmt.Sprintf("%s checkpoint not found", slot)).
		WithDetail("slot", slot)
}

// MissingRNGState creates an error for a resumable checkpoint without RNG state
func MissingRNGState(slot string) *AppError {
	return New(CodeMissingRNGState, "checkpoint has no RNG state; resuming would not be reproducible").
		WithDetail("slot", slot)
}

// WeightMismatch creates an error for required weights absent from a checkpoint
func WeightMismatch(missing []string) *AppError {
	e := New(CodeWeightMismatch, fmt.Sprintf("checkpoint is missing %d required weights", len(missing)))
	if len(missing) > 0 {
		e.WithDetail("first_missing", missing[0])
	}
	return e
}

// UnsupportedVersion creates an error for an unknown checkpoint schema version
func UnsupportedVersion(version int) *AppError {
	return New(CodeUnsupportedVersion, fmt.Sprintf("unsupported checkpoint version %d", version))
}

// UnknownCollaborator creates an error for an unregistered model or backend name
func UnknownCollaborator(kind, name string) *AppError {
	return New(CodeUnknownCollaborator, fmt.Sprintf("no %s registered as %q", kind, name)).
		WithDetail("kind", kind)
}

// DataNotFound creates an error for a missing data file
func DataNotFound(path string) *AppError {
	return New(CodeDataNotFound, fmt.Sprintf("data file %s not found", path))
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsAppError checks if the error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error if present
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// HasCode checks if the error chain carries an AppError with the given code
func HasCode(err error, code string) bool {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Code == code
	}
	return false
}

// IsCheckpointNotFound checks if the error is a missing checkpoint error
func IsCheckpointNotFound(err error) bool {
	return HasCode(err, CodeCheckpointNotFound)
}

// IsMissingRNGState checks if the error is a missing RNG state error
func IsMissingRNGState(err error) bool {
	return HasCode(err, CodeMissingRNGState)
}

// IsWeightMismatch checks if the error is a weight mismatch error
func IsWeightMismatch(err error) bool {
	return HasCode(err, CodeWeightMismatch)
}

// IsInvalidConfig checks if the error is a configuration error
func IsInvalidConfig(err error) bool {
	return HasCode(err, CodeInvalidConfig)
}
