// Package errors provides application error types for fast-coref.
//
// This package defines:
//   - AppError type with error classification codes
//   - Error constructors for the failure modes of training and evaluation
//   - Error type checking helpers
//
// # Fatal Errors
//
//   - CheckpointNotFound: the best checkpoint is required but absent
//   - MissingRNGState: a resumable checkpoint lacks RNG snapshots
//   - WeightMismatch: required weights are absent from a checkpoint
//
// # Usage
//
//	return apperrors.CheckpointNotFound("best")
//
//	if apperrors.IsMissingRNGState(err) {
//	    // refuse to resume
//	}
//
// # Error Wrapping
//
// Errors support wrapping with fmt.Errorf:
//
//	return fmt.Errorf("failed to load checkpoint: %w", apperrors.UnsupportedVersion(v))
package errors
