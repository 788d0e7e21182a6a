// Package kerr defines the sentinel errors shared across kioku's components,
// meant to be tested with errors.Is after a wrapped return.
package kerr

import "errors"

var (
	// ErrInvalidInput marks a caller error: a malformed request that no
	// retry or fallback can fix.
	ErrInvalidInput = errors.New("kioku: invalid input")

	// ErrBackendUnavailable marks a failure of an external dependency
	// (network, disk, or subprocess) that a retry or fallback leg might
	// still resolve.
	ErrBackendUnavailable = errors.New("kioku: backend unavailable")

	// ErrExtractionFailed marks a failure specific to entity/relationship
	// extraction. Callers on the write path should log and continue rather
	// than fail the whole write: a memory entry is still valid without its
	// extracted graph data.
	ErrExtractionFailed = errors.New("kioku: extraction failed")
)
