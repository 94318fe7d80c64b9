package domain

import "errors"

// Error kinds shared across the remote clients and services. Callers match
// with errors.Is; wrapped messages carry the operation detail.
var (
	// ErrRemoteUnavailable means the remote endpoint could not be reached
	// or answered with a server-side failure.
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// ErrAuthFailure means the remote rejected our credentials.
	ErrAuthFailure = errors.New("authentication failed")

	// ErrTimeout means an operation exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrSchemaMismatch means a remote payload did not have the expected shape.
	ErrSchemaMismatch = errors.New("unexpected payload shape")

	// ErrWriteFailure means a local artifact could not be written.
	ErrWriteFailure = errors.New("write failure")
)
