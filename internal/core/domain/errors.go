package domain

import "errors"

// The lifecycle manager is the error boundary: adapters and the repository
// may return any error, but everything crossing the manager's public surface
// is classified as one of these.
var (
	ErrNotFound             = errors.New("agent not found")
	ErrValidation           = errors.New("invalid agent configuration")
	ErrNotRunning           = errors.New("agent not running")
	ErrFrameworkUnavailable = errors.New("framework unavailable")
	ErrExecution            = errors.New("query execution failed")
	ErrPersistence          = errors.New("persistence failure")
	ErrNoRecord             = errors.New("framework record missing")
)
