package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound     = errors.New("no watch exists with that id")
	ErrInvalidURL   = errors.New("invalid or unsupported URL")
	ErrInvalidProxy = errors.New("invalid proxy choice")
	ErrSchema       = errors.New("invalid watch fields")
	ErrQueueClosed  = errors.New("recheck queue is shut down")
)
