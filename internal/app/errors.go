package service

import "errors"

// Sentinel kinds for service errors.
var (
	// ErrInvalidLabel reports a label whose position reference does not
	// fit the game it targets.
	ErrInvalidLabel = errors.New("invalid label")

	// ErrNotStarted reports a call on a service that was never started.
	ErrNotStarted = errors.New("service not started")
)
