package embedder

import "errors"

var (
	// ErrUnavailable indicates the provider could not produce a
	// vector after retries. Ingestion treats this as transient: the
	// game is stored and its embedding is retried later.
	ErrUnavailable = errors.New("embedding provider unavailable")

	// ErrBadRequest indicates the provider rejected the input itself.
	// Retrying the same text will not help.
	ErrBadRequest = errors.New("embedding request rejected")
)
