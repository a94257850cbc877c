package repository

import "errors"

// Sentinel kinds for corpus store errors.
var (
	// ErrDuplicateGame reports a dedup-key collision. It is not fatal:
	// callers treat it as success-with-merge.
	ErrDuplicateGame = errors.New("duplicate game")

	// ErrNotFound reports a reference to a nonexistent game or owner.
	ErrNotFound = errors.New("not found")

	// ErrStaleAggregation reports a lost-update race on a player stat
	// row: a computation that started later already persisted.
	ErrStaleAggregation = errors.New("stale aggregation")
)
