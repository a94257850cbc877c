package vectorindex

import "errors"

var (
	// ErrIndexRebuild indicates a background or forced rebuild could
	// not complete. The previous snapshot stays live and keeps
	// serving queries.
	ErrIndexRebuild = errors.New("index rebuild failed")

	// ErrUnknownNamespace indicates a search against a
	// (model, owner kind) pair that has never been loaded or written.
	ErrUnknownNamespace = errors.New("unknown index namespace")
)
