package notation

import "errors"

// Sentinel kinds for notation errors.
var (
	ErrMalformedRecord = errors.New("malformed record")
)
