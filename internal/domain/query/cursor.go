package query

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadCursor marks a cursor that did not come from a previous
// response.
var ErrBadCursor = errors.New("malformed cursor")

const cursorVersion = "v1"

// encodeCursor packs the continuation offset into an opaque token.
// Clients must treat it as a black box.
func encodeCursor(offset int) string {
	raw := fmt.Sprintf("%s|%d", cursorVersion, offset)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// decodeCursor unpacks a token from encodeCursor. An empty cursor
// means start from the beginning.
func decodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrBadCursor, cursor)
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 2 || parts[0] != cursorVersion {
		return 0, fmt.Errorf("%w: %s", ErrBadCursor, cursor)
	}
	offset, err := strconv.Atoi(parts[1])
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("%w: %s", ErrBadCursor, cursor)
	}
	return offset, nil
}
