package model

import "time"

// OwnerKind partitions the embedding namespace by content type so a
// semantic search over games never surfaces instructional chunks and
// vice versa.
type OwnerKind string

const (
	OwnerGame  OwnerKind = "game"
	OwnerChunk OwnerKind = "chunk" // instructional content unit
)

// Valid reports whether k is a known owner kind.
func (k OwnerKind) Valid() bool {
	return k == OwnerGame || k == OwnerChunk
}

// Embedding is a dense semantic vector for a game or content unit.
// One row exists per (owner, model) pair; re-embedding with the same
// model replaces the prior vector.
type Embedding struct {
	OwnerID    string
	OwnerKind  OwnerKind
	Model      string // producing model identifier
	Vector     []float32
	SourceText string // exact text that was embedded, kept for audit/re-embedding
	CreatedAt  time.Time
}
