// Package embedder turns game text into fixed-size vectors.
//
// Two providers exist: an HTTP client for OpenAI-compatible embedding
// services and a local feature-hashing fallback that needs no network.
// Both are deterministic for a given input so re-embedding the same
// game yields the same vector.
package embedder

import "context"

// Provider computes an embedding vector for a piece of text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
	Dimension() int
}
