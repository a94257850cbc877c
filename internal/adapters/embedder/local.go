package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Local is a dependency-free embedder based on token feature hashing:
// each whitespace token (and its bigram with the previous token)
// hashes into one of dim buckets, and the resulting count vector is
// L2-normalized. It captures move-sequence overlap well enough for
// offline development and tests, and never fails.
type Local struct {
	model string
	dim   int
}

// NewLocal creates a hashing embedder with the given vector size.
func NewLocal(dim int) *Local {
	if dim <= 0 {
		dim = 256
	}
	return &Local{model: "local-hash", dim: dim}
}

func (l *Local) Model() string {
	return l.model
}

func (l *Local) Dimension() int {
	return l.dim
}

// Embed hashes tokens and token bigrams into a normalized vector.
func (l *Local) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, l.dim)
	prev := ""
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		vec[l.bucket(tok)]++
		if prev != "" {
			vec[l.bucket(prev+" "+tok)]++
		}
		prev = tok
	}

	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	if sum > 0 {
		inv := 1 / math.Sqrt(sum)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) * inv)
		}
	}
	return vec, nil
}

func (l *Local) bucket(token string) int {
	h := fnv.New32a()
	h.Write([]byte(token)) //nolint:errcheck // fnv never fails
	return int(h.Sum32() % uint32(l.dim))
}
