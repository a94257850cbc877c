// Package vectorindex provides similarity search over embedding
// vectors.
//
// Two implementations satisfy the same contract: Flat scores every
// vector exactly and is the correctness baseline; Graph is an
// approximate small-world index that trades a bounded recall loss for
// sub-linear queries, tuned by a neighbor-list width and a search
// breadth. Callers select one by configuration, not by conditional
// logic at call sites. The Manager layers continuous upserts and
// background rebuilds on top of either.
package vectorindex

import "math"

// Metric selects the similarity measure.
type Metric string

const (
	MetricCosine Metric = "cosine" // default
	MetricDot    Metric = "dot"
)

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	return m == MetricCosine || m == MetricDot
}

// Hit is one similarity result.
type Hit struct {
	Owner string
	Score float64
}

// Index is the read contract shared by the exact and approximate
// implementations. The allow callback restricts results to a caller
// supplied candidate set; nil means unrestricted.
type Index interface {
	Search(query []float32, k int, allow func(owner string) bool) []Hit
	Len() int
}

// score computes similarity between a query (with precomputed norm)
// and a stored vector (with precomputed norm) under the metric.
func score(metric Metric, query []float32, queryNorm float64, vec []float32, vecNorm float64) float64 {
	d := dot(query, vec)
	if metric == MetricDot {
		return d
	}
	if queryNorm == 0 || vecNorm == 0 {
		return 0
	}
	return d / (queryNorm * vecNorm)
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
