package vectorindex

import (
	"sort"
	"sync"
)

// Flat is an exact index: every query scores every stored vector.
// It is safe for concurrent use, which also makes it the write
// buffer the Manager layers over read-only snapshots.
type Flat struct {
	metric Metric

	mu     sync.RWMutex
	vecs   map[string]entry
	owners []string
}

type entry struct {
	vec  []float32
	norm float64
}

// NewFlat returns an empty exact index.
func NewFlat(metric Metric) *Flat {
	if !metric.Valid() {
		metric = MetricCosine
	}
	return &Flat{
		metric: metric,
		vecs:   make(map[string]entry),
	}
}

// Add inserts or replaces the vector for an owner.
func (f *Flat) Add(owner string, vec []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.vecs[owner]; !ok {
		f.owners = append(f.owners, owner)
	}
	f.vecs[owner] = entry{vec: vec, norm: norm(vec)}
}

// Remove drops an owner's vector. Unknown owners are a no-op.
func (f *Flat) Remove(owner string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.vecs[owner]; !ok {
		return
	}
	delete(f.vecs, owner)
	for i, o := range f.owners {
		if o == owner {
			f.owners = append(f.owners[:i], f.owners[i+1:]...)
			break
		}
	}
}

// Has reports whether an owner has a vector in this index.
func (f *Flat) Has(owner string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.vecs[owner]
	return ok
}

// Len returns the number of stored vectors.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vecs)
}

// Search returns the k most similar owners, best first. Ties are
// broken by owner id so results are deterministic.
func (f *Flat) Search(query []float32, k int, allow func(owner string) bool) []Hit {
	if k <= 0 {
		return nil
	}
	qn := norm(query)

	f.mu.RLock()
	hits := make([]Hit, 0, len(f.owners))
	for _, owner := range f.owners {
		if allow != nil && !allow(owner) {
			continue
		}
		e := f.vecs[owner]
		hits = append(hits, Hit{Owner: owner, Score: score(f.metric, query, qn, e.vec, e.norm)})
	}
	f.mu.RUnlock()

	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// sortHits orders by score descending, owner ascending on ties.
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Owner < hits[j].Owner
	})
}
