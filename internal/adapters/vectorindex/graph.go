package vectorindex

import (
	"container/heap"
)

// Graph is an approximate navigable-small-world index. Nodes keep up
// to maxNeighbors links to their nearest peers; queries walk the
// graph greedily from a fixed entry point, expanding the efSearch
// best frontier nodes. Recall improves with both parameters at the
// cost of memory and latency.
//
// A Graph is built once and is immutable afterwards, so concurrent
// searches need no locking. Incremental writes go through the
// Manager's overlay instead.
type Graph struct {
	metric       Metric
	maxNeighbors int
	efSearch     int

	owners    []string
	vecs      [][]float32
	norms     []float64
	neighbors [][]int32
}

// BuildGraph constructs the index by inserting vectors one at a time:
// each new node is linked to its nearest predecessors found by a
// graph walk, and links are kept bidirectional with pruning back to
// the width limit.
func BuildGraph(owners []string, vecs [][]float32, maxNeighbors, efSearch int, metric Metric) *Graph {
	if maxNeighbors < 2 {
		maxNeighbors = 2
	}
	if efSearch < maxNeighbors {
		efSearch = maxNeighbors
	}
	if !metric.Valid() {
		metric = MetricCosine
	}
	g := &Graph{
		metric:       metric,
		maxNeighbors: maxNeighbors,
		efSearch:     efSearch,
		owners:       make([]string, 0, len(owners)),
		vecs:         make([][]float32, 0, len(owners)),
		norms:        make([]float64, 0, len(owners)),
		neighbors:    make([][]int32, 0, len(owners)),
	}
	for i := range owners {
		g.insert(owners[i], vecs[i])
	}
	return g
}

func (g *Graph) insert(owner string, vec []float32) {
	id := int32(len(g.owners))
	g.owners = append(g.owners, owner)
	g.vecs = append(g.vecs, vec)
	g.norms = append(g.norms, norm(vec))
	g.neighbors = append(g.neighbors, nil)
	if id == 0 {
		return
	}

	near := g.walk(vec, norm(vec), g.efSearch)
	limit := g.maxNeighbors
	if len(near) < limit {
		limit = len(near)
	}
	for _, c := range near[:limit] {
		g.link(id, c.id)
		g.link(c.id, id)
	}
}

// link appends dst to src's neighbor list, evicting the least similar
// neighbor when the list is over width.
func (g *Graph) link(src, dst int32) {
	for _, n := range g.neighbors[src] {
		if n == dst {
			return
		}
	}
	g.neighbors[src] = append(g.neighbors[src], dst)
	if len(g.neighbors[src]) <= g.maxNeighbors {
		return
	}
	worst, worstScore := 0, 0.0
	for i, n := range g.neighbors[src] {
		s := score(g.metric, g.vecs[src], g.norms[src], g.vecs[n], g.norms[n])
		if i == 0 || s < worstScore {
			worst, worstScore = i, s
		}
	}
	last := len(g.neighbors[src]) - 1
	g.neighbors[src][worst] = g.neighbors[src][last]
	g.neighbors[src] = g.neighbors[src][:last]
}

type scored struct {
	id    int32
	score float64
}

// candidateHeap pops the best-scoring frontier node first.
type candidateHeap []scored

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return h[i].score > h[j].score }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(scored)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// resultHeap pops the worst kept result first, keeping the heap at
// the search breadth.
type resultHeap []scored

func (h resultHeap) Len() int            { return len(h) }
func (h resultHeap) Less(i, j int) bool  { return h[i].score < h[j].score }
func (h resultHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x interface{}) { *h = append(*h, x.(scored)) }
func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// walk performs a best-first traversal from node 0 and returns up to
// ef nodes ordered best first.
func (g *Graph) walk(query []float32, queryNorm float64, ef int) []scored {
	if len(g.owners) == 0 {
		return nil
	}
	visited := make(map[int32]struct{}, ef*4)
	visited[0] = struct{}{}

	start := scored{id: 0, score: score(g.metric, query, queryNorm, g.vecs[0], g.norms[0])}
	candidates := candidateHeap{start}
	results := resultHeap{start}

	for candidates.Len() > 0 {
		cur := heap.Pop(&candidates).(scored)
		if results.Len() >= ef && cur.score < results[0].score {
			break
		}
		for _, n := range g.neighbors[cur.id] {
			if _, seen := visited[n]; seen {
				continue
			}
			visited[n] = struct{}{}
			s := scored{id: n, score: score(g.metric, query, queryNorm, g.vecs[n], g.norms[n])}
			if results.Len() < ef || s.score > results[0].score {
				heap.Push(&candidates, s)
				heap.Push(&results, s)
				if results.Len() > ef {
					heap.Pop(&results)
				}
			}
		}
	}

	out := make([]scored, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&results).(scored)
	}
	return out
}

// Len returns the number of indexed vectors.
func (g *Graph) Len() int {
	return len(g.owners)
}

// Search returns up to k approximate nearest owners, best first. When
// a filter is supplied the walk breadth is widened so heavily
// filtered queries still fill k slots.
func (g *Graph) Search(query []float32, k int, allow func(owner string) bool) []Hit {
	if k <= 0 || len(g.owners) == 0 {
		return nil
	}
	ef := g.efSearch
	if ef < k {
		ef = k
	}
	if allow != nil {
		ef *= 4
	}

	near := g.walk(query, norm(query), ef)
	hits := make([]Hit, 0, k)
	for _, c := range near {
		owner := g.owners[c.id]
		if allow != nil && !allow(owner) {
			continue
		}
		hits = append(hits, Hit{Owner: owner, Score: c.score})
		if len(hits) == k {
			break
		}
	}
	sortHits(hits)
	return hits
}
