// Package query plans and executes hybrid corpus searches: structured
// header predicates, label constraints and semantic similarity in one
// request.
//
// The planner is read-only. Structured predicates narrow the corpus
// to a candidate set first, then the optional semantic stage ranks
// inside that set; with no semantic input, recency ranks the
// candidates instead. When the embedding side is down the structured
// part of a query still answers, flagged as degraded, rather than
// failing the whole request.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/okian/gambit/internal/adapters/repository"
	"github.com/okian/gambit/internal/adapters/vectorindex"
	"github.com/okian/gambit/internal/domain/model"
	"github.com/okian/gambit/pkg/logger"
	"github.com/okian/gambit/pkg/metrics"
)

// Default planning constants.
const (
	defaultLimit = 20
	// candidateCap bounds structured candidate sets so one query can
	// not materialize the whole corpus.
	candidateCap = 10000
	// overfetch compensates for candidates deleted between index
	// search and row load.
	overfetch = 8
)

// LabelFilter requires games to carry a (kind, value) label.
type LabelFilter struct {
	Kind  model.LabelKind
	Value string
}

// Request describes one hybrid search.
type Request struct {
	Filter repository.GameFilter
	Labels []LabelFilter

	// Text is embedded into a query vector; Vector short-circuits the
	// embedding step when the caller already has one. Either enables
	// the semantic stage.
	Text   string
	Vector []float32
	Model  string

	Limit  int
	Cursor string
}

// semantic reports whether the request asks for similarity ranking.
func (r Request) semantic() bool {
	return r.Text != "" || len(r.Vector) > 0
}

// Hit is one ranked result.
type Hit struct {
	Game     model.Game
	Score    float64 // similarity when semantic, 0 otherwise
	Semantic bool
}

// Response carries ranked hits and pagination state.
type Response struct {
	Hits       []Hit
	NextCursor string
	// SemanticSkipped is set when a semantic request was answered by
	// structured ranking only because the embedding side was down.
	SemanticSkipped bool
}

// Store is the slice of the repository the planner reads.
type Store interface {
	FindGames(ctx context.Context, f repository.GameFilter) ([]model.Game, error)
	FindGameIDs(ctx context.Context, f repository.GameFilter) ([]string, error)
	LabelGameIDs(ctx context.Context, kind model.LabelKind, value string) ([]string, error)
	GetGame(ctx context.Context, id string) (model.Game, error)
}

// VectorSearcher runs similarity search in one index namespace.
type VectorSearcher interface {
	Search(ctx context.Context, key vectorindex.Key, query []float32, k int, allow func(owner string) bool) ([]vectorindex.Hit, error)
}

// TextEmbedder turns query text into a vector.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Planner executes hybrid searches.
type Planner struct {
	store    Store
	searcher VectorSearcher
	embedder TextEmbedder // may be nil: semantic text queries degrade
	maxLimit int
	log      logger.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithMaxLimit caps the per-page result size.
func WithMaxLimit(n int) Option {
	return func(p *Planner) {
		if n > 0 {
			p.maxLimit = n
		}
	}
}

// WithEmbedder wires the provider used to embed query text.
func WithEmbedder(e TextEmbedder) Option {
	return func(p *Planner) { p.embedder = e }
}

// NewPlanner creates a planner over the store and vector index.
func NewPlanner(store Store, searcher VectorSearcher, opts ...Option) (*Planner, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	p := &Planner{
		store:    store,
		searcher: searcher,
		maxLimit: 100,
		log:      logger.Named("query"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Search plans and executes one request. Results are deterministic
// for identical corpus state: similarity descending, then creation
// time descending, then id ascending.
func (p *Planner) Search(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	defer func() {
		metrics.RecordSearchLatency(float64(time.Since(start).Milliseconds()))
	}()

	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > p.maxLimit {
		limit = p.maxLimit
	}
	offset, err := decodeCursor(req.Cursor)
	if err != nil {
		return Response{}, err
	}

	candidates, constrained, err := p.candidates(ctx, req)
	if err != nil {
		return Response{}, err
	}
	if constrained && len(candidates) == 0 {
		return Response{}, nil
	}

	if req.semantic() {
		resp, ok, err := p.semanticSearch(ctx, req, candidates, constrained, offset, limit)
		if err != nil {
			return Response{}, err
		}
		if ok {
			return resp, nil
		}
		// Embedding side down: answer with structured ranking.
		metrics.RecordSemanticSkipped()
	}

	resp, err := p.structuredSearch(ctx, req, candidates, constrained, offset, limit)
	if err != nil {
		return Response{}, err
	}
	resp.SemanticSkipped = req.semantic()
	return resp, nil
}

// candidates resolves structured predicates to a game id set. The
// second return reports whether any predicate constrained the set;
// an unconstrained query must not pay for materializing every id.
func (p *Planner) candidates(ctx context.Context, req Request) (map[string]struct{}, bool, error) {
	constrained := !req.Filter.Empty() || len(req.Labels) > 0
	if !constrained {
		return nil, false, nil
	}

	var set map[string]struct{}
	if !req.Filter.Empty() {
		f := req.Filter
		f.Limit = candidateCap
		f.Offset = 0
		ids, err := p.store.FindGameIDs(ctx, f)
		if err != nil {
			return nil, true, fmt.Errorf("resolve header predicates failed: %w", err)
		}
		set = toSet(ids)
	}

	for _, lf := range req.Labels {
		ids, err := p.store.LabelGameIDs(ctx, lf.Kind, lf.Value)
		if err != nil {
			return nil, true, fmt.Errorf("resolve label predicate %s=%s failed: %w", lf.Kind, lf.Value, err)
		}
		if set == nil {
			set = toSet(ids)
			continue
		}
		set = intersect(set, ids)
		if len(set) == 0 {
			break
		}
	}
	return set, true, nil
}

// semanticSearch ranks candidates by vector similarity. The false
// return (without error) means the semantic stage was unavailable and
// the caller should degrade.
func (p *Planner) semanticSearch(ctx context.Context, req Request, candidates map[string]struct{}, constrained bool, offset, limit int) (Response, bool, error) {
	if p.searcher == nil {
		return Response{}, false, nil
	}

	vec := req.Vector
	embedModel := req.Model
	if len(vec) == 0 {
		if p.embedder == nil {
			return Response{}, false, nil
		}
		var err error
		vec, err = p.embedder.Embed(ctx, req.Text)
		if err != nil {
			p.log.Warn(ctx, "query embedding failed, degrading to structured search",
				logger.Error(err))
			return Response{}, false, nil
		}
		if embedModel == "" {
			embedModel = p.embedder.Model()
		}
	}

	var allow func(string) bool
	if constrained {
		allow = func(owner string) bool {
			_, ok := candidates[owner]
			return ok
		}
	}

	key := vectorindex.Key{Model: embedModel, Kind: model.OwnerGame}
	hits, err := p.searcher.Search(ctx, key, vec, offset+limit+overfetch, allow)
	if errors.Is(err, vectorindex.ErrUnknownNamespace) {
		return Response{}, false, nil
	}
	if err != nil {
		return Response{}, false, fmt.Errorf("vector search failed: %w", err)
	}

	ranked := make([]Hit, 0, len(hits))
	for _, h := range hits {
		g, err := p.store.GetGame(ctx, h.Owner)
		if errors.Is(err, repository.ErrNotFound) {
			// Deleted between index search and row load.
			continue
		}
		if err != nil {
			return Response{}, false, fmt.Errorf("load hit %s failed: %w", h.Owner, err)
		}
		ranked = append(ranked, Hit{Game: g, Score: h.Score, Semantic: true})
	}
	sortHits(ranked)
	return page(ranked, offset, limit), true, nil
}

// structuredSearch ranks candidates by recency.
func (p *Planner) structuredSearch(ctx context.Context, req Request, candidates map[string]struct{}, constrained bool, offset, limit int) (Response, error) {
	if !constrained {
		// Pure recency browse: the store already orders by
		// created_at desc, id asc.
		f := req.Filter
		f.Limit = limit + 1
		f.Offset = offset
		games, err := p.store.FindGames(ctx, f)
		if err != nil {
			return Response{}, fmt.Errorf("recency scan failed: %w", err)
		}
		hits := make([]Hit, 0, len(games))
		for _, g := range games {
			hits = append(hits, Hit{Game: g})
		}
		resp := Response{Hits: hits}
		if len(resp.Hits) > limit {
			resp.Hits = resp.Hits[:limit]
			resp.NextCursor = encodeCursor(offset + limit)
		}
		return resp, nil
	}

	hits := make([]Hit, 0, len(candidates))
	for id := range candidates {
		g, err := p.store.GetGame(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return Response{}, fmt.Errorf("load candidate %s failed: %w", id, err)
		}
		hits = append(hits, Hit{Game: g})
	}
	sortHits(hits)
	return page(hits, offset, limit), nil
}

// sortHits orders by score descending, creation time descending, id
// ascending. Recency-only hits all carry score 0, so the same
// comparator serves both stages.
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if !hits[i].Game.CreatedAt.Equal(hits[j].Game.CreatedAt) {
			return hits[i].Game.CreatedAt.After(hits[j].Game.CreatedAt)
		}
		return hits[i].Game.ID < hits[j].Game.ID
	})
}

// page applies offset/limit and computes the continuation cursor.
func page(hits []Hit, offset, limit int) Response {
	if offset >= len(hits) {
		return Response{}
	}
	hits = hits[offset:]
	resp := Response{Hits: hits}
	if len(hits) > limit {
		resp.Hits = hits[:limit]
		resp.NextCursor = encodeCursor(offset + limit)
	}
	return resp
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func intersect(set map[string]struct{}, ids []string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := set[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}
