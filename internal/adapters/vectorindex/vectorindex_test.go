package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/gambit/internal/domain/model"
	"github.com/okian/gambit/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestFlatSearchOrdering(t *testing.T) {
	f := NewFlat(MetricCosine)
	f.Add("a", []float32{1, 0, 0})
	f.Add("b", []float32{0.9, 0.1, 0})
	f.Add("c", []float32{0, 1, 0})
	f.Add("d", []float32{0, 0, 1})

	hits := f.Search([]float32{1, 0, 0}, 3, nil)
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].Owner != "a" || hits[1].Owner != "b" {
		t.Fatalf("unexpected order: %v", hits)
	}
	if hits[0].Score < hits[1].Score || hits[1].Score < hits[2].Score {
		t.Fatalf("scores not descending: %v", hits)
	}
}

func TestFlatTieBreakByOwner(t *testing.T) {
	f := NewFlat(MetricCosine)
	f.Add("z", []float32{1, 0})
	f.Add("a", []float32{1, 0})
	f.Add("m", []float32{2, 0})

	hits := f.Search([]float32{1, 0}, 3, nil)
	// All three have cosine 1 against the query; order falls back to
	// owner id.
	if hits[0].Owner != "a" || hits[1].Owner != "m" || hits[2].Owner != "z" {
		t.Fatalf("tie-break order wrong: %v", hits)
	}
}

func TestFlatAllowFilter(t *testing.T) {
	f := NewFlat(MetricCosine)
	f.Add("a", []float32{1, 0})
	f.Add("b", []float32{1, 0.1})
	f.Add("c", []float32{1, 0.2})

	allowed := map[string]bool{"b": true, "c": true}
	hits := f.Search([]float32{1, 0}, 10, func(o string) bool { return allowed[o] })
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %v", hits)
	}
	for _, h := range hits {
		if !allowed[h.Owner] {
			t.Fatalf("filter leaked owner %s", h.Owner)
		}
	}
}

func TestFlatAddReplaces(t *testing.T) {
	f := NewFlat(MetricCosine)
	f.Add("a", []float32{1, 0})
	f.Add("a", []float32{0, 1})
	if f.Len() != 1 {
		t.Fatalf("expected 1 vector, got %d", f.Len())
	}
	hits := f.Search([]float32{0, 1}, 1, nil)
	if hits[0].Score < 0.99 {
		t.Fatalf("replacement did not take: %v", hits)
	}
}

func TestFlatRemove(t *testing.T) {
	f := NewFlat(MetricCosine)
	f.Add("a", []float32{1, 0})
	f.Add("b", []float32{0, 1})
	f.Remove("a")
	f.Remove("ghost")
	if f.Len() != 1 || f.Has("a") {
		t.Fatalf("remove failed, len=%d", f.Len())
	}
}

// clusterVectors builds two tight clusters around orthogonal axes plus
// the query's exact nearest neighbor.
func clusterVectors(n int) ([]string, [][]float32) {
	owners := make([]string, 0, 2*n+1)
	vecs := make([][]float32, 0, 2*n+1)
	for i := 0; i < n; i++ {
		owners = append(owners, fmt.Sprintf("x%03d", i))
		vecs = append(vecs, []float32{1, float32(i) * 0.001, 0})
		owners = append(owners, fmt.Sprintf("y%03d", i))
		vecs = append(vecs, []float32{0, 1, float32(i) * 0.001})
	}
	owners = append(owners, "target")
	vecs = append(vecs, []float32{0.05, 0.05, 1})
	return owners, vecs
}

func TestGraphFindsNearestInClusters(t *testing.T) {
	owners, vecs := clusterVectors(50)
	g := BuildGraph(owners, vecs, 8, 32, MetricCosine)

	if g.Len() != len(owners) {
		t.Fatalf("graph size %d, want %d", g.Len(), len(owners))
	}
	hits := g.Search([]float32{0, 0, 1}, 1, nil)
	if len(hits) != 1 || hits[0].Owner != "target" {
		t.Fatalf("expected target as nearest, got %v", hits)
	}
}

func TestGraphAgreesWithFlatOnTop1(t *testing.T) {
	owners, vecs := clusterVectors(30)
	g := BuildGraph(owners, vecs, 8, 48, MetricCosine)
	f := NewFlat(MetricCosine)
	for i := range owners {
		f.Add(owners[i], vecs[i])
	}

	queries := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
		{0.7, 0.7, 0},
	}
	for _, q := range queries {
		exact := f.Search(q, 1, nil)
		approx := g.Search(q, 1, nil)
		if len(approx) != 1 {
			t.Fatalf("no approximate hit for %v", q)
		}
		// Top-1 recall on well-separated clusters should be exact.
		if approx[0].Owner != exact[0].Owner {
			t.Errorf("query %v: approx %s, exact %s", q, approx[0].Owner, exact[0].Owner)
		}
	}
}

func TestGraphFilteredSearch(t *testing.T) {
	owners, vecs := clusterVectors(40)
	g := BuildGraph(owners, vecs, 8, 32, MetricCosine)

	// Restrict to the y cluster; the x cluster scores higher for this
	// query but must not appear.
	hits := g.Search([]float32{1, 0.5, 0}, 5, func(o string) bool { return o[0] == 'y' })
	if len(hits) == 0 {
		t.Fatal("expected filtered hits")
	}
	for _, h := range hits {
		if h.Owner[0] != 'y' {
			t.Fatalf("filter leaked owner %s", h.Owner)
		}
	}
}

func TestGraphEmptyAndSingle(t *testing.T) {
	g := BuildGraph(nil, nil, 8, 32, MetricCosine)
	if hits := g.Search([]float32{1}, 5, nil); hits != nil {
		t.Fatalf("empty graph returned %v", hits)
	}

	g = BuildGraph([]string{"only"}, [][]float32{{1, 0}}, 8, 32, MetricCosine)
	hits := g.Search([]float32{1, 0}, 5, nil)
	if len(hits) != 1 || hits[0].Owner != "only" {
		t.Fatalf("single-node graph returned %v", hits)
	}
}

// storeStub backs the manager with a controllable embedding source.
type storeStub struct {
	embeddings map[Key][]model.Embedding
	fail       bool
	loads      atomic.Int32
}

func (s *storeStub) load(ctx context.Context, embedModel string, kind model.OwnerKind) ([]model.Embedding, error) {
	s.loads.Add(1)
	if s.fail {
		return nil, errors.New("db locked")
	}
	return s.embeddings[Key{Model: embedModel, Kind: kind}], nil
}

func (s *storeStub) put(e model.Embedding) {
	key := Key{Model: e.Model, Kind: e.OwnerKind}
	for i, prev := range s.embeddings[key] {
		if prev.OwnerID == e.OwnerID {
			s.embeddings[key][i] = e
			return
		}
	}
	s.embeddings[key] = append(s.embeddings[key], e)
}

func newStoreStub() *storeStub {
	return &storeStub{embeddings: make(map[Key][]model.Embedding)}
}

func embedding(owner string, vec []float32) model.Embedding {
	return model.Embedding{
		OwnerID:   owner,
		OwnerKind: model.OwnerGame,
		Model:     "test-model",
		Vector:    vec,
		CreatedAt: time.Now(),
	}
}

var testKey = Key{Model: "test-model", Kind: model.OwnerGame}

func TestManagerUpsertVisibleBeforeRebuild(t *testing.T) {
	stub := newStoreStub()
	m, err := NewManager(stub.load, WithRebuildInterval(0))
	if err != nil {
		t.Fatal(err)
	}

	e := embedding("g1", []float32{1, 0})
	stub.put(e)
	m.Upsert(e)

	hits, err := m.Search(context.Background(), testKey, []float32{1, 0}, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Owner != "g1" {
		t.Fatalf("overlay vector not searchable: %v", hits)
	}
}

func TestManagerRebuildFoldsOverlay(t *testing.T) {
	stub := newStoreStub()
	m, err := NewManager(stub.load, WithRebuildInterval(0), WithMode(ModeFlat))
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		e := embedding(fmt.Sprintf("g%d", i), []float32{float32(i), 1})
		stub.put(e)
		m.Upsert(e)
	}
	if err := m.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if n := m.Len(testKey); n != 5 {
		t.Fatalf("expected 5 vectors after rebuild, got %d", n)
	}

	hits, err := m.Search(context.Background(), testKey, []float32{4, 1}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].Owner != "g4" {
		t.Fatalf("wrong nearest after rebuild: %v", hits)
	}
}

func TestManagerLenDuringRebuilds(t *testing.T) {
	stub := newStoreStub()
	m, err := NewManager(stub.load, WithRebuildInterval(0), WithMode(ModeFlat))
	if err != nil {
		t.Fatal(err)
	}

	const total = 50
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			e := embedding(fmt.Sprintf("g%d", i), []float32{float32(i), 1})
			stub.put(e)
			m.Upsert(e)
			if err := m.Rebuild(context.Background()); err != nil {
				t.Errorf("rebuild %d: %v", i, err)
				return
			}
		}
	}()

	// Len races against the overlay swap inside rebuilds; it must stay
	// consistent throughout.
	for reading := true; reading; {
		select {
		case <-done:
			reading = false
		default:
			if n := m.Len(testKey); n > total {
				t.Fatalf("len %d exceeds corpus size %d", n, total)
			}
		}
	}
	if n := m.Len(testKey); n != total {
		t.Fatalf("expected %d vectors after rebuilds, got %d", total, n)
	}
}

func TestManagerRebuildFailureKeepsSnapshot(t *testing.T) {
	stub := newStoreStub()
	m, err := NewManager(stub.load, WithRebuildInterval(0), WithMode(ModeFlat))
	if err != nil {
		t.Fatal(err)
	}

	e := embedding("g1", []float32{1, 0})
	stub.put(e)
	m.Upsert(e)
	if err := m.Rebuild(context.Background()); err != nil {
		t.Fatalf("initial rebuild: %v", err)
	}

	stub.fail = true
	m.Upsert(embedding("g2", []float32{0, 1}))
	err = m.Rebuild(context.Background())
	if !errors.Is(err, ErrIndexRebuild) {
		t.Fatalf("expected ErrIndexRebuild, got %v", err)
	}

	// Previous snapshot and the overlay both keep serving.
	hits, err := m.Search(context.Background(), testKey, []float32{1, 0}, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected both vectors searchable after failed rebuild, got %v", hits)
	}
}

func TestManagerRemoveMasksSnapshot(t *testing.T) {
	stub := newStoreStub()
	m, err := NewManager(stub.load, WithRebuildInterval(0), WithMode(ModeFlat))
	if err != nil {
		t.Fatal(err)
	}

	for _, owner := range []string{"keep", "drop"} {
		e := embedding(owner, []float32{1, 0})
		stub.put(e)
		m.Upsert(e)
	}
	if err := m.Rebuild(context.Background()); err != nil {
		t.Fatal(err)
	}

	m.Remove(testKey, "drop")
	hits, err := m.Search(context.Background(), testKey, []float32{1, 0}, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Owner != "keep" {
		t.Fatalf("removed owner still searchable: %v", hits)
	}
	if n := m.Len(testKey); n != 1 {
		t.Fatalf("expected 1 after remove, got %d", n)
	}
}

func TestManagerOverlayShadowsSnapshot(t *testing.T) {
	stub := newStoreStub()
	m, err := NewManager(stub.load, WithRebuildInterval(0), WithMode(ModeFlat))
	if err != nil {
		t.Fatal(err)
	}

	e := embedding("g1", []float32{1, 0})
	stub.put(e)
	m.Upsert(e)
	if err := m.Rebuild(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Re-embed the same owner with a different vector; only the new
	// one may appear.
	m.Upsert(embedding("g1", []float32{0, 1}))
	hits, err := m.Search(context.Background(), testKey, []float32{0, 1}, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("owner duplicated across snapshot and overlay: %v", hits)
	}
	if hits[0].Score < 0.99 {
		t.Fatalf("stale vector served: %v", hits)
	}
}

func TestManagerUnknownNamespace(t *testing.T) {
	stub := newStoreStub()
	m, err := NewManager(stub.load, WithRebuildInterval(0))
	if err != nil {
		t.Fatal(err)
	}
	_, err = m.Search(context.Background(), Key{Model: "other", Kind: model.OwnerGame}, []float32{1}, 1, nil)
	if !errors.Is(err, ErrUnknownNamespace) {
		t.Fatalf("expected ErrUnknownNamespace, got %v", err)
	}
}

func TestManagerWarm(t *testing.T) {
	stub := newStoreStub()
	stub.put(embedding("g1", []float32{1, 0}))
	m, err := NewManager(stub.load, WithRebuildInterval(0), WithMode(ModeGraph))
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Warm(context.Background(), testKey); err != nil {
		t.Fatal(err)
	}
	hits, err := m.Search(context.Background(), testKey, []float32{1, 0}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Owner != "g1" {
		t.Fatalf("warm load missing vector: %v", hits)
	}
}

func TestManagerBackgroundRebuild(t *testing.T) {
	stub := newStoreStub()
	m, err := NewManager(stub.load, WithRebuildInterval(10*time.Millisecond), WithMode(ModeFlat))
	if err != nil {
		t.Fatal(err)
	}

	e := embedding("g1", []float32{1, 0})
	stub.put(e)
	m.Upsert(e)

	m.Start(context.Background())
	defer m.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if stub.loads.Load() > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("background loop never rebuilt")
}
