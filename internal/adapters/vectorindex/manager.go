package vectorindex

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/gambit/internal/domain/model"
	"github.com/okian/gambit/pkg/logger"
	"github.com/okian/gambit/pkg/metrics"
)

// Loader fetches every embedding of one namespace from storage. The
// store is the source of truth; rebuilds always start from it.
type Loader func(ctx context.Context, embedModel string, kind model.OwnerKind) ([]model.Embedding, error)

// Key identifies an index namespace. Vectors from different models
// or owner kinds are never compared against each other.
type Key struct {
	Model string
	Kind  model.OwnerKind
}

func (k Key) String() string {
	return k.Model + "/" + string(k.Kind)
}

// snapshot is an immutable built index plus its build metadata.
type snapshot struct {
	idx     Index
	builtAt time.Time
}

// namespace holds one partition's snapshot and its write overlay.
// The overlay absorbs upserts and removals between rebuilds so new
// vectors are searchable immediately, exactly, while the snapshot
// stays read-only. A rebuild folds everything back into one snapshot
// and resets the overlay.
type namespace struct {
	snap  atomic.Pointer[snapshot]
	dirty atomic.Bool

	mu      sync.Mutex
	pending *Flat
	removed map[string]struct{}
}

// Manager maintains one index per (model, owner kind) namespace and
// rebuilds dirty namespaces from storage on a timer. A failed rebuild
// leaves the previous snapshot serving; the namespace stays dirty and
// is retried on the next tick.
type Manager struct {
	loader       Loader
	metric       Metric
	mode         Mode
	maxNeighbors int
	efSearch     int
	interval     time.Duration
	log          logger.Logger

	mu         sync.RWMutex
	namespaces map[Key]*namespace

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewManager creates an index manager. The loader must not be nil.
func NewManager(loader Loader, opts ...Option) (*Manager, error) {
	if loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	m := &Manager{
		loader:       loader,
		metric:       MetricCosine,
		mode:         ModeGraph,
		maxNeighbors: 16,
		efSearch:     64,
		interval:     30 * time.Second,
		log:          logger.Named("vectorindex"),
		namespaces:   make(map[Key]*namespace),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Warm loads and builds the given namespaces from storage up front so
// the first queries do not run against empty indexes.
func (m *Manager) Warm(ctx context.Context, keys ...Key) error {
	for _, key := range keys {
		ns := m.namespace(key)
		if err := m.rebuildNamespace(ctx, key, ns); err != nil {
			return err
		}
	}
	return nil
}

// Start launches the background rebuild loop. No-op when the interval
// is disabled.
func (m *Manager) Start(ctx context.Context) {
	if m.interval <= 0 {
		return
	}
	if m.started.CompareAndSwap(false, true) {
		go m.rebuildLoop(ctx)
	}
}

// Stop halts the background loop and waits for an in-flight rebuild.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	if m.started.Load() {
		<-m.done
	}
}

func (m *Manager) rebuildLoop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.Rebuild(ctx); err != nil {
				m.log.Warn(ctx, "index rebuild failed, previous snapshot still serving",
					logger.Error(err))
			}
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Upsert makes a vector searchable. It lands in the overlay and is
// searched exactly until the next rebuild folds it into the snapshot.
// The store write must have happened first; the overlay is a cache,
// never the source of truth.
func (m *Manager) Upsert(e model.Embedding) {
	key := Key{Model: e.Model, Kind: e.OwnerKind}
	ns := m.namespace(key)

	ns.mu.Lock()
	ns.pending.Add(e.OwnerID, e.Vector)
	delete(ns.removed, e.OwnerID)
	ns.mu.Unlock()
	ns.dirty.Store(true)
}

// Remove hides an owner's vector from searches. The snapshot entry is
// masked until the next rebuild drops it for good.
func (m *Manager) Remove(key Key, owner string) {
	ns := m.namespace(key)

	ns.mu.Lock()
	ns.pending.Remove(owner)
	ns.removed[owner] = struct{}{}
	ns.mu.Unlock()
	ns.dirty.Store(true)
}

// Search merges snapshot and overlay results for one namespace,
// preferring overlay vectors when an owner appears in both. Results
// are ordered by score descending with owner id as tie-break.
func (m *Manager) Search(ctx context.Context, key Key, query []float32, k int, allow func(owner string) bool) ([]Hit, error) {
	m.mu.RLock()
	ns, ok := m.namespaces[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrUnknownNamespace)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ns.mu.Lock()
	pending := ns.pending
	removed := make(map[string]struct{}, len(ns.removed))
	for o := range ns.removed {
		removed[o] = struct{}{}
	}
	ns.mu.Unlock()

	hits := pending.Search(query, k, allow)

	if snap := ns.snap.Load(); snap != nil {
		snapAllow := func(owner string) bool {
			if _, gone := removed[owner]; gone {
				return false
			}
			if pending.Has(owner) {
				return false
			}
			return allow == nil || allow(owner)
		}
		hits = append(hits, snap.idx.Search(query, k, snapAllow)...)
	}

	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Len returns the number of searchable vectors in a namespace.
func (m *Manager) Len(key Key) int {
	m.mu.RLock()
	ns, ok := m.namespaces[key]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	// The overlay pointer is swapped under ns.mu during rebuilds, so
	// it must be read under the same lock.
	ns.mu.Lock()
	defer ns.mu.Unlock()
	n := ns.pending.Len()
	if snap := ns.snap.Load(); snap != nil {
		for _, owner := range snapOwners(snap.idx) {
			if _, gone := ns.removed[owner]; gone {
				continue
			}
			if ns.pending.Has(owner) {
				continue
			}
			n++
		}
	}
	return n
}

// snapOwners enumerates snapshot owners for counting. Both snapshot
// types expose their owner list.
func snapOwners(idx Index) []string {
	switch v := idx.(type) {
	case *Graph:
		return v.owners
	case *Flat:
		v.mu.RLock()
		defer v.mu.RUnlock()
		return append([]string(nil), v.owners...)
	default:
		return nil
	}
}

// Rebuild rebuilds every dirty namespace from storage. The first
// error is returned after all namespaces were attempted.
func (m *Manager) Rebuild(ctx context.Context) error {
	m.mu.RLock()
	keys := make([]Key, 0, len(m.namespaces))
	for key := range m.namespaces {
		keys = append(keys, key)
	}
	m.mu.RUnlock()

	var firstErr error
	for _, key := range keys {
		ns := m.namespace(key)
		if !ns.dirty.Load() {
			continue
		}
		if err := m.rebuildNamespace(ctx, key, ns); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// rebuildNamespace loads the namespace from storage, builds a fresh
// snapshot and atomically replaces snapshot plus overlay. Vectors
// upserted after the load started stay in the overlay they were
// written to only until the swap; they reappear on the next rebuild.
// That window is the documented eventual-consistency gap of the
// approximate index.
func (m *Manager) rebuildNamespace(ctx context.Context, key Key, ns *namespace) error {
	start := time.Now()

	all, err := m.loader(ctx, key.Model, key.Kind)
	if err != nil {
		metrics.RecordIndexRebuildFailure(key.String())
		return fmt.Errorf("load namespace %s: %w: %v", key, ErrIndexRebuild, err)
	}

	owners := make([]string, len(all))
	vecs := make([][]float32, len(all))
	for i, e := range all {
		owners[i] = e.OwnerID
		vecs[i] = e.Vector
	}

	var idx Index
	switch m.mode {
	case ModeFlat:
		flat := NewFlat(m.metric)
		for i := range owners {
			flat.Add(owners[i], vecs[i])
		}
		idx = flat
	default:
		idx = BuildGraph(owners, vecs, m.maxNeighbors, m.efSearch, m.metric)
	}

	ns.mu.Lock()
	ns.snap.Store(&snapshot{idx: idx, builtAt: time.Now()})
	ns.pending = NewFlat(m.metric)
	ns.removed = make(map[string]struct{})
	ns.mu.Unlock()
	ns.dirty.Store(false)

	metrics.RecordIndexRebuild(key.String(), time.Since(start).Seconds())
	metrics.UpdateIndexSize(key.String(), len(owners))
	m.log.Debug(ctx, "index namespace rebuilt",
		logger.String("namespace", key.String()),
		logger.Int("vectors", len(owners)),
		logger.Float64("seconds", time.Since(start).Seconds()))
	return nil
}

// namespace returns the partition for key, creating it on first use.
func (m *Manager) namespace(key Key) *namespace {
	m.mu.RLock()
	ns, ok := m.namespaces[key]
	m.mu.RUnlock()
	if ok {
		return ns
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ns, ok = m.namespaces[key]; ok {
		return ns
	}
	ns = &namespace{
		pending: NewFlat(m.metric),
		removed: make(map[string]struct{}),
	}
	m.namespaces[key] = ns
	return ns
}
