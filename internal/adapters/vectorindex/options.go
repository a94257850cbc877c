package vectorindex

import "time"

// Mode selects the snapshot implementation the Manager builds.
type Mode string

const (
	ModeFlat  Mode = "flat"
	ModeGraph Mode = "graph"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeFlat || m == ModeGraph
}

// Option configures a Manager.
type Option func(*Manager)

// WithMode selects flat or graph snapshots.
func WithMode(mode Mode) Option {
	return func(m *Manager) {
		if mode.Valid() {
			m.mode = mode
		}
	}
}

// WithMetric selects the similarity measure.
func WithMetric(metric Metric) Option {
	return func(m *Manager) {
		if metric.Valid() {
			m.metric = metric
		}
	}
}

// WithGraphParams tunes the approximate index: maxNeighbors is the
// per-node link width, efSearch the query frontier breadth.
func WithGraphParams(maxNeighbors, efSearch int) Option {
	return func(m *Manager) {
		if maxNeighbors > 0 {
			m.maxNeighbors = maxNeighbors
		}
		if efSearch > 0 {
			m.efSearch = efSearch
		}
	}
}

// WithRebuildInterval sets how often dirty namespaces are rebuilt
// from storage. Zero or negative disables the background loop;
// rebuilds then only happen via Rebuild.
func WithRebuildInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.interval = d
	}
}
