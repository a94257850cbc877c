// Package dedupe provides a cheap in-memory pre-check for game
// dedup keys.
package dedupe

// Option applies a configuration option to the key cache.
type Option func(*keyCache)

// WithMaxSize bounds the number of keys kept in memory.
// maxSize <= 0 disables eviction entirely.
func WithMaxSize(maxSize int) Option {
	return func(c *keyCache) {
		c.maxSize = maxSize
	}
}
