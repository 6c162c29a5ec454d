package repository

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithPrioritySeed fixes the seed of the treap's node priorities, which
// makes the tree shape reproducible in tests.
func WithPrioritySeed(seed uint64) Option {
	return func(s *TreapStore) {
		s.seed = seed
	}
}
