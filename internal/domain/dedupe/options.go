package dedupe

// Option configures the in-memory deduper.
type Option func(*inMemoryDeduper)

// WithMaxSize bounds the number of remembered request ids; the oldest are
// evicted first. Zero or less keeps every id for the life of the process.
func WithMaxSize(n int) Option {
	return func(d *inMemoryDeduper) { d.maxSize = n }
}
