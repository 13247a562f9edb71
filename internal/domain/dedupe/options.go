package dedupe

type settings struct {
	capacity int
}

// Option configures New.
type Option func(*settings)

// WithCapacity presizes the set for n ids.
func WithCapacity(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.capacity = n
		}
	}
}
