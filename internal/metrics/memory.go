package metrics

import (
	"context"
	"sync"
)

// MemorySink is an in-process Sink. Used in tests and as a fallback when
// Redis is unavailable.
type MemorySink struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemorySink() *MemorySink {
	return &MemorySink{counts: make(map[string]int64)}
}

func (s *MemorySink) Incr(_ context.Context, name string, labels Labels) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[Key(name, labels)]++
}

// Snapshot returns a copy of all counters.
func (s *MemorySink) Snapshot(_ context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out, nil
}

// Reset clears all counters.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[string]int64)
}
