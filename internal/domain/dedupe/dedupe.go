// Package dedupe tracks identifiers seen during one matching run.
package dedupe

import (
	"context"
	"sync"

	"github.com/okian/circlematch/internal/domain/model"
)

// Deduper records seen ids so each is processed at most once.
type Deduper interface {
	// SeenAndRecord reports whether id was already seen and records it if not.
	SeenAndRecord(ctx context.Context, id string) bool
	// Unrecord forgets id so a later call may record it again.
	Unrecord(ctx context.Context, id string)
	Size() int
}

type set struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// New returns an empty, concurrency-safe Deduper.
func New(opts ...Option) Deduper {
	cfg := settings{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &set{seen: make(map[string]struct{}, cfg.capacity)}
}

func (s *set) SeenAndRecord(_ context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return true
	}
	s.seen[id] = struct{}{}
	return false
}

func (s *set) Unrecord(_ context.Context, id string) {
	s.mu.Lock()
	delete(s.seen, id)
	s.mu.Unlock()
}

func (s *set) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Candidates drops candidates without an id and every repeat of an id
// already kept. The first occurrence wins, so circle events listed before
// external events take precedence. It returns the kept candidates and the
// number dropped.
func Candidates(ctx context.Context, cands []model.Candidate) ([]model.Candidate, int) {
	d := New(WithCapacity(len(cands)))
	kept := make([]model.Candidate, 0, len(cands))
	for _, c := range cands {
		id := c.Data.ID()
		if id == "" || d.SeenAndRecord(ctx, id) {
			continue
		}
		kept = append(kept, c)
	}
	return kept, len(cands) - len(kept)
}
