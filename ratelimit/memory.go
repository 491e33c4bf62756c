package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps a per-key log of hit timestamps in process memory.
// Counters are lost on restart and are not shared between replicas.
type MemoryStore struct {
	mu   sync.Mutex
	hits map[string]*hitLog
	now  func() time.Time
}

type hitLog struct {
	times  []time.Time
	window time.Duration
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hits: make(map[string]*hitLog),
		now:  time.Now,
	}
}

func (s *MemoryStore) Hit(_ context.Context, key string, p Policy) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	log, ok := s.hits[key]
	if !ok {
		log = &hitLog{}
		s.hits[key] = log
	}
	log.window = p.Window
	log.times = trimWindow(log.times, now, p.Window)

	d := Decision{Limit: p.Limit}
	if len(log.times) < p.Limit {
		log.times = append(log.times, now)
		d.Allowed = true
	}
	d.Remaining = p.Limit - len(log.times)
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if len(log.times) > 0 {
		d.ResetAt = log.times[0].Add(p.Window)
	} else {
		d.ResetAt = now.Add(p.Window)
	}
	return d, nil
}

// Sweep drops keys whose newest hit has left the window. Call periodically
// from a background goroutine.
func (s *MemoryStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, log := range s.hits {
		log.times = trimWindow(log.times, now, log.window)
		if len(log.times) == 0 {
			delete(s.hits, key)
		}
	}
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// trimWindow removes entries at or before (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && !times[start].After(cutoff) {
		start++
	}
	return times[start:]
}
