package quota

import (
	"context"
	"errors"
	"sync"
	"time"
)

// StatsEvent describes one admission decision.
type StatsEvent struct {
	ClientID string
	Allowed  bool
	Method   string
	Path     string
	At       time.Time
}

// StatsRecorder stores admission decisions. Callers treat errors as
// best-effort and never fail a request because of them.
type StatsRecorder interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// Counters aggregates allowed and denied decisions.
type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// MemoryStats keeps process-lifetime decision totals.
type MemoryStats struct {
	mu      sync.Mutex
	total   Counters
	byRoute map[string]Counters
}

func NewMemoryStats() *MemoryStats {
	return &MemoryStats{byRoute: make(map[string]Counters)}
}

func (s *MemoryStats) Record(_ context.Context, ev StatsEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.byRoute[route]
	if ev.Allowed {
		s.total.Allowed++
		c.Allowed++
	} else {
		s.total.Denied++
		c.Denied++
	}
	s.byRoute[route] = c
	return nil
}

func (s *MemoryStats) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStats) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byRoute))
	for k, v := range s.byRoute {
		out[k] = v
	}
	return out
}

type fanout []StatsRecorder

// Fanout records every event to each non-nil recorder and joins their errors.
func Fanout(recorders ...StatsRecorder) StatsRecorder {
	out := make(fanout, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (f fanout) Record(ctx context.Context, ev StatsEvent) error {
	var errs []error
	for _, r := range f {
		if err := r.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
