// Package quota keeps per-client daily request counters in process memory.
package quota

import (
	"context"
	"sync"
	"time"
)

const dayLayout = "2006-01-02"

// Store counts admitted requests per client and calendar day (UTC). Counters
// are lost on restart.
type Store struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time
}

type record struct {
	mu      sync.Mutex
	date    string
	count   int
	removed bool
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces the wall clock, mostly for tests that cross midnight.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore returns an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		records: make(map[string]*record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) today() string {
	return s.now().UTC().Format(dayLayout)
}

func (s *Store) lookup(clientID string) *record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[clientID]
	if !ok {
		rec = &record{date: s.today()}
		s.records[clientID] = rec
	}
	return rec
}

// Admit reports whether clientID may perform one more request today and, if
// so, consumes one unit of its quota. The check and the increment happen under
// the client's lock so concurrent callers cannot both take the last unit.
func (s *Store) Admit(clientID string, dailyLimit int) bool {
	ok, _ := s.AdmitRemaining(clientID, dailyLimit)
	return ok
}

// AdmitRemaining is Admit that also returns the units left after this
// decision, read under the same lock.
func (s *Store) AdmitRemaining(clientID string, dailyLimit int) (bool, int) {
	for {
		rec := s.lookup(clientID)
		rec.mu.Lock()
		if rec.removed {
			// swept between lookup and lock
			rec.mu.Unlock()
			continue
		}
		today := s.today()
		if rec.date != today {
			rec.date = today
			rec.count = 0
		}
		if rec.count >= dailyLimit {
			rec.mu.Unlock()
			return false, 0
		}
		rec.count++
		left := dailyLimit - rec.count
		rec.mu.Unlock()
		return true, left
	}
}

// Refund returns one unit consumed today by clientID. Units from a previous
// day are not refunded.
func (s *Store) Refund(clientID string) {
	s.mu.Lock()
	rec, ok := s.records[clientID]
	s.mu.Unlock()
	if !ok {
		return
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.date == s.today() && rec.count > 0 {
		rec.count--
	}
}

// Remaining returns how many requests clientID may still make today.
func (s *Store) Remaining(clientID string, dailyLimit int) int {
	s.mu.Lock()
	rec, ok := s.records[clientID]
	s.mu.Unlock()
	if !ok {
		return max(dailyLimit, 0)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.date != s.today() {
		return max(dailyLimit, 0)
	}
	return max(dailyLimit-rec.count, 0)
}

// Len returns the number of clients currently tracked.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Sweep drops records that belong to a previous day and returns how many were
// removed.
func (s *Store) Sweep() int {
	today := s.today()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, rec := range s.records {
		rec.mu.Lock()
		if rec.date != today {
			rec.removed = true
			delete(s.records, id)
			removed++
		}
		rec.mu.Unlock()
	}
	return removed
}

// StartJanitor sweeps stale records every interval until ctx is done.
func (s *Store) StartJanitor(ctx context.Context, every time.Duration, onSweep func(removed int)) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n := s.Sweep()
				if onSweep != nil {
					onSweep(n)
				}
			}
		}
	}()
}

// NextReset returns the instant at which every counter rolls over.
func (s *Store) NextReset() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}

// UntilReset is the time left before every client's count resets.
func (s *Store) UntilReset() time.Duration {
	return s.NextReset().Sub(s.now())
}
