package experiment

import (
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v2"
)

// sessionStore keeps assignments per caller session for the process
// lifetime, so repeated allocations within one process agree even across
// cache TTL boundaries.
//
// The store is owned by an Engine instance and bounded: once the session
// count exceeds max, least recently seen sessions are dropped.
type sessionStore struct {
	sessions *xsync.Map
	count    *xsync.Counter
	max      int
	now      func() time.Time
}

type sessionRecord struct {
	mu          sync.Mutex
	lastSeen    time.Time
	assignments map[string]*Assignment // Experiment id to assignment.
}

func newSessionStore(max int, now func() time.Time) *sessionStore {
	return &sessionStore{
		sessions: xsync.NewMap(),
		count:    xsync.NewCounter(),
		max:      max,
		now:      now,
	}
}

func (s *sessionStore) get(sessionID, experimentID string) (*Assignment, bool) {
	val, ok := s.sessions.Load(sessionID)
	if !ok {
		return nil, false
	}

	rec := val.(*sessionRecord)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.lastSeen = s.now()
	a, ok := rec.assignments[experimentID]

	return a, ok
}

func (s *sessionStore) put(a *Assignment) {
	val, loaded := s.sessions.LoadOrStore(a.SessionID, &sessionRecord{
		assignments: map[string]*Assignment{},
	})

	rec := val.(*sessionRecord)

	rec.mu.Lock()
	rec.lastSeen = s.now()
	rec.assignments[a.ExperimentID] = a
	rec.mu.Unlock()

	if !loaded {
		s.count.Inc()
		s.evict()
	}
}

func (s *sessionStore) clear(sessionID string) {
	if _, ok := s.sessions.LoadAndDelete(sessionID); ok {
		s.count.Dec()
	}
}

func (s *sessionStore) len() int {
	return int(s.count.Value())
}

// evict drops least recently seen sessions until the bound is met.
func (s *sessionStore) evict() {
	if s.max <= 0 || s.len() <= s.max {
		return
	}

	type aged struct {
		id       string
		lastSeen time.Time
	}

	all := make([]aged, 0, s.max+1)

	s.sessions.Range(func(k string, v interface{}) bool {
		rec := v.(*sessionRecord)

		rec.mu.Lock()
		seen := rec.lastSeen
		rec.mu.Unlock()

		all = append(all, aged{id: k, lastSeen: seen})

		return true
	})

	sort.Slice(all, func(i, j int) bool {
		return all[i].lastSeen.Before(all[j].lastSeen)
	})

	for i := 0; i < len(all) && len(all)-i > s.max; i++ {
		if _, ok := s.sessions.LoadAndDelete(all[i].id); ok {
			s.count.Dec()
		}
	}
}
