package plan

import (
	"errors"
	"sync"
	"time"
)

// ErrPlanNotFound is returned when a plan id is unknown or already consumed.
var ErrPlanNotFound = errors.New("plan not found")

// Store holds generated plans for the window between create and apply.
// Get returns the plan together with its originating request; an expired
// plan yields ErrPlanExpired with the request still available so callers
// can recompute instead of failing.
type Store interface {
	Put(p Plan, req Request)
	Get(id string) (Plan, Request, error)
	Delete(id string)
}

type storedPlan struct {
	plan      Plan
	req       Request
	expiresAt time.Time
}

// MemoryStore is the TTL-bounded in-process store. Plans are ephemeral by
// design; restarting the server invalidates outstanding plan ids.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   func() time.Duration
	now   func() time.Time
	plans map[string]storedPlan
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return NewMemoryStoreFunc(func() time.Duration { return ttl })
}

// NewMemoryStoreFunc resolves the TTL on every Put, so a store wired to a
// runtime setting picks up changes without a restart.
func NewMemoryStoreFunc(ttl func() time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:   ttl,
		now:   time.Now,
		plans: make(map[string]storedPlan),
	}
}

func (s *MemoryStore) currentTTL() time.Duration {
	if d := s.ttl(); d > 0 {
		return d
	}
	return 10 * time.Minute
}

func (s *MemoryStore) Put(p Plan, req Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.plans[p.ID] = storedPlan{plan: p, req: req, expiresAt: s.now().Add(s.currentTTL())}
}

func (s *MemoryStore) Get(id string) (Plan, Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.plans[id]
	if !ok {
		return Plan{}, Request{}, ErrPlanNotFound
	}
	if s.now().After(sp.expiresAt) {
		delete(s.plans, id)
		// Hand the request back so the caller can recompute transparently.
		return Plan{}, sp.req, ErrPlanExpired
	}
	return sp.plan, sp.req, nil
}

func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.plans, id)
}

// ErrPlanExpired marks a plan past its TTL. The originating request is
// still returned alongside it.
var ErrPlanExpired = errors.New("plan expired")

func (s *MemoryStore) sweepLocked() {
	now := s.now()
	for id, sp := range s.plans {
		if now.After(sp.expiresAt) {
			delete(s.plans, id)
		}
	}
}
