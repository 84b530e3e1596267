package report

import (
	"container/list"
	"sync"
)

// LRUStore is an in-memory LRU cache that delegates to a backing Store on miss.
type LRUStore struct {
	mu    sync.Mutex
	cap   int
	back  Store
	order *list.List // of *RunResult, most recent at front
	items map[string]*list.Element
}

// NewLRUStore creates an LRU cache with the given capacity that delegates
// to back on cache misses. Capacity must be >= 1.
func NewLRUStore(cap int, back Store) *LRUStore {
	if cap < 1 {
		cap = 1
	}
	return &LRUStore{
		cap:   cap,
		back:  back,
		order: list.New(),
		items: make(map[string]*list.Element, cap),
	}
}

// Save writes the result to the cache and delegates to the backing store.
func (s *LRUStore) Save(result *RunResult) error {
	s.mu.Lock()
	s.put(result)
	s.mu.Unlock()

	return s.back.Save(result)
}

// Load checks the cache first. On miss, it loads from the backing store
// and promotes the result into the cache.
func (s *LRUStore) Load(runID string) (*RunResult, error) {
	s.mu.Lock()
	if e, ok := s.items[runID]; ok {
		s.order.MoveToFront(e)
		r := e.Value.(*RunResult)
		s.mu.Unlock()
		return r, nil
	}
	s.mu.Unlock()

	result, err := s.back.Load(runID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.put(result)
	s.mu.Unlock()
	return result, nil
}

// Latest returns the most recently saved or loaded result still cached.
func (s *LRUStore) Latest() (*RunResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	front := s.order.Front()
	if front == nil {
		return nil, false
	}
	return front.Value.(*RunResult), true
}

// put inserts or refreshes result; s.mu must be held.
func (s *LRUStore) put(result *RunResult) {
	if e, ok := s.items[result.ID]; ok {
		e.Value = result
		s.order.MoveToFront(e)
		return
	}
	s.items[result.ID] = s.order.PushFront(result)
	if s.order.Len() > s.cap {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(*RunResult).ID)
	}
}
