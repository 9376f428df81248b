package scanner

import (
	"sync"

	"github.com/michaelpento.lv/arbscan/types"
)

// MaxOpportunities bounds the opportunity store
const MaxOpportunities = 20

// OpportunityStore keeps the most recent profitable results, newest first
type OpportunityStore struct {
	mu    sync.RWMutex
	items []*types.ScanResult
	cap   int
}

func NewOpportunityStore(capacity int) *OpportunityStore {
	if capacity <= 0 {
		capacity = MaxOpportunities
	}
	return &OpportunityStore{
		items: make([]*types.ScanResult, 0, capacity),
		cap:   capacity,
	}
}

// Push adds a profitable result to the front. Other results are ignored.
func (s *OpportunityStore) Push(result *types.ScanResult) bool {
	if result == nil || result.Status != types.StatusProfitable {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, nil)
	copy(s.items[1:], s.items)
	s.items[0] = result.Clone()
	if len(s.items) > s.cap {
		s.items = s.items[:s.cap]
	}
	return true
}

// List returns copies of the stored results, newest first
func (s *OpportunityStore) List() []*types.ScanResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.ScanResult, len(s.items))
	for i, r := range s.items {
		out[i] = r.Clone()
	}
	return out
}

func (s *OpportunityStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Reset empties the store and drops every stored result
func (s *OpportunityStore) Reset() {
	s.mu.Lock()
	s.items = make([]*types.ScanResult, 0, s.cap)
	s.mu.Unlock()
}
