package scanner

import (
	"sync"

	"github.com/michaelpento.lv/arbscan/config"
)

// ChainSelector picks the chain to sweep on each tick
type ChainSelector interface {
	Next(chains []config.ChainConfig) config.ChainConfig
	Reset()
}

// RoundRobin cycles through the chains in configured order
type RoundRobin struct {
	mu   sync.Mutex
	next int
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Next returns the next chain. chains must not be empty.
func (r *RoundRobin) Next(chains []config.ChainConfig) config.ChainConfig {
	r.mu.Lock()
	defer r.mu.Unlock()

	chain := chains[r.next%len(chains)]
	r.next = (r.next + 1) % len(chains)
	return chain
}

func (r *RoundRobin) Reset() {
	r.mu.Lock()
	r.next = 0
	r.mu.Unlock()
}
