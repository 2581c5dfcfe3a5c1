package useragent

import (
	"sync/atomic"
)

// Default identifies sift honestly to the sites it reads.
const Default = "Mozilla/5.0 (compatible; sift/1.0; +https://github.com/FranksOps/sift)"

// Pool hands out User-Agents round-robin, one per rendering session.
type Pool struct {
	uas     []string
	counter atomic.Uint64
}

// NewPool creates a new User-Agent pool. Empty entries are dropped; if none
// remain the pool contains only Default.
func NewPool(uas []string) *Pool {
	copied := make([]string, 0, len(uas))
	for _, ua := range uas {
		if ua != "" {
			copied = append(copied, ua)
		}
	}
	if len(copied) == 0 {
		copied = []string{Default}
	}
	return &Pool{
		uas: copied,
	}
}

// Next returns the next User-Agent in the pool in a round-robin fashion.
// It is safe for concurrent use.
func (p *Pool) Next() string {
	if len(p.uas) == 0 {
		return ""
	}
	idx := p.counter.Add(1) - 1
	return p.uas[idx%uint64(len(p.uas))]
}

// At returns the User-Agent assigned to slot i without advancing the pool.
func (p *Pool) At(i int) string {
	if len(p.uas) == 0 || i < 0 {
		return ""
	}
	return p.uas[i%len(p.uas)]
}

// All returns a copy of all User-Agents currently in the pool.
func (p *Pool) All() []string {
	copied := make([]string, len(p.uas))
	copy(copied, p.uas)
	return copied
}
