// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"sync"
)

// Snapshot is the latest copy of the bar heights, safe to read from
// goroutines other than the one driving the mapper.
type Snapshot struct {
	mu      sync.RWMutex
	heights []float64
	version uint64
}

// NewSnapshot returns a snapshot holding n zero heights.
func NewSnapshot(n int) *Snapshot {
	return &Snapshot{heights: make([]float64, n)}
}

// Store copies heights into the snapshot. Extra values are ignored.
func (s *Snapshot) Store(heights []float64) {
	s.mu.Lock()
	copy(s.heights, heights)
	s.version++
	s.mu.Unlock()
}

// LoadInto copies the heights into dst, which must have length Len(). It
// returns the number of Store calls seen so far.
func (s *Snapshot) LoadInto(dst []float64) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(dst) != len(s.heights) {
		return 0, fmt.Errorf("destination slice length %d does not match required length %d", len(dst), len(s.heights))
	}
	copy(dst, s.heights)
	return s.version, nil
}

// Len returns the number of bars held.
func (s *Snapshot) Len() int {
	return len(s.heights)
}
