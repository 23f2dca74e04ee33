// Package pool provides reusable per-worker buffers for exact search.
package pool

import (
	"sync"

	"github.com/hupe1980/imgrank/internal/queue"
)

// maxRetainedK bounds the heap capacity kept in the pool.
const maxRetainedK = 4096

// Scratch holds the buffers one search worker needs.
type Scratch struct {
	// Heap is a max-heap holding the current k best candidates.
	Heap *queue.PriorityQueue
	// Vec is a copy of the query row, used when rows are normalized.
	Vec []float64
}

var scratchPool = sync.Pool{
	New: func() any {
		return &Scratch{Heap: queue.NewMax(16)}
	},
}

// Get returns a reset Scratch whose Vec has length dim.
func Get(dim int) *Scratch {
	s := scratchPool.Get().(*Scratch)
	s.Heap.Reset()
	if cap(s.Vec) < dim {
		s.Vec = make([]float64, dim)
	}
	s.Vec = s.Vec[:dim]
	return s
}

// Put returns s to the pool. Oversized heaps are dropped.
func Put(s *Scratch) {
	if s == nil {
		return
	}
	if s.Heap.Cap() > maxRetainedK {
		s.Heap = queue.NewMax(16)
	}
	scratchPool.Put(s)
}
