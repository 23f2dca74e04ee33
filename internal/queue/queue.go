// Package queue provides the bounded priority queue used for exact top-k
// selection.
//
// Items are ordered by (Distance, Node): equal distances are broken by the
// smaller node index, so the selected set and its order never depend on the
// order in which candidates were offered.
package queue

import "container/heap"

// Compile time check to ensure PriorityQueue satisfies the heap interface.
var _ heap.Interface = (*PriorityQueue)(nil)

// PriorityQueueItem represents an item in the priority queue.
type PriorityQueueItem struct {
	Node     int     // Node is the reference row of the candidate.
	Distance float64 // Distance is the priority of the item in the queue.
}

// Before reports whether a ranks ahead of b: smaller distance first,
// smaller node on ties.
func Before(a, b PriorityQueueItem) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Node < b.Node
}

// PriorityQueue implements heap.Interface as a max-heap of
// PriorityQueueItems: the top is the worst item, the one a bounded top-k
// selection evicts.
type PriorityQueue struct {
	items []PriorityQueueItem
}

// NewMax initializes a new max priority queue.
func NewMax(capacity int) *PriorityQueue {
	return &PriorityQueue{items: make([]PriorityQueueItem, 0, capacity)}
}

// Len returns the number of elements in the priority queue.
func (pq *PriorityQueue) Len() int { return len(pq.items) }

// Cap returns the capacity of the backing slice.
func (pq *PriorityQueue) Cap() int { return cap(pq.items) }

// Less reports whether the element with index i should sort before the element with index j.
func (pq *PriorityQueue) Less(i, j int) bool {
	return Before(pq.items[j], pq.items[i])
}

// Swap swaps the elements with indexes i and j.
func (pq *PriorityQueue) Swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
}

// Push adds x to the priority queue.
func (pq *PriorityQueue) Push(x any) {
	pq.items = append(pq.items, x.(PriorityQueueItem))
}

// Pop removes and returns the last element of the backing slice.
// Use heap.Pop or PopItem to remove the top element.
func (pq *PriorityQueue) Pop() any {
	n := len(pq.items)
	if n == 0 {
		return PriorityQueueItem{}
	}
	item := pq.items[n-1]
	pq.items = pq.items[:n-1]
	return item
}

// TopItem returns the worst retained item.
func (pq *PriorityQueue) TopItem() (PriorityQueueItem, bool) {
	if len(pq.items) == 0 {
		return PriorityQueueItem{}, false
	}
	return pq.items[0], true
}

// PushItem inserts an item while maintaining the heap invariant.
func (pq *PriorityQueue) PushItem(item PriorityQueueItem) {
	heap.Push(pq, item)
}

// PopItem removes and returns the top element while maintaining the heap invariant.
func (pq *PriorityQueue) PopItem() (PriorityQueueItem, bool) {
	if len(pq.items) == 0 {
		return PriorityQueueItem{}, false
	}
	return heap.Pop(pq).(PriorityQueueItem), true
}

// Offer keeps the k best items seen so far.
// It reports whether item was retained.
func (pq *PriorityQueue) Offer(item PriorityQueueItem, k int) bool {
	if len(pq.items) < k {
		pq.PushItem(item)
		return true
	}
	if worst, ok := pq.TopItem(); !ok || !Before(item, worst) {
		return false
	}
	pq.items[0] = item
	heap.Fix(pq, 0)
	return true
}

// DrainAscending empties the queue and returns its items best first.
func (pq *PriorityQueue) DrainAscending() []PriorityQueueItem {
	out := make([]PriorityQueueItem, len(pq.items))
	for i := len(out) - 1; i >= 0; i-- {
		out[i], _ = pq.PopItem()
	}
	return out
}

// Reset clears the priority queue for reuse.
func (pq *PriorityQueue) Reset() {
	pq.items = pq.items[:0]
}
