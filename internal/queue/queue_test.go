package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityQueue(t *testing.T) {
	t.Run("MaxOrder", func(t *testing.T) {
		pq := NewMax(4)
		pq.PushItem(PriorityQueueItem{Node: 3, Distance: 0.5})
		pq.PushItem(PriorityQueueItem{Node: 1, Distance: 0.1})
		pq.PushItem(PriorityQueueItem{Node: 2, Distance: 0.5})

		var nodes []int
		for pq.Len() > 0 {
			it, ok := pq.PopItem()
			require.True(t, ok)
			nodes = append(nodes, it.Node)
		}
		assert.Equal(t, []int{3, 2, 1}, nodes)

		_, ok := pq.PopItem()
		assert.False(t, ok)
	})

	t.Run("OfferZeroK", func(t *testing.T) {
		pq := NewMax(1)
		assert.False(t, pq.Offer(PriorityQueueItem{Node: 0, Distance: 0}, 0))
		assert.Equal(t, 0, pq.Len())
	})

	t.Run("OfferKeepsBestK", func(t *testing.T) {
		pq := NewMax(3)
		dists := []float64{0.9, 0.2, 0.2, 0.7, 0.1, 0.2}
		for i, d := range dists {
			pq.Offer(PriorityQueueItem{Node: i, Distance: d}, 3)
		}

		got := pq.DrainAscending()
		require.Len(t, got, 3)
		assert.Equal(t, PriorityQueueItem{Node: 4, Distance: 0.1}, got[0])
		assert.Equal(t, PriorityQueueItem{Node: 1, Distance: 0.2}, got[1])
		assert.Equal(t, PriorityQueueItem{Node: 2, Distance: 0.2}, got[2])
		assert.Equal(t, 0, pq.Len())
	})

	t.Run("OfferOrderIndependent", func(t *testing.T) {
		items := []PriorityQueueItem{
			{Node: 5, Distance: 1}, {Node: 0, Distance: 1}, {Node: 3, Distance: 1},
			{Node: 1, Distance: 2}, {Node: 4, Distance: 1},
		}
		a := NewMax(2)
		for _, it := range items {
			a.Offer(it, 2)
		}
		b := NewMax(2)
		for i := len(items) - 1; i >= 0; i-- {
			b.Offer(items[i], 2)
		}
		assert.Equal(t, a.DrainAscending(), b.DrainAscending())
	})

	t.Run("TopAndReset", func(t *testing.T) {
		pq := NewMax(2)
		_, ok := pq.TopItem()
		assert.False(t, ok)

		pq.PushItem(PriorityQueueItem{Node: 0, Distance: 1})
		pq.PushItem(PriorityQueueItem{Node: 1, Distance: 3})
		top, ok := pq.TopItem()
		require.True(t, ok)
		assert.Equal(t, 1, top.Node)

		pq.Reset()
		assert.Equal(t, 0, pq.Len())
	})
}
