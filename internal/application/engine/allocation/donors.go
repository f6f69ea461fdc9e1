package allocation

import (
	"container/heap"

	"github.com/alejandrodnm/polyrotate/internal/domain"
)

// donor is a held position that may be sold to fund a better candidate.
type donor struct {
	market *domain.MarketState
	policy domain.MarketPolicy
	g      float64
	index  int
}

// donorQueue is a min-heap of donors: worst g_held first, then the higher
// priority number, then market key so ordering is total.
type donorQueue struct {
	items []*donor
	byKey map[string]*donor
}

func newDonorQueue() *donorQueue {
	return &donorQueue{byKey: make(map[string]*donor)}
}

func (q *donorQueue) Len() int { return len(q.items) }

func (q *donorQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.g != b.g {
		return a.g < b.g
	}
	if a.policy.Priority != b.policy.Priority {
		return a.policy.Priority > b.policy.Priority
	}
	return a.market.Key() < b.market.Key()
}

func (q *donorQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *donorQueue) Push(x any) {
	d := x.(*donor)
	d.index = len(q.items)
	q.items = append(q.items, d)
}

func (q *donorQueue) Pop() any {
	n := len(q.items)
	d := q.items[n-1]
	q.items[n-1] = nil
	q.items = q.items[:n-1]
	d.index = -1
	return d
}

// upsert inserts or re-keys the donor for m. Positions whose g is undefined
// are never donors.
func (q *donorQueue) upsert(m *domain.MarketState, mp domain.MarketPolicy, lambda float64) {
	g, ok := m.GHeld(lambda)
	d, exists := q.byKey[m.Key()]
	if !ok {
		if exists {
			q.drop(d)
		}
		return
	}
	if exists {
		d.g = g
		d.policy = mp
		if d.index >= 0 {
			heap.Fix(q, d.index)
		}
		return
	}
	d = &donor{market: m, policy: mp, g: g}
	q.byKey[m.Key()] = d
	heap.Push(q, d)
}

func (q *donorQueue) pop() *donor {
	return heap.Pop(q).(*donor)
}

// restore pushes back donors taken out during a funding pass. Donors whose
// position was closed are forgotten.
func (q *donorQueue) restore(ds []*donor, lambda float64) {
	for _, d := range ds {
		g, ok := d.market.GHeld(lambda)
		if !ok {
			delete(q.byKey, d.market.Key())
			continue
		}
		d.g = g
		heap.Push(q, d)
	}
}

func (q *donorQueue) drop(d *donor) {
	if d.index >= 0 {
		heap.Remove(q, d.index)
	}
	delete(q.byKey, d.market.Key())
}
