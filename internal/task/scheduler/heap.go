package scheduler

import (
	"container/heap"
	"time"
)

type entry struct {
	id    int64
	at    time.Time
	fn    Callback
	seq   uint64 // FIFO among equal fire times
	index int
}

// entryHeap is a min-heap on (at, seq). Each entry tracks its own index so
// Cancel and reschedule are O(log n).
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

func (h entryHeap) peek() *entry {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

func heapPush(h *entryHeap, e *entry) { heap.Push(h, e) }
func heapPop(h *entryHeap) *entry     { return heap.Pop(h).(*entry) }
func heapFix(h *entryHeap, e *entry)  { heap.Fix(h, e.index) }
func heapRemove(h *entryHeap, e *entry) {
	if e.index >= 0 && e.index < h.Len() {
		heap.Remove(h, e.index)
	}
}
