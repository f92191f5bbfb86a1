package queue

import (
	"container/heap"
	"sync"
)

// Item is a single entry in the priority queue
type Item[T any] struct {
	Value    T
	Priority int
	seq      uint64
	index    int
}

type itemHeap[T any] []*Item[T]

func (h itemHeap[T]) Len() int { return len(h) }

// Less orders by priority (lower first), then by insertion order
func (h itemHeap[T]) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap[T]) Push(x any) {
	item := x.(*Item[T])
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// PriorityQueue is a thread-safe min-priority queue. Items with equal
// priority come out in the order they were enqueued.
type PriorityQueue[T any] struct {
	mu   sync.Mutex
	heap itemHeap[T]
	seq  uint64
}

func NewPriorityQueue[T any]() *PriorityQueue[T] {
	pq := &PriorityQueue[T]{heap: make(itemHeap[T], 0)}
	heap.Init(&pq.heap)
	return pq
}

func (pq *PriorityQueue[T]) Len() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return pq.heap.Len()
}

func (pq *PriorityQueue[T]) Enqueue(value T, priority int) {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	pq.seq++
	heap.Push(&pq.heap, &Item[T]{Value: value, Priority: priority, seq: pq.seq})
}

// Dequeue pops the lowest-priority-value item
func (pq *PriorityQueue[T]) Dequeue() (T, bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	if pq.heap.Len() == 0 {
		var zero T
		return zero, false
	}
	item := heap.Pop(&pq.heap).(*Item[T])
	return item.Value, true
}

// DequeueAll drains the queue in priority order
func (pq *PriorityQueue[T]) DequeueAll() []T {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	items := make([]T, 0, pq.heap.Len())
	for pq.heap.Len() > 0 {
		items = append(items, heap.Pop(&pq.heap).(*Item[T]).Value)
	}
	return items
}
