package queue

import (
	"container/heap"
	"sync"
)

// PriorityItem is anything the mutation queue can order: a name (used as
// the move/removal key) and a priority (higher pops first).
type PriorityItem interface {
	QueueKey() string
	Priority() float64
}

// heapSlice is the container/heap backing store. Highest priority first.
type heapSlice []PriorityItem

func (h heapSlice) Len() int            { return len(h) }
func (h heapSlice) Less(i, j int) bool  { return h[i].Priority() > h[j].Priority() }
func (h heapSlice) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *heapSlice) Push(x interface{}) { *h = append(*h, x.(PriorityItem)) }
func (h *heapSlice) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Priority is the mutation queue: a priority queue of active corpus
// champions ordered by decayed priority, supporting atomic
// remove-modify-reinsert as a single "move" operation rather than a
// separate remove then a fresh allocation — see design notes on priority
// queue rescoring.
type Priority struct {
	mu   sync.Mutex
	h    heapSlice
	byID map[string]int // key -> index into h, kept in sync by the heap's Swap
}

// NewPriority constructs an empty mutation queue.
func NewPriority() *Priority {
	pq := &Priority{byID: make(map[string]int)}
	heap.Init(&pq.h)
	return pq
}

// Priority implements heap.Interface itself, rather than handing heapSlice
// to container/heap, so that Swap also updates byID; storage is delegated
// to h.
func (pq *Priority) Len() int { return pq.h.Len() }
func (pq *Priority) Less(i, j int) bool { return pq.h.Less(i, j) }
func (pq *Priority) Swap(i, j int) {
	pq.h.Swap(i, j)
	pq.byID[pq.h[i].QueueKey()] = i
	pq.byID[pq.h[j].QueueKey()] = j
}
func (pq *Priority) Push(x interface{}) {
	item := x.(PriorityItem)
	pq.byID[item.QueueKey()] = len(pq.h)
	pq.h = append(pq.h, item)
}
func (pq *Priority) Pop() interface{} {
	old := pq.h
	n := len(old)
	item := old[n-1]
	pq.h = old[:n-1]
	delete(pq.byID, item.QueueKey())
	return item
}

// PushItem inserts or, if the key already exists, replaces and re-heapifies
// item — a single atomic move rather than a remove-then-add pair, so a
// concurrent Pop can never observe the queue without the item.
func (pq *Priority) PushItem(item PriorityItem) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	pq.pushLocked(item)
}

func (pq *Priority) pushLocked(item PriorityItem) {
	if idx, ok := pq.byID[item.QueueKey()]; ok {
		pq.h[idx] = item
		heap.Fix(pq, idx)
		return
	}
	heap.Push(pq, item)
}

// PopHighest removes and returns the highest-priority item, or false if
// the queue is empty.
func (pq *Priority) PopHighest() (PriorityItem, bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if pq.h.Len() == 0 {
		return nil, false
	}
	return heap.Pop(pq).(PriorityItem), true
}

// Move performs the atomic remove-modify-reinsert described by the design
// notes: it replaces the entry for key (if present) with newItem and
// restores the heap invariant in place, rather than allocating a fresh
// slot. If key is not present, newItem is simply inserted.
func (pq *Priority) Move(key string, newItem PriorityItem) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	pq.pushLocked(newItem)
}

// Remove deletes the entry for key, if present.
func (pq *Priority) Remove(key string) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	idx, ok := pq.byID[key]
	if !ok {
		return
	}
	heap.Remove(pq, idx)
}

// Contains reports whether key currently has a queued entry.
func (pq *Priority) Contains(key string) bool {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	_, ok := pq.byID[key]
	return ok
}

// Size returns the current queue size.
func (pq *Priority) Size() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return pq.h.Len()
}
