package vscript

import "container/heap"

// opHeap orders *Op by ascending ExecPoint; ties resolve by insertion order
// (seq), making pop order deterministic for operations sharing an
// exec_point.
type opHeap []*Op

func (h opHeap) Len() int { return len(h) }

func (h opHeap) Less(i, j int) bool {
	if h[i].ExecPoint != h[j].ExecPoint {
		return h[i].ExecPoint < h[j].ExecPoint
	}
	return h[i].seq < h[j].seq
}

func (h opHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *opHeap) Push(x any) { *h = append(*h, x.(*Op)) }

func (h *opHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// opQueue is a priority queue of ops ordered by ascending ExecPoint,
// grounded on original_source/src/program.hpp's op priority queue and
// implemented with container/heap in place of the original's
// std::priority_queue.
type opQueue struct {
	h opHeap
}

func newOpQueue() *opQueue {
	return &opQueue{}
}

func (q *opQueue) push(op *Op) {
	heap.Push(&q.h, op)
}

func (q *opQueue) empty() bool {
	return len(q.h) == 0
}

func (q *opQueue) top() *Op {
	return q.h[0]
}

func (q *opQueue) pop() *Op {
	return heap.Pop(&q.h).(*Op)
}
