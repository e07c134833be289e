package processor

import (
	"container/heap"
	"time"

	"github.com/google/uuid"

	"github.com/lordpython/videoforge/common"
	"github.com/lordpython/videoforge/session"
)

// QueuedRequest is a submitted job awaiting admission. Ordering is
// lexicographic on (Priority, SubmittedAt) — lower tuple first, i.e. a
// strictly higher priority (lower numeric value) always wins, and ties
// break FIFO on submission time.
type QueuedRequest struct {
	RequestID        uuid.UUID
	SessionID        uuid.UUID
	Request          session.JobRequest
	Priority         common.Priority
	SubmittedAt      time.Time
	EstimatedSeconds float64

	index int // heap bookkeeping, maintained by container/heap
}

// priorityQueue is a container/heap.Interface min-heap over QueuedRequest,
// the idiomatic Go stand-in for a heapq-backed PriorityQueue.
type priorityQueue []*QueuedRequest

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].Priority != pq[j].Priority {
		return pq[i].Priority < pq[j].Priority
	}
	return pq[i].SubmittedAt.Before(pq[j].SubmittedAt)
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	item := x.(*QueuedRequest)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

var _ heap.Interface = (*priorityQueue)(nil)
