package processor

import (
	"container/heap"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/lordpython/videoforge/common"
)

func TestPriorityQueueOrdersByPriorityThenFIFO(t *testing.T) {
	a := assert.New(t)

	now := time.Now()
	pq := &priorityQueue{}
	heap.Init(pq)

	heap.Push(pq, &QueuedRequest{RequestID: uuid.New(), Priority: common.EPriority.Normal(), SubmittedAt: now})
	heap.Push(pq, &QueuedRequest{RequestID: uuid.New(), Priority: common.EPriority.Urgent(), SubmittedAt: now.Add(time.Second)})
	heap.Push(pq, &QueuedRequest{RequestID: uuid.New(), Priority: common.EPriority.Urgent(), SubmittedAt: now})
	heap.Push(pq, &QueuedRequest{RequestID: uuid.New(), Priority: common.EPriority.Low(), SubmittedAt: now})

	first := heap.Pop(pq).(*QueuedRequest)
	a.Equal(common.EPriority.Urgent(), first.Priority)
	a.Equal(now, first.SubmittedAt)

	second := heap.Pop(pq).(*QueuedRequest)
	a.Equal(common.EPriority.Urgent(), second.Priority)
	a.Equal(now.Add(time.Second), second.SubmittedAt)

	third := heap.Pop(pq).(*QueuedRequest)
	a.Equal(common.EPriority.Normal(), third.Priority)

	fourth := heap.Pop(pq).(*QueuedRequest)
	a.Equal(common.EPriority.Low(), fourth.Priority)

	a.Equal(0, pq.Len())
}
