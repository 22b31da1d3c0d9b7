package inject

import (
	"container/heap"
	"sync"
)

type jobState int

const (
	stateQueued jobState = iota
	stateExecuting
	stateDone
	stateCancelled
)

type job struct {
	handle Handle
	req    Request
	seq    uint64
	index  int
	state  jobState
}

// jobHeap orders by priority, then enqueue order within a priority class.
type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].req.Priority != h[j].req.Priority {
		return h[i].req.Priority > h[j].req.Priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	j := x.(*job)
	j.index = len(*h)
	*h = append(*h, j)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*h = old[:n-1]
	return j
}

// queue is the bounded priority queue shared between enqueue callers and the
// single executor. Capacity counts queued requests only, not the executing
// one.
type queue struct {
	mu       sync.Mutex
	items    jobHeap
	byHandle map[Handle]*job
	capacity int
	nextSeq  uint64
	wake     chan struct{}
}

func newQueue(capacity int) *queue {
	return &queue{
		byHandle: make(map[Handle]*job),
		capacity: capacity,
		wake:     make(chan struct{}, 1),
	}
}

func (q *queue) push(req Request) (Handle, error) {
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		q.mu.Unlock()
		return 0, ErrQueueFull
	}
	q.nextSeq++
	j := &job{handle: Handle(q.nextSeq), req: req, seq: q.nextSeq}
	heap.Push(&q.items, j)
	q.byHandle[j.handle] = j
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return j.handle, nil
}

// pop blocks for the next job, returning nil when stop closes. The returned
// job is marked executing and can no longer be cancelled.
func (q *queue) pop(stop <-chan struct{}) *job {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			j := heap.Pop(&q.items).(*job)
			j.state = stateExecuting
			q.mu.Unlock()
			return j
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-stop:
			return nil
		}
	}
}

func (q *queue) cancel(h Handle) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.byHandle[h]
	if !ok || j.state != stateQueued {
		return ErrNotFound
	}
	heap.Remove(&q.items, j.index)
	j.state = stateCancelled
	delete(q.byHandle, h)
	return nil
}

func (q *queue) finish(j *job) {
	q.mu.Lock()
	j.state = stateDone
	delete(q.byHandle, j.handle)
	q.mu.Unlock()
}

func (q *queue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
