package inject

import (
	"errors"
	"testing"
)

func drain(q *queue) []*job {
	var out []*job
	stop := make(chan struct{})
	close(stop)
	for {
		q.mu.Lock()
		n := len(q.items)
		q.mu.Unlock()
		if n == 0 {
			return out
		}
		out = append(out, q.pop(stop))
	}
}

func TestQueuePriorityOrder(t *testing.T) {
	q := newQueue(8)
	low, _ := q.push(Request{Text: "low", Priority: PriorityLow})
	norm, _ := q.push(Request{Text: "norm", Priority: PriorityNormal})
	imm, _ := q.push(Request{Text: "imm", Priority: PriorityImmediate})
	high, _ := q.push(Request{Text: "high", Priority: PriorityHigh})

	want := []Handle{imm, high, norm, low}
	for i, j := range drain(q) {
		if j.handle != want[i] {
			t.Errorf("pop %d = %q, want handle %d", i, j.req.Text, want[i])
		}
	}
}

func TestQueueFIFOWithinPriority(t *testing.T) {
	q := newQueue(8)
	var handles []Handle
	for i := 0; i < 5; i++ {
		h, err := q.push(Request{Priority: PriorityNormal})
		if err != nil {
			t.Fatal(err)
		}
		handles = append(handles, h)
	}
	for i, j := range drain(q) {
		if j.handle != handles[i] {
			t.Errorf("pop %d out of enqueue order", i)
		}
	}
}

func TestQueueCapacity(t *testing.T) {
	q := newQueue(2)
	if _, err := q.push(Request{}); err != nil {
		t.Fatal(err)
	}
	if _, err := q.push(Request{}); err != nil {
		t.Fatal(err)
	}
	if _, err := q.push(Request{}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
}

func TestQueueCancel(t *testing.T) {
	q := newQueue(8)
	h1, _ := q.push(Request{Text: "a"})
	h2, _ := q.push(Request{Text: "b"})

	if err := q.cancel(h1); err != nil {
		t.Fatalf("cancel queued: %v", err)
	}
	if err := q.cancel(h1); !errors.Is(err, ErrNotFound) {
		t.Errorf("second cancel = %v, want ErrNotFound", err)
	}

	stop := make(chan struct{})
	j := q.pop(stop)
	if j.handle != h2 {
		t.Fatalf("popped %q, want the uncancelled request", j.req.Text)
	}
	if err := q.cancel(h2); !errors.Is(err, ErrNotFound) {
		t.Errorf("cancel executing = %v, want ErrNotFound", err)
	}
	q.finish(j)
	if err := q.cancel(h2); !errors.Is(err, ErrNotFound) {
		t.Errorf("cancel done = %v, want ErrNotFound", err)
	}
}

func TestQueueCancelUnknownHandle(t *testing.T) {
	q := newQueue(4)
	if err := q.cancel(Handle(999)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
