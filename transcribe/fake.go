package transcribe

import (
	"context"
	"sync"
	"time"
)

// FakeEngine is a test double that returns canned results without touching a
// model. Delay simulates inference time and respects context cancellation.
type FakeEngine struct {
	Text  string
	Err   error
	Delay time.Duration

	mu     sync.Mutex
	calls  int
	last   Request
	closed bool
}

func (f *FakeEngine) Transcribe(ctx context.Context, req Request) (Result, error) {
	f.mu.Lock()
	f.calls++
	f.last = req
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return Result{}, ErrCancelled
		}
	}
	if f.Err != nil {
		return Result{}, f.Err
	}
	return Result{
		Text:       f.Text,
		Segments:   []Segment{{Text: f.Text, End: time.Second, Confidence: 0.9}},
		Confidence: 0.9,
		Language:   "en",
		Model:      req.Model,
	}, nil
}

func (f *FakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FakeEngine) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeEngine) LastRequest() Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}
