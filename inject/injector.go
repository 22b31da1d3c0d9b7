package inject

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"murmur/log"
)

// DefaultCapacity bounds the number of queued (not executing) requests.
const DefaultCapacity = 16

// RunOnMain marshals fn onto the primary application thread. Platform input
// layers are not safe to call from arbitrary goroutines.
type RunOnMain func(fn func())

// Service owns the injection queue and the single executor goroutine. The
// executor pops jobs in priority order and types them one at a time; the
// queue itself accepts concurrent Enqueue and Cancel calls.
type Service struct {
	q         *queue
	sender    Sender
	runOnMain RunOnMain

	completions chan Completion
	stop        chan struct{}
	done        chan struct{}
}

type Option func(*Service)

// WithRunOnMain installs the primary-thread dispatch hook. Tests pass a
// direct invoker; the binary wires golang.design/x/mainthread. A nil hook
// keeps the direct-call default, for platforms whose key sender has no
// thread affinity.
func WithRunOnMain(r RunOnMain) Option {
	return func(s *Service) {
		if r != nil {
			s.runOnMain = r
		}
	}
}

func WithCapacity(n int) Option {
	return func(s *Service) { s.q = newQueue(n) }
}

func NewService(sender Sender, opts ...Option) *Service {
	s := &Service{
		q:         newQueue(DefaultCapacity),
		sender:    sender,
		runOnMain: func(fn func()) { fn() },
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.completions = make(chan Completion, s.q.capacity+1)
	go s.run()
	return s
}

// Enqueue accepts a request for execution and returns its handle.
func (s *Service) Enqueue(req Request) (Handle, error) {
	select {
	case <-s.stop:
		return 0, ErrClosed
	default:
	}
	return s.q.push(req)
}

// Cancel removes a still-queued request. Executing or finished requests
// return ErrNotFound; execution is not interruptible mid-stream.
func (s *Service) Cancel(h Handle) error {
	return s.q.cancel(h)
}

// Completions delivers one event per executed request, in execution order.
func (s *Service) Completions() <-chan Completion {
	return s.completions
}

// Pending reports the number of queued requests, excluding the executing one.
func (s *Service) Pending() int {
	return s.q.pending()
}

// Close stops the executor after the current request finishes.
func (s *Service) Close() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
}

func (s *Service) run() {
	defer close(s.done)
	for {
		j := s.q.pop(s.stop)
		if j == nil {
			return
		}
		c := s.execute(j)
		s.q.finish(j)
		if c.Err != nil {
			log.Warnf("injection failed after %d runes: %v", c.Typed, c.Err)
		}
		select {
		case s.completions <- c:
		case <-s.stop:
			return
		}
	}
}

func (s *Service) execute(j *job) Completion {
	start := time.Now()
	ctx := context.Background()
	if j.req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.req.Timeout)
		defer cancel()
	}

	text := j.req.Text
	if j.req.StripFormatting {
		text = flattenFormatting(text)
	}

	typed := 0
	for _, r := range text {
		// The deadline is only checked between characters: a key event in
		// flight is never abandoned halfway.
		if ctx.Err() != nil {
			return Completion{
				Handle:   j.handle,
				Typed:    typed,
				Err:      &TimeoutError{Configured: j.req.Timeout},
				Duration: time.Since(start),
			}
		}
		if err := s.deliver(r); err != nil {
			return Completion{
				Handle:   j.handle,
				Typed:    typed,
				Err:      classify(err),
				Duration: time.Since(start),
			}
		}
		typed++
		s.pause(ctx, delayFor(r, j.req.Speed))
	}
	return Completion{Handle: j.handle, Typed: typed, Duration: time.Since(start)}
}

// deliver marshals one rune's keystroke onto the primary thread and waits
// for the result.
func (s *Service) deliver(r rune) error {
	errc := make(chan error, 1)
	s.runOnMain(func() {
		if r < 0x80 {
			errc <- s.sender.TapRune(r)
			return
		}
		errc <- s.sender.PasteText(string(r))
	})
	return <-errc
}

// flattenFormatting collapses every whitespace run, newlines included, into
// a single space and trims the ends.
func flattenFormatting(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func (s *Service) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrNoActiveInput),
		errors.Is(err, ErrSystem):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrSystem, err)
	}
}
