// Package inject delivers transcribed text into the focused application as
// synthetic keystrokes. Requests queue by priority, execute one at a time,
// and pace characters to emulate natural typing.
package inject

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrQueueFull signals backpressure: the caller should retry or drop.
	ErrQueueFull = errors.New("injection queue full")
	// ErrNotFound means the handle is unknown, already executing, or done.
	// An executing request cannot be interrupted mid-stream.
	ErrNotFound = errors.New("injection request not found")
	// ErrPermissionDenied means the OS refused synthetic input (missing
	// accessibility consent, or no access to the input device).
	ErrPermissionDenied = errors.New("synthetic input permission denied")
	// ErrNoActiveInput means no focused text field could receive keystrokes.
	ErrNoActiveInput = errors.New("no active input field")
	// ErrSystem wraps unclassified OS-level delivery failures.
	ErrSystem = errors.New("keystroke delivery failed")
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("injector closed")
)

// TimeoutError reports that a request exceeded its configured execution
// timeout. The prefix injected before expiry remains in the target.
type TimeoutError struct {
	Configured time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("injection exceeded %s timeout", e.Configured)
}

type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityImmediate
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityImmediate:
		return "immediate"
	}
	return "unknown"
}

// Request is one unit of text to type. Speed scales the per-character delay
// table; zero means 1.0. Timeout zero means no deadline.
type Request struct {
	Text     string
	Priority Priority
	Speed    float64
	Timeout  time.Duration

	// StripFormatting collapses newlines, tabs and whitespace runs to single
	// spaces before typing. The zero value delivers the text verbatim, so
	// formatting is preserved unless a caller opts out.
	StripFormatting bool
}

// Handle identifies a queued request for cancellation.
type Handle uint64

// Completion reports the outcome of one executed request. Typed counts runes
// that reached the target; on failure it is the surviving prefix length.
type Completion struct {
	Handle   Handle
	Typed    int
	Err      error
	Duration time.Duration
}

// Sender performs the actual platform keystroke work. Implementations are
// only called from the designated primary thread.
type Sender interface {
	// TapRune synthesizes key events for a single rune.
	TapRune(r rune) error
	// PasteText delivers text through a clipboard round trip, for runes
	// with no direct key mapping.
	PasteText(text string) error
}
