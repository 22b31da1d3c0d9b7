// Package transcribe runs offline speech-to-text over captured PCM buffers.
package transcribe

import (
	"context"
	"errors"
	"time"

	"murmur/model"
)

var (
	ErrModelNotLoaded     = errors.New("model not loaded")
	ErrInvalidAudioFormat = errors.New("invalid audio format")
	ErrProcessingFailed   = errors.New("inference failed")
	ErrInsufficientMemory = errors.New("insufficient memory for model")
	ErrCancelled          = errors.New("transcription cancelled")
)

// PerformanceMode trades latency for accuracy. It changes decode parameters
// only, never the shape of the result.
type PerformanceMode string

const (
	ModeSpeed    PerformanceMode = "speed"
	ModeBalanced PerformanceMode = "balanced"
	ModeAccuracy PerformanceMode = "accuracy"
)

func ValidMode(m PerformanceMode) bool {
	switch m {
	case ModeSpeed, ModeBalanced, ModeAccuracy:
		return true
	}
	return false
}

// Request is one transcription job. The sample buffer is moved in from the
// recording session; the request is not mutated after submission.
type Request struct {
	Samples  []int16 // 16 kHz mono s16, the capture contract
	Model    model.Size
	Language string // BCP-47-ish code; empty means auto-detect
	Mode     PerformanceMode
}

// Segment is one timed span of recognized text.
type Segment struct {
	Text       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// Result is consumed exactly once by the injection stage.
type Result struct {
	Text     string
	Segments []Segment
	// Confidence averages token probabilities across all segments.
	Confidence float64
	// Language is the explicit or detected language; detection falling below
	// confidence defaults to English rather than failing.
	Language           string
	LanguageConfidence float64
	ProcessingTime     time.Duration
	Model              model.Size
}

// Engine turns a request into a result. Implementations keep at most one
// model resident at a time.
type Engine interface {
	Transcribe(ctx context.Context, req Request) (Result, error)
	Close() error
}
