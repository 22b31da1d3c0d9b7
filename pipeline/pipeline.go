// Package pipeline sequences one dictation run: capture, transcription,
// keystroke injection. At most one run is active end-to-end; the trigger
// signal is stateful (start, then stop) rather than a session queue.
package pipeline

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"time"

	"murmur/capture"
	"murmur/inject"
	"murmur/log"
	"murmur/model"
	"murmur/transcribe"
)

const statusBuffer = 32

// Config is the per-run settings snapshot. It is copied when a run starts;
// later configuration changes apply to the next run only.
type Config struct {
	MaxDuration      time.Duration
	Model            model.Size
	Language         string
	Mode             transcribe.PerformanceMode
	TypingSpeed      float64
	InjectionTimeout time.Duration
	// RunTimeout bounds the whole run from trigger to injected text.
	// Zero disables the deadline.
	RunTimeout time.Duration
}

// RunRecord summarizes one completed dictation for history and transcripts.
type RunRecord struct {
	SessionID      string
	Text           string
	Language       string
	Model          model.Size
	AudioDuration  time.Duration
	ProcessingTime time.Duration
	Injected       int
	Completed      time.Time
}

type runState struct {
	cfg      Config
	deadline time.Time
	started  time.Time
}

// Orchestrator drives the state machine. It never blocks in Trigger: stage
// work runs on its own goroutines and reports back through status events.
type Orchestrator struct {
	capture  *capture.Service
	engine   transcribe.Engine
	injector *inject.Service
	snapshot func() Config

	mu    sync.Mutex
	stage Stage
	run   *runState

	status chan Status
	record func(RunRecord)
}

type Option func(*Orchestrator)

// WithRecorder installs the completed-run sink. Recorder failures are logged,
// never surfaced as pipeline failures.
func WithRecorder(fn func(RunRecord)) Option {
	return func(o *Orchestrator) { o.record = fn }
}

func New(cap *capture.Service, engine transcribe.Engine, inj *inject.Service, snapshot func() Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		capture:  cap,
		engine:   engine,
		injector: inj,
		snapshot: snapshot,
		stage:    StageIdle,
		status:   make(chan Status, statusBuffer),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Stage returns the current stage snapshot.
func (o *Orchestrator) Stage() Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stage
}

// Status delivers one event per state transition.
func (o *Orchestrator) Status() <-chan Status {
	return o.status
}

// Trigger is the hotkey signal. Idle starts a run, Capturing stops the
// recording, any later stage ignores it.
func (o *Orchestrator) Trigger() {
	o.mu.Lock()
	switch o.stage {
	case StageIdle:
		o.startLocked()
		o.mu.Unlock()
	case StageCapturing:
		o.stopCaptureLocked()
		o.mu.Unlock()
	default:
		o.mu.Unlock()
		log.Info("trigger ignored: run in progress")
	}
}

func (o *Orchestrator) startLocked() {
	cfg := o.snapshot()
	done, err := o.capture.Start(capture.RecordConfig{MaxDuration: cfg.MaxDuration})
	if err != nil {
		o.failLocked(err)
		return
	}
	r := &runState{cfg: cfg, started: time.Now()}
	if cfg.RunTimeout > 0 {
		r.deadline = r.started.Add(cfg.RunTimeout)
	}
	o.run = r
	o.setStageLocked(StageCapturing, "")
	go o.watchCapture(r, done)
}

// watchCapture handles the max-duration auto-stop. The manual-stop path may
// win the race; the stage guard makes sure only one of them collects.
func (o *Orchestrator) watchCapture(r *runState, done <-chan struct{}) {
	<-done
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run != r || o.stage != StageCapturing {
		return
	}
	o.stopCaptureLocked()
}

func (o *Orchestrator) stopCaptureLocked() {
	r := o.run
	result, err := o.capture.Stop()
	if err != nil {
		o.failLocked(err)
		return
	}
	o.setStageLocked(StageTranscribing, "")
	go o.transcribeAndInject(r, result)
}

func (o *Orchestrator) transcribeAndInject(r *runState, rec capture.RecordingResult) {
	ctx := context.Background()
	if !r.deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, r.deadline)
		defer cancel()
	}

	res, err := o.engine.Transcribe(ctx, transcribe.Request{
		Samples:  rec.Samples,
		Model:    r.cfg.Model,
		Language: r.cfg.Language,
		Mode:     r.cfg.Mode,
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = context.DeadlineExceeded
		}
		o.fail(err)
		return
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	log.Inference(log.InferenceMetrics{
		AudioLengthS:  rec.Duration().Seconds(),
		ProcessMs:     float64(res.ProcessingTime.Milliseconds()),
		ModelSize:     string(res.Model),
		Language:      res.Language,
		Mode:          string(r.cfg.Mode),
		Confidence:    res.Confidence,
		MemoryAllocMB: float64(ms.Alloc) / (1 << 20),
		MemoryPeakMB:  float64(ms.Sys) / (1 << 20),
	})

	text := strings.TrimSpace(res.Text)
	if text == "" {
		log.Info("transcription empty, nothing to inject")
		o.finish(r, rec, res, 0)
		return
	}

	// Once injection starts it is not interruptible, so the run deadline is
	// folded into the request's own timeout instead of a context.
	timeout := r.cfg.InjectionTimeout
	if !r.deadline.IsZero() {
		remaining := time.Until(r.deadline)
		if remaining <= 0 {
			o.fail(context.DeadlineExceeded)
			return
		}
		if timeout == 0 || remaining < timeout {
			timeout = remaining
		}
	}

	o.mu.Lock()
	if o.run != r {
		o.mu.Unlock()
		return
	}
	o.setStageLocked(StageInjecting, "")
	o.mu.Unlock()

	h, err := o.injector.Enqueue(inject.Request{
		Text:     text,
		Priority: inject.PriorityNormal,
		Speed:    r.cfg.TypingSpeed,
		Timeout:  timeout,
	})
	if err != nil {
		o.fail(err)
		return
	}

	for c := range o.injector.Completions() {
		if c.Handle != h {
			continue
		}
		if c.Err != nil {
			o.fail(c.Err)
			return
		}
		log.Infof("injected %d chars in %s", c.Typed, c.Duration.Round(time.Millisecond))
		o.finish(r, rec, res, c.Typed)
		return
	}
	o.fail(inject.ErrClosed)
}

func (o *Orchestrator) finish(r *runState, rec capture.RecordingResult, res transcribe.Result, injected int) {
	o.mu.Lock()
	if o.run == r {
		o.run = nil
	}
	o.setStageLocked(StageIdle, "")
	o.mu.Unlock()

	if o.record != nil && res.Text != "" {
		o.record(RunRecord{
			SessionID:      rec.SessionID,
			Text:           strings.TrimSpace(res.Text),
			Language:       res.Language,
			Model:          res.Model,
			AudioDuration:  rec.Duration(),
			ProcessingTime: res.ProcessingTime,
			Injected:       injected,
			Completed:      time.Now(),
		})
	}
}

func (o *Orchestrator) fail(err error) {
	o.mu.Lock()
	o.failLocked(err)
	o.mu.Unlock()
}

// failLocked emits exactly one classified terminal event, then returns to
// Idle so the next trigger is never blocked by a prior failure.
func (o *Orchestrator) failLocked(err error) {
	class := Classify(err)
	log.Errorf("pipeline failed (%s): %v", class, err)
	o.run = nil
	o.setStageLocked(StageFailed, class)
	o.setStageLocked(StageIdle, "")
}

func (o *Orchestrator) setStageLocked(stage Stage, detail string) {
	o.stage = stage
	ev := Status{Stage: stage, Detail: detail, Time: time.Now()}
	select {
	case o.status <- ev:
	default:
		log.Warn("status event dropped: slow consumer")
	}
}
