package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"murmur/capture"
	"murmur/inject"
	"murmur/model"
	"murmur/transcribe"
)

func sinePCM(freq float64, d time.Duration) []byte {
	n := int(d.Seconds() * capture.SampleRate)
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(12000 * math.Sin(2*math.Pi*freq*float64(i)/capture.SampleRate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm
}

func testConfig() Config {
	return Config{
		MaxDuration: 10 * time.Second,
		Model:       model.SizeBase,
		Mode:        transcribe.ModeBalanced,
		TypingSpeed: 4,
	}
}

type harness struct {
	orch   *Orchestrator
	sender *inject.FakeSender
	eng    *transcribe.FakeEngine
	inj    *inject.Service
}

func newHarness(t *testing.T, eng *transcribe.FakeEngine, cfg Config, opts ...Option) *harness {
	t.Helper()
	fc := &capture.FakeContext{
		PCM: sinePCM(440, 5*time.Second),
		Spec: capture.StreamSpec{
			Format:     capture.FormatS16LE,
			SampleRate: capture.SampleRate,
			Channels:   1,
		},
	}
	cap := capture.NewService(fc, nil, capture.Options{})
	sender := &inject.FakeSender{}
	inj := inject.NewService(sender)
	t.Cleanup(inj.Close)
	orch := New(cap, eng, inj, func() Config { return cfg }, opts...)
	return &harness{orch: orch, sender: sender, eng: eng, inj: inj}
}

func awaitStage(t *testing.T, h *harness, want Stage) Status {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case st := <-h.orch.Status():
			if st.Stage == want {
				return st
			}
		case <-deadline:
			t.Fatalf("never reached stage %q (now %q)", want, h.orch.Stage())
		}
	}
}

func TestDictationEndToEnd(t *testing.T) {
	h := newHarness(t, &transcribe.FakeEngine{Text: "hello world"}, testConfig())

	h.orch.Trigger()
	awaitStage(t, h, StageCapturing)
	h.orch.Trigger() // stop
	awaitStage(t, h, StageIdle)

	if got := h.sender.Typed(); got != "hello world" {
		t.Errorf("injected %q, want %q", got, "hello world")
	}
	if n := len([]rune(h.sender.Typed())); n != 11 {
		t.Errorf("injected %d chars, want 11", n)
	}
}

func TestSecondTriggerStopsCapture(t *testing.T) {
	eng := &transcribe.FakeEngine{Text: "x", Delay: 300 * time.Millisecond}
	h := newHarness(t, eng, testConfig())

	h.orch.Trigger()
	awaitStage(t, h, StageCapturing)
	h.orch.Trigger()
	awaitStage(t, h, StageTranscribing)

	if st := h.orch.Stage(); st != StageTranscribing {
		t.Errorf("stage = %q, want transcribing right after stop", st)
	}
	awaitStage(t, h, StageIdle)
	if eng.Calls() != 1 {
		t.Errorf("engine calls = %d, want exactly one session", eng.Calls())
	}
}

func TestTriggerDuringTranscribingIsNoop(t *testing.T) {
	eng := &transcribe.FakeEngine{Text: "x", Delay: 400 * time.Millisecond}
	h := newHarness(t, eng, testConfig())

	h.orch.Trigger()
	awaitStage(t, h, StageCapturing)
	h.orch.Trigger()
	awaitStage(t, h, StageTranscribing)

	h.orch.Trigger() // must neither start capture nor abort inference
	time.Sleep(50 * time.Millisecond)
	if st := h.orch.Stage(); st != StageTranscribing {
		t.Fatalf("stage = %q, want transcribing to continue", st)
	}

	awaitStage(t, h, StageIdle)
	if eng.Calls() != 1 {
		t.Errorf("engine calls = %d, want 1", eng.Calls())
	}
}

func TestEngineFailureClassified(t *testing.T) {
	eng := &transcribe.FakeEngine{Err: transcribe.ErrModelNotLoaded}
	h := newHarness(t, eng, testConfig())

	h.orch.Trigger()
	awaitStage(t, h, StageCapturing)
	h.orch.Trigger()

	st := awaitStage(t, h, StageFailed)
	if st.Detail != ClassModelMissing {
		t.Errorf("detail = %q, want %q", st.Detail, ClassModelMissing)
	}
	awaitStage(t, h, StageIdle)
	if h.sender.Typed() != "" {
		t.Errorf("injected %q after failure, want nothing", h.sender.Typed())
	}
}

func TestRunDeadlineFailsWithTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.RunTimeout = 150 * time.Millisecond
	eng := &transcribe.FakeEngine{Text: "late", Delay: 2 * time.Second}
	h := newHarness(t, eng, cfg)

	h.orch.Trigger()
	awaitStage(t, h, StageCapturing)
	h.orch.Trigger()

	st := awaitStage(t, h, StageFailed)
	if st.Detail != ClassTimeout {
		t.Errorf("detail = %q, want %q", st.Detail, ClassTimeout)
	}
	awaitStage(t, h, StageIdle)
	if h.sender.Typed() != "" {
		t.Error("nothing may be injected after a run timeout")
	}
}

func TestEmptyTranscriptionSkipsInjection(t *testing.T) {
	h := newHarness(t, &transcribe.FakeEngine{Text: "   "}, testConfig())

	h.orch.Trigger()
	awaitStage(t, h, StageCapturing)
	h.orch.Trigger()
	awaitStage(t, h, StageIdle)

	if h.sender.Typed() != "" {
		t.Errorf("injected %q for empty transcription", h.sender.Typed())
	}
}

func TestRecoveryAfterFailure(t *testing.T) {
	eng := &transcribe.FakeEngine{Err: transcribe.ErrProcessingFailed}
	h := newHarness(t, eng, testConfig())

	h.orch.Trigger()
	awaitStage(t, h, StageCapturing)
	h.orch.Trigger()
	awaitStage(t, h, StageFailed)
	awaitStage(t, h, StageIdle)

	// The next trigger must start a fresh session.
	eng.Err = nil
	eng.Text = "second try"
	h.orch.Trigger()
	awaitStage(t, h, StageCapturing)
	h.orch.Trigger()
	awaitStage(t, h, StageIdle)

	if got := h.sender.Typed(); got != "second try" {
		t.Errorf("injected %q, want %q", got, "second try")
	}
}

func TestRecorderReceivesCompletedRun(t *testing.T) {
	var mu sync.Mutex
	var records []RunRecord
	h := newHarness(t, &transcribe.FakeEngine{Text: "note to self"}, testConfig(),
		WithRecorder(func(r RunRecord) {
			mu.Lock()
			records = append(records, r)
			mu.Unlock()
		}))

	h.orch.Trigger()
	awaitStage(t, h, StageCapturing)
	h.orch.Trigger()
	awaitStage(t, h, StageIdle)

	mu.Lock()
	defer mu.Unlock()
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	r := records[0]
	if r.Text != "note to self" {
		t.Errorf("text = %q", r.Text)
	}
	if r.Injected != len("note to self") {
		t.Errorf("injected = %d, want %d", r.Injected, len("note to self"))
	}
	if r.AudioDuration <= 0 {
		t.Error("audio duration missing")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{capture.ErrDeviceUnavailable, ClassDeviceUnavailable},
		{capture.ErrPermissionDenied, ClassDevicePermission},
		{capture.ErrUnsupportedFormat, ClassFormat},
		{model.ErrCorruptModel, ClassModelCorrupt},
		{model.ErrDownloadFailed, ClassModelDownload},
		{transcribe.ErrModelNotLoaded, ClassModelMissing},
		{transcribe.ErrInsufficientMemory, ClassModelMemory},
		{transcribe.ErrCancelled, ClassCancelled},
		{transcribe.ErrProcessingFailed, ClassInference},
		{inject.ErrPermissionDenied, ClassInjectPermission},
		{inject.ErrNoActiveInput, ClassInjectNoTarget},
		{inject.ErrQueueFull, ClassBackpressure},
		{inject.ErrSystem, ClassInjectSystem},
		{&inject.TimeoutError{Configured: time.Second}, ClassInjectTimeout},
		{context.DeadlineExceeded, ClassTimeout},
		{errors.New("mystery"), ClassInternal},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Errorf("Classify(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}
