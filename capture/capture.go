package capture

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDeviceEnumeration = errors.New("device enumeration failed")
	ErrDeviceUnavailable = errors.New("no input device available")
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrAlreadyRecording  = errors.New("already recording")
	ErrNotRecording      = errors.New("not recording")
)

// TerminationReason records why a session stopped accumulating.
type TerminationReason int

const (
	ReasonManualStop TerminationReason = iota
	ReasonDurationElapsed
	ReasonDeviceError
)

func (r TerminationReason) String() string {
	switch r {
	case ReasonManualStop:
		return "manual-stop"
	case ReasonDurationElapsed:
		return "duration-elapsed"
	case ReasonDeviceError:
		return "device-error"
	default:
		return "unknown"
	}
}

const (
	MinDuration = 1 * time.Second
	MaxDuration = 30 * time.Second
)

// RecordConfig bounds one capture session.
type RecordConfig struct {
	MaxDuration time.Duration
}

func (c RecordConfig) validate() error {
	if c.MaxDuration < MinDuration || c.MaxDuration > MaxDuration {
		return fmt.Errorf("max duration %v out of range [%v, %v]", c.MaxDuration, MinDuration, MaxDuration)
	}
	return nil
}

// RecordingResult is the output of a stopped session. The sample buffer is
// transferred to the caller; the session that produced it is gone.
type RecordingResult struct {
	SessionID string
	Started   time.Time
	Samples   []int16
	Reason    TerminationReason
}

func (r RecordingResult) Duration() time.Duration {
	return time.Duration(len(r.Samples)) * time.Second / SampleRate
}

// Options carries optional observer hooks. Both are invoked from a session
// ticker goroutine, never from the capture thread itself. Hooks must not
// call back into the Service.
type Options struct {
	OnLevel   func(rms float64)
	OnSilence func(ev SilenceEvent)
}

// Service owns the microphone: it enumerates devices and runs at most one
// recording session at a time.
type Service struct {
	ctx    Context
	device *DeviceDescriptor
	opts   Options

	mu   sync.Mutex
	sess *session
}

func NewService(ctx Context, device *DeviceDescriptor, opts Options) *Service {
	return &Service{ctx: ctx, device: device, opts: opts}
}

// ListInputDevices refreshes the set of capture devices from the OS.
func (s *Service) ListInputDevices() ([]DeviceDescriptor, error) {
	devices, err := s.ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceEnumeration, err)
	}
	return devices, nil
}

// SetDevice switches the input device used by subsequent sessions. A nil
// descriptor selects the system default.
func (s *Service) SetDevice(d *DeviceDescriptor) {
	s.mu.Lock()
	s.device = d
	s.mu.Unlock()
}

// Start opens the device and begins accumulating normalized samples on the
// capture thread. The returned channel closes when the session halts on its
// own (duration elapsed or silence auto-stop); the caller still collects the
// buffer via Stop.
func (s *Service) Start(cfg RecordConfig) (<-chan struct{}, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != nil {
		return nil, ErrAlreadyRecording
	}

	dev, err := s.ctx.NewCapture(s.device, StreamSpec{
		Format:     FormatS16LE,
		SampleRate: SampleRate,
		Channels:   Channels,
	})
	if err != nil {
		return nil, classifyDeviceError(err)
	}

	sess, err := newSession(dev, cfg, s.opts)
	if err != nil {
		dev.Close()
		return nil, err
	}
	s.sess = sess
	return sess.done, nil
}

// Stop halts the active session and transfers its buffer to the caller. It
// is safe to call after an automatic stop already halted the stream; only a
// Stop with no session pending at all fails.
func (s *Service) Stop() (RecordingResult, error) {
	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	s.mu.Unlock()

	if sess == nil {
		return RecordingResult{}, ErrNotRecording
	}
	return sess.finish()
}

// Recording reports whether a session is pending (its buffer not yet
// collected).
func (s *Service) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess != nil
}

func classifyDeviceError(err error) error {
	// Backends surface permission and missing-device conditions as distinct
	// sentinels where the platform reports them; anything else is treated as
	// the device being unavailable.
	if errors.Is(err, ErrPermissionDenied) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}

// session is one capture attempt. The capture thread only appends; halting
// is decided by whoever wins the compare-and-swap on active, so the timer
// path and a racing manual stop cannot both terminate the stream.
type session struct {
	id         string
	started    time.Time
	cfg        RecordConfig
	dev        CaptureDevice
	maxSamples int

	active atomic.Bool
	reason TerminationReason
	timer  *time.Timer
	done   chan struct{}

	tickStop chan struct{}
	tickDone chan struct{}

	mu      sync.Mutex
	samples []int16
	fmtErr  error

	vad     *vadProcessor
	lastRMS atomicFloat
}

func newSession(dev CaptureDevice, cfg RecordConfig, opts Options) (*session, error) {
	vp, err := newVADProcessor()
	if err != nil {
		return nil, fmt.Errorf("vad init: %w", err)
	}

	sess := &session{
		id:         uuid.NewString(),
		started:    time.Now(),
		cfg:        cfg,
		dev:        dev,
		maxSamples: int(cfg.MaxDuration.Seconds() * SampleRate),
		done:       make(chan struct{}),
		tickStop:   make(chan struct{}),
		tickDone:   make(chan struct{}),
		vad:        vp,
	}
	sess.active.Store(true)

	spec := dev.Spec()
	dev.SetCallback(func(data []byte, _ uint32) {
		sess.append(data, spec)
	})
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		return nil, classifyDeviceError(err)
	}

	// Duration bound fires from the timer path, not the caller's.
	sess.timer = time.AfterFunc(cfg.MaxDuration, func() {
		sess.halt(ReasonDurationElapsed)
	})
	go sess.tickLoop(opts)
	return sess, nil
}

// append runs on the capture thread: normalize, accumulate, feed VAD. No
// downstream consumer is ever waited on here.
func (sess *session) append(data []byte, spec StreamSpec) {
	if !sess.active.Load() || len(data) == 0 {
		return
	}
	pcm, err := Normalize(data, spec)
	if err != nil {
		sess.mu.Lock()
		if sess.fmtErr == nil {
			sess.fmtErr = err
		}
		sess.mu.Unlock()
		return
	}

	sess.mu.Lock()
	room := sess.maxSamples - len(sess.samples)
	if room <= 0 {
		sess.mu.Unlock()
		return
	}
	if len(pcm) > room {
		pcm = pcm[:room]
	}
	sess.samples = append(sess.samples, pcm...)
	sess.mu.Unlock()

	sess.lastRMS.store(rmsOf(pcm))
	sess.vad.Process(pcm)
}

// halt terminates the stream exactly once; the winner records the reason.
func (sess *session) halt(reason TerminationReason) bool {
	if !sess.active.CompareAndSwap(true, false) {
		return false
	}
	sess.reason = reason
	sess.timer.Stop()
	close(sess.tickStop)
	sess.dev.Stop()
	sess.dev.ClearCallback()
	close(sess.done)
	return true
}

// finish halts (if still running), waits for the capture thread and ticker
// to quiesce, and hands the buffer over. A normalization failure recorded on
// the capture thread fails the whole session: a partial buffer with holes in
// it must never look like a clean recording.
func (sess *session) finish() (RecordingResult, error) {
	sess.halt(ReasonManualStop)
	<-sess.tickDone
	sess.dev.Close()

	sess.mu.Lock()
	samples := sess.samples
	fmtErr := sess.fmtErr
	sess.samples = nil
	sess.mu.Unlock()

	if fmtErr != nil {
		return RecordingResult{}, fmtErr
	}
	return RecordingResult{
		SessionID: sess.id,
		Started:   sess.started,
		Samples:   samples,
		Reason:    sess.reason,
	}, nil
}

func (sess *session) tickLoop(opts Options) {
	defer close(sess.tickDone)
	mon := newSilenceMonitor()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sess.tickStop:
			return
		case <-ticker.C:
			if opts.OnLevel != nil {
				opts.OnLevel(sess.lastRMS.load())
			}
			if ev := mon.Tick(sess.vad.HasSpeechTick()); ev != SilenceNone && opts.OnSilence != nil {
				opts.OnSilence(ev)
			}
		}
	}
}

func rmsOf(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range pcm {
		normalized := float64(s) / 32768.0
		sumSquares += normalized * normalized
	}
	return math.Sqrt(sumSquares / float64(len(pcm)))
}

type atomicFloat struct{ bits atomic.Uint64 }

func (f *atomicFloat) store(v float64) { f.bits.Store(math.Float64bits(v)) }
func (f *atomicFloat) load() float64   { return math.Float64frombits(f.bits.Load()) }
