package capture

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

// SineWave produces durS seconds of a 440 Hz tone in the given spec's rate,
// encoded as s16le bytes.
func sinePCM(rate int, durS float64) []byte {
	n := int(float64(rate) * durS)
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(12000 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	return s16Bytes(samples)
}

func fakeService(t *testing.T, fc *FakeContext) *Service {
	t.Helper()
	return NewService(fc, nil, Options{})
}

func specS16(rate int) StreamSpec {
	return StreamSpec{Format: FormatS16LE, SampleRate: rate, Channels: 1}
}

func TestStartWhileRecordingFails(t *testing.T) {
	svc := fakeService(t, &FakeContext{PCM: sinePCM(SampleRate, 1), Spec: specS16(SampleRate)})
	if _, err := svc.Start(RecordConfig{MaxDuration: 5 * time.Second}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Start(RecordConfig{MaxDuration: 5 * time.Second}); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("got %v, want ErrAlreadyRecording", err)
	}
	if _, err := svc.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestStopWithoutSession(t *testing.T) {
	svc := fakeService(t, &FakeContext{PCM: nil, Spec: specS16(SampleRate)})
	if _, err := svc.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("got %v, want ErrNotRecording", err)
	}
}

func TestDurationBounds(t *testing.T) {
	svc := fakeService(t, &FakeContext{PCM: nil, Spec: specS16(SampleRate)})
	for _, d := range []time.Duration{0, 500 * time.Millisecond, 31 * time.Second, 35 * time.Second} {
		if _, err := svc.Start(RecordConfig{MaxDuration: d}); err == nil {
			t.Errorf("duration %v accepted, want rejection", d)
			svc.Stop()
		}
	}
}

func TestManualStopCollectsBuffer(t *testing.T) {
	svc := fakeService(t, &FakeContext{PCM: sinePCM(SampleRate, 1), Spec: specS16(SampleRate)})
	if _, err := svc.Start(RecordConfig{MaxDuration: 10 * time.Second}); err != nil {
		t.Fatal(err)
	}
	// Non-realtime fake feeds the whole second immediately.
	time.Sleep(50 * time.Millisecond)
	res, err := svc.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != ReasonManualStop {
		t.Errorf("reason = %v, want manual-stop", res.Reason)
	}
	if len(res.Samples) < SampleRate/2 {
		t.Errorf("only %d samples accumulated", len(res.Samples))
	}
	if res.SessionID == "" {
		t.Error("missing session id")
	}
	if svc.Recording() {
		t.Error("still recording after Stop")
	}
}

func TestAutoStopAtMaxDuration(t *testing.T) {
	svc := fakeService(t, &FakeContext{PCM: sinePCM(SampleRate, 10), Spec: specS16(SampleRate)})
	done, err := svc.Start(RecordConfig{MaxDuration: 1 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("auto stop never fired")
	}
	res, err := svc.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != ReasonDurationElapsed {
		t.Errorf("reason = %v, want duration-elapsed", res.Reason)
	}
	// Buffer is hard-capped at max duration worth of samples.
	if len(res.Samples) > SampleRate+SampleRate/10 {
		t.Errorf("%d samples exceeds 1s cap", len(res.Samples))
	}
}

// The timer path and a racing manual stop must resolve to exactly one halt;
// whichever wins, Stop still returns the buffer and the service is idle.
func TestStopRacesTimer(t *testing.T) {
	for i := 0; i < 20; i++ {
		svc := fakeService(t, &FakeContext{PCM: sinePCM(SampleRate, 10), Spec: specS16(SampleRate)})
		done, err := svc.Start(RecordConfig{MaxDuration: 1 * time.Second})
		if err != nil {
			t.Fatal(err)
		}

		var wg sync.WaitGroup
		wg.Add(1)
		var res RecordingResult
		var stopErr error
		go func() {
			defer wg.Done()
			time.Sleep(time.Duration(990+i) * time.Millisecond)
			res, stopErr = svc.Stop()
		}()
		<-done // may or may not beat the manual stop
		wg.Wait()

		if stopErr != nil {
			t.Fatalf("iteration %d: %v", i, stopErr)
		}
		if res.Reason != ReasonManualStop && res.Reason != ReasonDurationElapsed {
			t.Fatalf("iteration %d: unexpected reason %v", i, res.Reason)
		}
		if svc.Recording() {
			t.Fatalf("iteration %d: service still recording", i)
		}
	}
}

func TestUndecodableFrameFailsStop(t *testing.T) {
	// An unknown format tag has no conversion path; the session records the
	// first normalization failure and Stop surfaces it instead of a clean
	// result.
	svc := fakeService(t, &FakeContext{
		PCM:  sinePCM(SampleRate, 1),
		Spec: StreamSpec{Format: SampleFormat(9), SampleRate: SampleRate, Channels: 1},
	})
	if _, err := svc.Start(RecordConfig{MaxDuration: 5 * time.Second}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	res, err := svc.Stop()
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("got %v, want ErrUnsupportedFormat", err)
	}
	if len(res.Samples) != 0 {
		t.Errorf("failed session leaked %d samples", len(res.Samples))
	}
}

func TestStartErrorClassifiedUnavailable(t *testing.T) {
	svc := fakeService(t, &FakeContext{
		PCM:      nil,
		Spec:     specS16(SampleRate),
		StartErr: errors.New("stream refused"),
	})
	if _, err := svc.Start(RecordConfig{MaxDuration: 5 * time.Second}); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("got %v, want ErrDeviceUnavailable", err)
	}
	if svc.Recording() {
		t.Error("failed start left a session behind")
	}
}

func TestEnumerationErrorWrapped(t *testing.T) {
	svc := fakeService(t, &FakeContext{DevicesErr: errors.New("daemon gone")})
	if _, err := svc.ListInputDevices(); !errors.Is(err, ErrDeviceEnumeration) {
		t.Fatalf("got %v, want ErrDeviceEnumeration", err)
	}
}

// Frames arriving in a non-contract format are normalized before hitting the
// accumulator: a 48 kHz feed yields ~16 kHz worth of samples.
func TestAccumulatorIsNormalized(t *testing.T) {
	svc := fakeService(t, &FakeContext{PCM: sinePCM(48000, 1), Spec: specS16(48000)})
	if _, err := svc.Start(RecordConfig{MaxDuration: 10 * time.Second}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	res, err := svc.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Samples) < SampleRate*9/10 || len(res.Samples) > SampleRate*11/10 {
		t.Errorf("got %d samples from 1s of 48k input, want ~%d", len(res.Samples), SampleRate)
	}
}
