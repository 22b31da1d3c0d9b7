package capture

import (
	"encoding/binary"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
)

const fakeFrameSamples = 1024

// FakeContext drives the capture path without hardware. Frames are delivered
// in the configured spec so the normalization path is exercised exactly as
// with a real device.
type FakeContext struct {
	PCM      []byte
	Spec     StreamSpec
	Realtime bool

	// DevicesErr / StartErr force the corresponding failure paths.
	DevicesErr error
	StartErr   error

	DeviceList []DeviceDescriptor
}

// NewFakeContextFromWAV loads 16-bit PCM from a WAV file for replay.
func NewFakeContextFromWAV(path string, realtime bool) (*FakeContext, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	pcm := make([]byte, len(buf.Data)*2)
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s)))
	}
	return &FakeContext{
		PCM: pcm,
		Spec: StreamSpec{
			Format:     FormatS16LE,
			SampleRate: int(dec.SampleRate),
			Channels:   int(dec.NumChans),
		},
		Realtime:   realtime,
		DeviceList: []DeviceDescriptor{{ID: "fake", Name: "fake", IsDefault: true}},
	}, nil
}

func (f *FakeContext) Devices() ([]DeviceDescriptor, error) {
	if f.DevicesErr != nil {
		return nil, f.DevicesErr
	}
	return f.DeviceList, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceDescriptor, _ StreamSpec) (CaptureDevice, error) {
	return &FakeCapture{
		pcm:      f.PCM,
		spec:     f.Spec,
		realtime: f.Realtime,
		startErr: f.StartErr,
	}, nil
}

type FakeCapture struct {
	pcm      []byte
	spec     StreamSpec
	realtime bool
	startErr error

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
}

func (f *FakeCapture) Spec() StreamSpec { return f.spec }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	bytesPerFrame := f.spec.Format.bytesPerSample() * f.spec.Channels
	chunkBytes := fakeFrameSamples * bytesPerFrame
	interval := time.Duration(fakeFrameSamples) * time.Second / time.Duration(f.spec.SampleRate)

	go func() {
		defer close(f.feedDone)
		pos := 0
		silence := make([]byte, chunkBytes)
		for {
			select {
			case <-f.stopCh:
				return
			default:
			}

			cb := f.callback()
			if cb != nil {
				if pos < len(f.pcm) {
					end := min(pos+chunkBytes, len(f.pcm))
					chunk := make([]byte, end-pos)
					copy(chunk, f.pcm[pos:end])
					cb(chunk, uint32(len(chunk)/bytesPerFrame))
					pos = end
				} else {
					cb(silence, fakeFrameSamples)
				}
			}

			if f.realtime || pos >= len(f.pcm) {
				select {
				case <-f.stopCh:
					return
				case <-time.After(interval):
				}
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
}

func (f *FakeCapture) Close() {
	f.Stop()
}
