//go:build !linux

package cue

import (
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// The miniaudio backend keeps one playback device open and feeds it
// from an atomically swapped sample buffer, because opening a device
// per cue adds audible latency on macOS.
var (
	devOnce sync.Once
	ctx     *malgo.AllocatedContext
	dev     *malgo.Device

	current atomic.Pointer[[]int16]
	cursor  atomic.Uint32
	playMu  sync.Mutex
)

func openDevice() {
	var err error
	ctx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return
	}
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = sampleRate

	dev, err = malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{Data: fill})
	if err != nil {
		ctx.Uninit()
		ctx = nil
		return
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		dev = nil
		ctx.Uninit()
		ctx = nil
	}
}

// fill runs on the audio thread. It emits the active buffer from the
// cursor position and silence once exhausted.
func fill(out, _ []byte, frames uint32) {
	s := current.Load()
	if s == nil {
		zero(out)
		return
	}
	pos := cursor.Load()
	total := uint32(len(*s))
	if pos >= total {
		current.Store(nil)
		zero(out)
		return
	}
	n := frames
	if remaining := total - pos; n > remaining {
		n = remaining
	}
	for i := uint32(0); i < n; i++ {
		v := (*s)[pos+i]
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	cursor.Store(pos + n)
	zero(out[n*2:])
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func play(samples []int16) {
	devOnce.Do(openDevice)
	if dev == nil {
		return
	}
	playMu.Lock()
	defer playMu.Unlock()
	cursor.Store(0)
	current.Store(&samples)
}
