// Package cue plays short audio notifications for dictation state
// changes so the user knows when the microphone is live without
// looking at the terminal.
package cue

import (
	"math"
	"sync"
)

// Cue identifies one of the notification sounds.
type Cue int

const (
	// Listening plays when capture starts.
	Listening Cue = iota
	// Done plays when capture stops and transcription begins.
	Done
	// Failure plays when a dictation run fails.
	Failure
)

const sampleRate = 44100

// tone describes a single synthesized blip. Failure cues repeat the
// tone twice with a short gap.
type tone struct {
	freq     float64
	duration float64
	volume   float64
	decay    float64
	repeat   bool
	gap      float64
}

var tones = map[Cue]tone{
	Listening: {freq: 1250, duration: 0.12, volume: 0.45, decay: 55},
	Done:      {freq: 880, duration: 0.16, volume: 0.45, decay: 38},
	Failure:   {freq: 340, duration: 0.08, volume: 0.55, decay: 28, repeat: true, gap: 0.05},
}

var (
	mu       sync.Mutex
	disabled bool
	once     sync.Once
	samples  map[Cue][]int16
)

// Disable turns all cues off. Used by headless test mode and the
// audio.cues config switch.
func Disable() {
	mu.Lock()
	disabled = true
	mu.Unlock()
}

// Play synthesizes (once) and plays the cue asynchronously. Playback
// errors are swallowed: a missing audio server must never block
// dictation.
func Play(c Cue) {
	mu.Lock()
	off := disabled
	mu.Unlock()
	if off {
		return
	}
	once.Do(prepare)
	s := samples[c]
	if len(s) == 0 {
		return
	}
	go play(s)
}

func prepare() {
	samples = make(map[Cue][]int16, len(tones))
	for c, t := range tones {
		samples[c] = synth(t)
	}
}

func synth(t tone) []int16 {
	blip := sine(t.freq, t.duration, t.volume, t.decay)
	if !t.repeat {
		return blip
	}
	gap := make([]int16, int(float64(sampleRate)*t.gap))
	out := make([]int16, 0, len(blip)*2+len(gap))
	out = append(out, blip...)
	out = append(out, gap...)
	out = append(out, blip...)
	return out
}

// sine renders a decaying sine blip as mono s16 samples. The
// exponential envelope avoids the click a hard cutoff would produce.
func sine(freq, duration, volume, decay float64) []int16 {
	n := int(float64(sampleRate) * duration)
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		env := math.Exp(-t * decay)
		out[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * env)
	}
	return out
}
