package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Output contract for every capture session.
const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
)

// SampleFormat tags the wire encoding of device frames.
type SampleFormat int

const (
	FormatS16LE SampleFormat = iota // 16-bit signed little-endian
	FormatU16LE                     // 16-bit unsigned little-endian
	FormatF32LE                     // 32-bit IEEE float little-endian
)

func (f SampleFormat) String() string {
	switch f {
	case FormatS16LE:
		return "s16le"
	case FormatU16LE:
		return "u16le"
	case FormatF32LE:
		return "f32le"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

func (f SampleFormat) bytesPerSample() int {
	if f == FormatF32LE {
		return 4
	}
	return 2
}

// ErrUnsupportedFormat reports a native sample encoding the converter does
// not define a conversion for.
var ErrUnsupportedFormat = errors.New("unsupported sample format")

// Normalize converts raw device frames into the service's output contract:
// 16 kHz, mono, 16-bit signed PCM. Dispatch is an exhaustive switch over the
// format tag; unknown tags fail rather than guess.
func Normalize(data []byte, spec StreamSpec) ([]int16, error) {
	if spec.Channels < 1 {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, spec.Channels)
	}
	if spec.SampleRate < 1 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrUnsupportedFormat, spec.SampleRate)
	}

	samples, err := decode(data, spec.Format)
	if err != nil {
		return nil, err
	}
	mono := downmix(samples, spec.Channels)
	return resample(mono, spec.SampleRate, SampleRate), nil
}

func decode(data []byte, format SampleFormat) ([]int16, error) {
	switch format {
	case FormatS16LE:
		out := make([]int16, len(data)/2)
		for i := range out {
			out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
		}
		return out, nil

	case FormatU16LE:
		// Unsigned PCM centers on 0x8000; shift to signed.
		out := make([]int16, len(data)/2)
		for i := range out {
			out[i] = int16(int32(binary.LittleEndian.Uint16(data[i*2:])) - 32768)
		}
		return out, nil

	case FormatF32LE:
		out := make([]int16, len(data)/4)
		for i := range out {
			f := math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
			out[i] = clampToInt16(float64(f) * 32767)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func clampToInt16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// downmix averages interleaved channels into mono.
func downmix(samples []int16, channels int) []int16 {
	if channels == 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int32
		for c := 0; c < channels; c++ {
			sum += int32(samples[i*channels+c])
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}

// resample does linear interpolation between rates. Good enough for speech
// input headed into a 16 kHz model; not a general-purpose resampler.
func resample(samples []int16, from, to int) []int16 {
	if from == to || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	if n == 0 {
		return nil
	}
	out := make([]int16, n)
	ratio := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = int16(float64(samples[j])*(1-frac) + float64(samples[j+1])*frac)
	}
	return out
}
