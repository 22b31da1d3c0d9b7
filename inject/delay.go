package inject

import (
	"time"
	"unicode"
)

// Base per-character delays at speed 1.0. Spaces are cheapest since word
// boundaries dominate dictated text; newlines are slowest to give target
// applications time to react to line commits.
const (
	delaySpace   = 8 * time.Millisecond
	delayAlnum   = 12 * time.Millisecond
	delayOther   = 18 * time.Millisecond
	delayNewline = 30 * time.Millisecond
)

const (
	minSpeed = 0.25
	maxSpeed = 4.0
)

// delayFor returns the pause after emitting r. speed divides the base delay,
// so 2.0 types twice as fast.
func delayFor(r rune, speed float64) time.Duration {
	var base time.Duration
	switch {
	case r == '\n' || r == '\r':
		base = delayNewline
	case r == ' ' || r == '\t':
		base = delaySpace
	case unicode.IsLetter(r) || unicode.IsDigit(r):
		base = delayAlnum
	default:
		base = delayOther
	}
	return time.Duration(float64(base) / clampSpeed(speed))
}

func clampSpeed(speed float64) float64 {
	if speed == 0 {
		return 1
	}
	if speed < minSpeed {
		return minSpeed
	}
	if speed > maxSpeed {
		return maxSpeed
	}
	return speed
}
