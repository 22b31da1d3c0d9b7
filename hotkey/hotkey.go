// Package hotkey turns a global key combination into dictation trigger
// signals.
package hotkey

import (
	"fmt"
	"strings"
)

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Combo is a modifier set plus one key. The zero value is invalid; use
// ParseCombo or DefaultCombo.
type Combo struct {
	Ctrl  bool
	Shift bool
	Alt   bool
	Key   string
}

// DefaultCombo is Ctrl+Shift+Space.
func DefaultCombo() Combo {
	return Combo{Ctrl: true, Shift: true, Key: "space"}
}

// ParseCombo reads bindings like "ctrl+shift+space" or "ctrl+alt+d".
// Exactly one non-modifier key is required.
func ParseCombo(s string) (Combo, error) {
	var c Combo
	for _, part := range strings.Split(strings.ToLower(s), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "ctrl", "control":
			c.Ctrl = true
		case "shift":
			c.Shift = true
		case "alt":
			c.Alt = true
		case "":
			return Combo{}, fmt.Errorf("empty key in binding %q", s)
		default:
			if c.Key != "" {
				return Combo{}, fmt.Errorf("binding %q has more than one key", s)
			}
			c.Key = part
		}
	}
	if c.Key == "" {
		return Combo{}, fmt.Errorf("binding %q has no key", s)
	}
	if !c.Ctrl && !c.Shift && !c.Alt {
		return Combo{}, fmt.Errorf("binding %q needs at least one modifier", s)
	}
	if _, err := keyCode(c.Key); err != nil {
		return Combo{}, err
	}
	return c, nil
}

func (c Combo) String() string {
	var parts []string
	if c.Ctrl {
		parts = append(parts, "ctrl")
	}
	if c.Shift {
		parts = append(parts, "shift")
	}
	if c.Alt {
		parts = append(parts, "alt")
	}
	parts = append(parts, c.Key)
	return strings.Join(parts, "+")
}
