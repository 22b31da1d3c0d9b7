package inject

import "sync"

// FakeSender records every delivered rune. FailAfter > 0 makes delivery
// fail once that many runes have been accepted.
type FakeSender struct {
	FailAfter int
	FailWith  error

	mu     sync.Mutex
	runes  []rune
	pastes int
}

func (f *FakeSender) TapRune(r rune) error {
	return f.accept(r, false)
}

func (f *FakeSender) PasteText(text string) error {
	for _, r := range text {
		if err := f.accept(r, true); err != nil {
			return err
		}
	}
	return nil
}

func (f *FakeSender) accept(r rune, pasted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailAfter > 0 && len(f.runes) >= f.FailAfter {
		err := f.FailWith
		if err == nil {
			err = ErrSystem
		}
		return err
	}
	f.runes = append(f.runes, r)
	if pasted {
		f.pastes++
	}
	return nil
}

// Typed returns everything delivered so far, in order.
func (f *FakeSender) Typed() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.runes)
}

// Pastes counts runes that went through the clipboard path.
func (f *FakeSender) Pastes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pastes
}
