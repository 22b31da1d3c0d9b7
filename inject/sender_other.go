//go:build !linux

package inject

import (
	"fmt"
	"sync"

	cb "github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
)

// keybdSender drives keybd_event for the keys it can express directly and
// falls back to a clipboard paste chord for everything else. On macOS the
// paste chord is Cmd+V, elsewhere Ctrl+V.
type keybdSender struct {
	once sync.Once
	kb   keybd_event.KeyBonding
	err  error
}

// NewPlatformSender returns the keystroke backend for this platform.
func NewPlatformSender() Sender {
	return &keybdSender{}
}

func (k *keybdSender) init() error {
	k.once.Do(func() {
		k.kb, k.err = keybd_event.NewKeyBonding()
		if k.err != nil {
			k.err = fmt.Errorf("%w: %v", ErrPermissionDenied, k.err)
		}
	})
	return k.err
}

var vkLetters = [26]int{
	keybd_event.VK_A, keybd_event.VK_B, keybd_event.VK_C, keybd_event.VK_D,
	keybd_event.VK_E, keybd_event.VK_F, keybd_event.VK_G, keybd_event.VK_H,
	keybd_event.VK_I, keybd_event.VK_J, keybd_event.VK_K, keybd_event.VK_L,
	keybd_event.VK_M, keybd_event.VK_N, keybd_event.VK_O, keybd_event.VK_P,
	keybd_event.VK_Q, keybd_event.VK_R, keybd_event.VK_S, keybd_event.VK_T,
	keybd_event.VK_U, keybd_event.VK_V, keybd_event.VK_W, keybd_event.VK_X,
	keybd_event.VK_Y, keybd_event.VK_Z,
}

var vkDigits = [10]int{
	keybd_event.VK_0, keybd_event.VK_1, keybd_event.VK_2, keybd_event.VK_3,
	keybd_event.VK_4, keybd_event.VK_5, keybd_event.VK_6, keybd_event.VK_7,
	keybd_event.VK_8, keybd_event.VK_9,
}

func vkFor(r rune) (code int, shift bool, ok bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return vkLetters[r-'a'], false, true
	case r >= 'A' && r <= 'Z':
		return vkLetters[r-'A'], true, true
	case r >= '0' && r <= '9':
		return vkDigits[r-'0'], false, true
	case r == ' ':
		return keybd_event.VK_SPACE, false, true
	case r == '\n':
		return keybd_event.VK_ENTER, false, true
	case r == '\t':
		return keybd_event.VK_TAB, false, true
	}
	return 0, false, false
}

func (k *keybdSender) TapRune(r rune) error {
	if err := k.init(); err != nil {
		return err
	}
	code, shift, ok := vkFor(r)
	if !ok {
		// Punctuation VK codes differ per layout; the clipboard is exact.
		return k.PasteText(string(r))
	}
	k.kb.Clear()
	k.kb.SetKeys(code)
	k.kb.HasSHIFT(shift)
	if err := k.kb.Launching(); err != nil {
		return fmt.Errorf("%w: %v", ErrSystem, err)
	}
	return nil
}

func (k *keybdSender) PasteText(text string) error {
	if err := k.init(); err != nil {
		return err
	}
	if err := cb.WriteAll(text); err != nil {
		return fmt.Errorf("%w: clipboard write: %v", ErrSystem, err)
	}
	k.kb.Clear()
	k.kb.SetKeys(keybd_event.VK_V)
	pasteModifier(&k.kb)
	if err := k.kb.Launching(); err != nil {
		return fmt.Errorf("%w: %v", ErrSystem, err)
	}
	return nil
}
