//go:build linux

package inject

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	cb "github.com/atotto/clipboard"
)

// ioctl constants from linux/uinput.h
const (
	uiSetEvbit  = 0x40045564 // UI_SET_EVBIT
	uiSetKeybit = 0x40045565 // UI_SET_KEYBIT
	uiDevCreate = 0x5501     // UI_DEV_CREATE
)

// input event types from linux/input-event-codes.h
const (
	evSyn = 0x00
	evKey = 0x01
)

const (
	busUSB    = 0x03
	keyCtrl   = 29
	keyShift  = 42
	keyV      = 47
	deviceTag = "murmur-kbd"
)

type inputEvent struct {
	Time  syscall.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

type uinputUserDev struct {
	Name         [80]byte
	ID           inputID
	FfEffectsMax uint32
	Absmax       [64]int32
	Absmin       [64]int32
	Absfuzz      [64]int32
	Absflat      [64]int32
}

// uinputSender types through a virtual keyboard registered with the kernel
// input layer. The device is created lazily on first use and kept open for
// the process lifetime.
type uinputSender struct {
	once sync.Once
	fd   *os.File
	err  error
}

// NewPlatformSender returns the Linux keystroke backend.
func NewPlatformSender() Sender {
	return &uinputSender{}
}

func (u *uinputSender) init() error {
	u.once.Do(func() {
		u.fd, u.err = openUinput()
	})
	return u.err
}

func openUinput() (*os.File, error) {
	path := "/dev/uinput"
	if _, err := os.Stat(path); err != nil {
		path = "/dev/input/uinput"
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: uinput device not found, try: sudo modprobe uinput", ErrSystem)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, os.ModeDevice)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s not writable", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrSystem, err)
	}
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), uiSetEvbit, evKey); errno != 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrSystem, errno)
	}
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), uiSetEvbit, evSyn); errno != 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrSystem, errno)
	}
	// Register all standard keys so udev classifies this as a keyboard
	for i := uintptr(0); i < 256; i++ {
		if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), uiSetKeybit, i); errno != 0 {
			f.Close()
			return nil, fmt.Errorf("%w: %v", ErrSystem, errno)
		}
	}
	dev := uinputUserDev{}
	copy(dev.Name[:], deviceTag)
	dev.ID.Bustype = busUSB
	dev.ID.Vendor = 0x1209
	dev.ID.Product = 0x6d75
	dev.ID.Version = 1
	if err := binary.Write(f, binary.LittleEndian, &dev); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrSystem, err)
	}
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), uiDevCreate, 0); errno != 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrSystem, errno)
	}
	// Give compositor time to recognize the new input device
	time.Sleep(200 * time.Millisecond)
	return f, nil
}

func (u *uinputSender) TapRune(r rune) error {
	if err := u.init(); err != nil {
		return err
	}
	code, shift, ok := charToKey(byte(r))
	if !ok {
		// ASCII with no evdev mapping goes through the clipboard.
		return u.PasteText(string(r))
	}
	return u.keyTap(code, shift)
}

func (u *uinputSender) PasteText(text string) error {
	if err := u.init(); err != nil {
		return err
	}
	if err := cb.WriteAll(text); err != nil {
		return fmt.Errorf("%w: clipboard write: %v", ErrSystem, err)
	}
	return u.pasteChord()
}

func (u *uinputSender) pasteChord() error {
	steps := []struct {
		code  uint16
		value int32
	}{
		{keyCtrl, 1}, {keyV, 1}, {keyV, 0}, {keyCtrl, 0},
	}
	for i, st := range steps {
		if err := u.writeEvent(evKey, st.code, st.value); err != nil {
			return err
		}
		if err := u.syn(); err != nil {
			return err
		}
		if i < len(steps)-1 {
			// Let the compositor register modifier state
			time.Sleep(5 * time.Millisecond)
		}
	}
	return nil
}

func (u *uinputSender) keyTap(code uint16, shift bool) error {
	if shift {
		if err := u.writeEvent(evKey, keyShift, 1); err != nil {
			return err
		}
		if err := u.syn(); err != nil {
			return err
		}
	}
	if err := u.writeEvent(evKey, code, 1); err != nil {
		return err
	}
	if err := u.syn(); err != nil {
		return err
	}
	if err := u.writeEvent(evKey, code, 0); err != nil {
		return err
	}
	if err := u.syn(); err != nil {
		return err
	}
	if shift {
		if err := u.writeEvent(evKey, keyShift, 0); err != nil {
			return err
		}
		if err := u.syn(); err != nil {
			return err
		}
	}
	return nil
}

func (u *uinputSender) writeEvent(typ, code uint16, value int32) error {
	ev := inputEvent{Type: typ, Code: code, Value: value}
	if err := binary.Write(u.fd, binary.LittleEndian, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrSystem, err)
	}
	return nil
}

func (u *uinputSender) syn() error {
	return u.writeEvent(evSyn, 0, 0)
}
