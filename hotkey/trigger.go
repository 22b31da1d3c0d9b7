package hotkey

import (
	"sync"
	"time"
)

// DefaultDebounce suppresses key-repeat storms from held combos.
const DefaultDebounce = 250 * time.Millisecond

// Trigger forwards each distinct press of the registered combo as one
// activation signal. Releases are ignored; the trigger itself is stateful
// downstream (start, then stop), so a press is always just "activate".
type Trigger struct {
	hk       Hotkey
	fire     func()
	debounce time.Duration
	stop     chan struct{}
	once     sync.Once
}

func NewTrigger(hk Hotkey, debounce time.Duration, fire func()) *Trigger {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Trigger{
		hk:       hk,
		fire:     fire,
		debounce: debounce,
		stop:     make(chan struct{}),
	}
}

func (t *Trigger) Start() error {
	if err := t.hk.Register(); err != nil {
		return err
	}
	go t.loop()
	return nil
}

func (t *Trigger) loop() {
	var last time.Time
	for {
		select {
		case <-t.stop:
			return
		case <-t.hk.Keydown():
			now := time.Now()
			if now.Sub(last) < t.debounce {
				continue
			}
			last = now
			t.fire()
		case <-t.hk.Keyup():
			// drained so a slow consumer never sees stale releases
		}
	}
}

func (t *Trigger) Stop() {
	t.once.Do(func() {
		close(t.stop)
		t.hk.Unregister()
	})
}
