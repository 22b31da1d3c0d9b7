package hotkey

// FakeHotkey drives the trigger path in tests without OS key grabbing.
// Channels are buffered so Sim* never blocks the test goroutine.
type FakeHotkey struct {
	keydown chan struct{}
	keyup   chan struct{}

	registered bool
}

func NewFake() *FakeHotkey {
	return &FakeHotkey{
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
	}
}

func (f *FakeHotkey) Register() error { f.registered = true; return nil }
func (f *FakeHotkey) Unregister()     { f.registered = false }

// Registered reports whether the trigger currently holds the binding.
func (f *FakeHotkey) Registered() bool { return f.registered }

func (f *FakeHotkey) Keydown() <-chan struct{} { return f.keydown }
func (f *FakeHotkey) Keyup() <-chan struct{}   { return f.keyup }

func (f *FakeHotkey) SimKeydown() { f.keydown <- struct{}{} }
func (f *FakeHotkey) SimKeyup()   { f.keyup <- struct{}{} }
