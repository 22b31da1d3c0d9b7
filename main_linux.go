//go:build linux

package main

import "murmur/inject"

func main() {
	run()
}

// uinput writes have no thread affinity, so key events run directly on the
// injector goroutine.
func injectDispatch() inject.RunOnMain {
	return nil
}
