//go:build !linux

package main

import (
	"runtime"

	"golang.design/x/hotkey/mainthread"

	"murmur/inject"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	// Hotkey registration and synthetic key events both need the main
	// thread on macOS and Windows; mainthread owns it for the process
	// lifetime and run() executes inside it.
	mainthread.Init(run)
}

func injectDispatch() inject.RunOnMain {
	return func(fn func()) { mainthread.Call(fn) }
}
