// Package doctor runs interactive end-to-end checks of everything dictation
// needs from the host: global hotkey delivery, microphone capture, downloaded
// whisper models, and synthetic keystroke output.
package doctor

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"murmur/capture"
	"murmur/hotkey"
	"murmur/inject"
	"murmur/model"
)

// Run executes the checks in order and returns an exit code (0=all pass,
// 1=any fail). Later checks are skipped once one fails; a broken microphone
// makes the injection check meaningless.
func Run(modelDir string) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("murmur doctor - interactive system diagnostics")
	fmt.Println("==============================================")

	allPass := true

	if !checkHotkey() {
		allPass = false
	}
	if allPass && !checkMicrophone() {
		allPass = false
	}
	if allPass && !checkModels(modelDir) {
		allPass = false
	}
	if allPass && !checkInjection() {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func checkHotkey() bool {
	fmt.Println()
	fmt.Println("[1/4] Hotkey detection")

	if diag, err := hotkey.Diagnose(); err != nil {
		fmt.Printf("  Note: %v\n", err)
	} else if diag != "" {
		fmt.Printf("  %s\n", diag)
	}

	combo := hotkey.DefaultCombo()
	fmt.Printf("Press %s...\n", combo)

	hk := hotkey.New(combo)
	if err := hk.Register(); err != nil {
		fmt.Printf("  FAIL: could not register hotkey: %v\n", err)
		return false
	}
	defer hk.Unregister()

	select {
	case <-hk.Keydown():
		fmt.Println("  PASS: hotkey detected")
		// Wait for keyup to avoid leaking the release into later prompts
		select {
		case <-hk.Keyup():
		case <-time.After(5 * time.Second):
		}
		resetTerminal()
		return true
	case <-time.After(10 * time.Second):
		fmt.Println("  FAIL: timeout waiting for hotkey")
		return false
	}
}

func checkMicrophone() bool {
	fmt.Println()
	fmt.Println("[2/4] Microphone capture")

	reader := bufio.NewReader(os.Stdin)

	ctx, err := capture.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return false
	}
	defer ctx.Close()

	devices, err := ctx.Devices()
	if err != nil {
		fmt.Printf("  FAIL: cannot list devices: %v\n", err)
		return false
	}
	if len(devices) == 0 {
		fmt.Println("  FAIL: no capture devices found")
		return false
	}

	var device *capture.DeviceDescriptor
	if len(devices) == 1 {
		device = &devices[0]
		fmt.Printf("Using device: %s\n", device.Name)
	} else {
		fmt.Println()
		fmt.Println("Select input device:")
		for i, d := range devices {
			fmt.Printf("  %d. %s\n", i+1, d.Name)
		}
		fmt.Printf("Choice [1-%d]: ", len(devices))

		choice, _ := reader.ReadString('\n')
		choice = strings.TrimSpace(choice)
		idx := 0
		if choice != "" {
			fmt.Sscanf(choice, "%d", &idx)
			idx--
		}
		if idx < 0 || idx >= len(devices) {
			fmt.Println("  FAIL: invalid choice")
			return false
		}
		device = &devices[idx]
		fmt.Printf("Selected: %s\n", device.Name)
	}

	fmt.Println()
	fmt.Print("Press Enter and speak for 3 seconds...")
	reader.ReadString('\n')

	samples, err := recordFor(ctx, device, 3*time.Second)
	if err != nil {
		fmt.Printf("  FAIL: recording error: %v\n", err)
		return false
	}
	if len(samples) == 0 {
		fmt.Println("  FAIL: no audio captured")
		return false
	}

	rms := rmsOf(samples)
	fmt.Printf("  Captured %.1fs of audio, RMS level %.3f\n",
		float64(len(samples))/float64(capture.SampleRate), rms)
	if rms < 0.001 {
		fmt.Println("  FAIL: signal is flat silence; check microphone mute or permission")
		return false
	}
	fmt.Println("  PASS: microphone delivers a live signal")
	return true
}

func recordFor(ctx capture.Context, device *capture.DeviceDescriptor, d time.Duration) ([]int16, error) {
	dev, err := ctx.NewCapture(device, capture.StreamSpec{
		Format:     capture.FormatS16LE,
		SampleRate: capture.SampleRate,
		Channels:   1,
	})
	if err != nil {
		return nil, err
	}
	defer dev.Close()

	var mu sync.Mutex
	var samples []int16
	spec := dev.Spec()

	dev.SetCallback(func(data []byte, _ uint32) {
		pcm, err := capture.Normalize(data, spec)
		if err != nil {
			return
		}
		mu.Lock()
		samples = append(samples, pcm...)
		mu.Unlock()
	})
	defer dev.ClearCallback()

	if err := dev.Start(); err != nil {
		return nil, err
	}

	fmt.Print("  Recording")
	ticker := time.NewTicker(500 * time.Millisecond)
	timeout := time.After(d)
loop:
	for {
		select {
		case <-ticker.C:
			fmt.Print(".")
		case <-timeout:
			break loop
		}
	}
	ticker.Stop()
	dev.Stop()
	fmt.Println(" done")

	mu.Lock()
	defer mu.Unlock()
	return samples, nil
}

func rmsOf(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func checkModels(dir string) bool {
	fmt.Println()
	fmt.Println("[3/4] Whisper models")
	fmt.Printf("Model directory: %s\n", dir)

	mgr := model.NewManager(dir)
	found := 0
	for _, d := range model.Catalog() {
		path, err := mgr.Path(d.Size)
		if err != nil {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		found++
		status := "present"
		if info.Size() != d.ByteSize {
			status = fmt.Sprintf("SIZE MISMATCH (%d != %d bytes)", info.Size(), d.ByteSize)
		}
		fmt.Printf("  %-8s %s\n", d.Size, status)
	}

	if found == 0 {
		fmt.Println("  Note: no models downloaded yet; the first run downloads one")
	}
	fmt.Println("  PASS: model directory accessible")
	return true
}

func checkInjection() bool {
	fmt.Println()
	fmt.Println("[4/4] Keystroke injection")

	sender := inject.NewPlatformSender()

	fmt.Println("Focus on a text editor window...")
	for i := 5; i > 0; i-- {
		fmt.Printf("  %d...\n", i)
		time.Sleep(1 * time.Second)
	}

	const probe = "murmur doctor test\n"
	for _, r := range probe {
		if err := sender.TapRune(r); err != nil {
			fmt.Printf("  FAIL: %v\n", err)
			if strings.Contains(err.Error(), "permission") {
				fmt.Println("  Fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput")
			}
			return false
		}
		time.Sleep(15 * time.Millisecond)
	}

	resetTerminal()
	confirmReader := bufio.NewReader(os.Stdin)
	fmt.Println()
	fmt.Print("Did the text \"murmur doctor test\" appear? [y/n]: ")
	confirm, _ := confirmReader.ReadString('\n')
	confirm = strings.TrimSpace(strings.ToLower(confirm))

	if confirm != "y" && confirm != "yes" {
		fmt.Println("  FAIL: keystroke output not confirmed")
		return false
	}
	fmt.Println("  PASS: keystroke output verified by user")
	return true
}
