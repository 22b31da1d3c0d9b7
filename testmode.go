package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"murmur/capture"
	"murmur/config"
	"murmur/cue"
	"murmur/inject"
	"murmur/log"
	"murmur/model"
	"murmur/pipeline"
	"murmur/transcribe"
)

// echoSender collects synthetic keystrokes instead of delivering them to a
// focused window, so test mode never needs uinput or an X session.
type echoSender struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (e *echoSender) TapRune(r rune) error {
	e.mu.Lock()
	e.buf.WriteRune(r)
	e.mu.Unlock()
	return nil
}

func (e *echoSender) PasteText(text string) error {
	e.mu.Lock()
	e.buf.WriteString(text)
	e.mu.Unlock()
	return nil
}

func (e *echoSender) take() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.buf.String()
	e.buf.Reset()
	return out
}

// runTestMode drives the full pipeline headless from stdin commands, with the
// WAV file replayed as the microphone. Output lines (STAGE/TEXT/TYPED) are
// machine-parseable for harness scripts.
//
// Commands: TRIGGER, WAIT_IDLE, SLEEP <ms>, QUIT.
func runTestMode(wavPath string, cfg config.Config, models *model.Manager, size model.Size) {
	cue.Disable()

	fakeCtx, err := capture.NewFakeContextFromWAV(wavPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		os.Exit(1)
	}

	capSvc := capture.NewService(fakeCtx, nil, capture.Options{})
	engine := transcribe.NewWhisperEngine(models)
	defer engine.Close()

	sender := &echoSender{}
	injSvc := inject.NewService(sender)
	defer injSvc.Close()

	idleCh := make(chan struct{}, 1)
	orch := pipeline.New(capSvc, engine, injSvc,
		func() pipeline.Config { return pipelineConfig(cfg, size) },
		pipeline.WithRecorder(func(rec pipeline.RunRecord) {
			runsMu.Lock()
			runCount++
			runsMu.Unlock()
			fmt.Printf("TEXT %s\n", rec.Text)
			fmt.Printf("TYPED %s\n", sender.take())
		}),
	)

	go func() {
		active := false
		for st := range orch.Status() {
			fmt.Printf("STAGE %s %s\n", st.Stage, st.Detail)
			log.PipelineStage(string(st.Stage), st.Detail)
			switch {
			case st.Stage != pipeline.StageIdle:
				active = true
			case active:
				active = false
				select {
				case idleCh <- struct{}{}:
				default:
				}
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch {
		case cmd == "TRIGGER":
			orch.Trigger()
		case cmd == "WAIT_IDLE":
			<-idleCh
		case cmd == "QUIT":
			gracefulShutdown()
		case strings.HasPrefix(cmd, "SLEEP "):
			if ms, err := strconv.Atoi(cmd[6:]); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case cmd == "":
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		}
	}
	gracefulShutdown()
}
