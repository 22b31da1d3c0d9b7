package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	cb "github.com/atotto/clipboard"

	"murmur/capture"
	"murmur/config"
	"murmur/cue"
	"murmur/doctor"
	"murmur/history"
	"murmur/hotkey"
	"murmur/inject"
	"murmur/log"
	"murmur/model"
	"murmur/pipeline"
	"murmur/shutdown"
	"murmur/transcribe"
)

var version = "dev"

var shutdownOnce sync.Once

// runsMu guards the counters shared between the recorder callback and
// shutdown.
var (
	runsMu   sync.Mutex
	runCount int
	lastText string
)

func gracefulShutdown() {
	shutdownOnce.Do(func() {
		runsMu.Lock()
		n := runCount
		runsMu.Unlock()
		if n > 0 {
			log.SessionEnd(n)
		}
		log.Close()
		tuiMu.Lock()
		p := tuiProgram
		tuiMu.Unlock()
		if p != nil {
			p.Quit()
		}
		os.Exit(0)
	})
}

func deviceLineText(dev *capture.DeviceDescriptor) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if capture.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}

func run() {
	configFlag := flag.String("config", "", "Config file path (YAML)")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses config or system default)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	hotkeyFlag := flag.String("hotkey", "", "Trigger key combo (e.g. ctrl+shift+space)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	copyLastFlag := flag.Bool("copylast", false, "Copy the last dictation to the clipboard and exit")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	testFlag := flag.Bool("test", false, "Test mode (headless, stdin-driven)")
	tuiFlag := flag.Bool("tui", true, "Run with terminal UI")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Resolve log directory early: flag wins over config, config over the
	// OS default.
	logDirFlag := *logPathFlag
	if logDirFlag == "" {
		logDirFlag = cfg.Log.Dir
	}
	logPath, err := log.ResolveDir(logDirFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	if *versionFlag {
		fmt.Printf("murmur %s\n", version)
		os.Exit(0)
	}

	if *doctorFlag {
		os.Exit(doctor.Run(cfg.Model.Dir))
	}

	if *copyLastFlag {
		os.Exit(copyLast(cfg))
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	log.SessionStart(cfg.Model.Size, cfg.Transcribe.PerformanceMode)

	// Resolve the model size once; auto-pick degrades to a smaller model on
	// memory-constrained machines.
	size := model.Size(cfg.Model.Size)
	if cfg.Model.AutoPick {
		size = model.RecommendForMemory(availableMemory())
		log.Info("model_auto_pick: " + string(size))
	}

	models := model.NewManager(cfg.Model.Dir)
	modelPath, err := models.EnsureAvailable(context.Background(), size)
	if err != nil {
		log.Errorf("model download error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: model %s unavailable: %v\n", size, err)
		os.Exit(1)
	}
	log.Info("model_ready: " + modelPath)

	if *testFlag {
		args := flag.Args()
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: murmur -test <wav-file>")
			os.Exit(1)
		}
		runTestMode(args[0], cfg, models, size)
		return
	}

	actx, err := capture.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio context: %v\n", err)
		os.Exit(1)
	}
	defer actx.Close()

	selectedDevice := resolveDevice(actx, cfg.Audio.Device, *deviceFlag, *setupFlag)

	capSvc := capture.NewService(actx, selectedDevice, capture.Options{
		OnLevel: func(rms float64) { tuiSend(levelMsg(rms)) },
		OnSilence: func(ev capture.SilenceEvent) {
			switch ev {
			case capture.SilenceWarn, capture.SilenceRepeat:
				log.Info("no_voice_warning")
				cue.Play(cue.Failure)
			case capture.SilenceWarnClear:
				log.Info("voice_resumed")
			}
			tuiSend(silenceMsg(ev))
		},
	})

	engine := transcribe.NewWhisperEngine(models)
	defer engine.Close()

	injSvc := inject.NewService(inject.NewPlatformSender(), inject.WithRunOnMain(injectDispatch()))
	defer injSvc.Close()

	var hist *history.Store
	if hist, err = history.Open(context.Background(), cfg.History.Path, cfg.History.MaxEntries); err != nil {
		log.Warnf("history unavailable: %v", err)
		hist = nil
	} else {
		defer hist.Close()
	}

	orch := pipeline.New(capSvc, engine, injSvc,
		func() pipeline.Config { return pipelineConfig(cfg, size) },
		pipeline.WithRecorder(func(rec pipeline.RunRecord) { recordRun(hist, rec) }),
	)

	go statusLoop(orch.Status())

	if !*tuiFlag {
		tuiReadyOnce.Do(func() { close(tuiReady) })
	} else {
		tuiMu.Lock()
		tuiProgram = NewTUIProgram()
		tuiMu.Unlock()
		go func() {
			if _, err := tuiProgram.Run(); err != nil {
				log.Errorf("TUI error: %v", err)
				os.Exit(1)
			}
			gracefulShutdown()
		}()
		<-tuiReady
	}

	combo := hotkey.DefaultCombo()
	if *hotkeyFlag != "" {
		if combo, err = hotkey.ParseCombo(*hotkeyFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	trig := hotkey.NewTrigger(hotkey.New(combo), hotkey.DefaultDebounce, orch.Trigger)
	if err := trig.Start(); err != nil {
		log.Errorf("hotkey register error: %v", err)
		fmt.Fprintf(os.Stderr, "Error registering hotkey %s: %v\n", combo, err)
		os.Exit(1)
	}
	defer trig.Stop()

	tuiSend(modeLineMsg(fmt.Sprintf("[%s | %s | %s]", size, cfg.Transcribe.PerformanceMode, languageLabel(cfg))))
	tuiSend(deviceLineMsg(deviceLineText(selectedDevice)))
	tuiSend(hotkeyLineMsg(combo.String() + " to dictate"))

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	<-sigChan
	gracefulShutdown()
}

func languageLabel(cfg config.Config) string {
	if cfg.Transcribe.Language == "" {
		return "auto"
	}
	return cfg.Transcribe.Language
}

func pipelineConfig(cfg config.Config, size model.Size) pipeline.Config {
	return pipeline.Config{
		MaxDuration:      time.Duration(cfg.Audio.MaxDurationSecs) * time.Second,
		Model:            size,
		Language:         cfg.Transcribe.Language,
		Mode:             transcribe.PerformanceMode(cfg.Transcribe.PerformanceMode),
		TypingSpeed:      cfg.Inject.TypingSpeed,
		InjectionTimeout: time.Duration(cfg.Inject.TimeoutMS) * time.Millisecond,
	}
}

// statusLoop fans pipeline transitions out to the diagnostics log, the audio
// cues, and the TUI.
func statusLoop(status <-chan pipeline.Status) {
	for st := range status {
		log.PipelineStage(string(st.Stage), st.Detail)
		switch st.Stage {
		case pipeline.StageCapturing:
			cue.Play(cue.Listening)
		case pipeline.StageTranscribing:
			cue.Play(cue.Done)
		case pipeline.StageFailed:
			cue.Play(cue.Failure)
		}
		tuiSend(stageMsg(st))
	}
}

func recordRun(hist *history.Store, rec pipeline.RunRecord) {
	runsMu.Lock()
	runCount++
	lastText = rec.Text
	runsMu.Unlock()

	if rec.Text != "" {
		log.TranscriptText(rec.Text)
	}
	tuiSend(transcriptMsg{Text: rec.Text, Injected: rec.Injected})

	if hist == nil || rec.Text == "" {
		return
	}
	err := hist.Append(context.Background(), history.Entry{
		SessionID: rec.SessionID,
		Text:      rec.Text,
		Language:  rec.Language,
		Model:     string(rec.Model),
		AudioMS:   rec.AudioDuration.Milliseconds(),
		ProcessMS: rec.ProcessingTime.Milliseconds(),
		Chars:     rec.Injected,
		CreatedAt: rec.Completed,
	})
	if err != nil {
		log.Warnf("history append error: %v", err)
	}
}

// resolveDevice applies, in order: explicit flag, interactive picker, config
// name. Unknown names fall back to the system default with a warning.
func resolveDevice(actx capture.Context, cfgName, flagName string, setup bool) *capture.DeviceDescriptor {
	if setup {
		dev, err := selectDevice(actx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
			return nil
		}
		return dev
	}
	name := flagName
	if name == "" {
		name = cfgName
	}
	if name == "" {
		return nil
	}
	devices, err := actx.Devices()
	if err != nil {
		log.Warnf("device enumeration failed: %v", err)
		return nil
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i]
		}
	}
	log.Warnf("device not found, using default: %s", name)
	return nil
}

func copyLast(cfg config.Config) int {
	hist, err := history.Open(context.Background(), cfg.History.Path, cfg.History.MaxEntries)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer hist.Close()

	entry, err := hist.Last(context.Background())
	if err != nil {
		if err == history.ErrEmpty {
			fmt.Println("No dictations yet.")
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := cb.WriteAll(entry.Text); err != nil {
		fmt.Fprintf(os.Stderr, "Error: clipboard write failed: %v\n", err)
		return 1
	}
	fmt.Println(entry.Text)
	return 0
}
