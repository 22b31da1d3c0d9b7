package transcribe

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"murmur/model"
)

// langConfidenceFloor is the detection confidence below which an
// auto-detected language is considered ambiguous and English is used.
const langConfidenceFloor = 0.5

// WhisperEngine runs whisper.cpp inference. Residency is lazy: the first
// request for a size loads it, later requests with the same size reuse the
// loaded context, and a size switch swaps through the single slot.
type WhisperEngine struct {
	models *model.Manager
	slot   slot

	// availableMemory, when set, gates loads against the catalog's resident
	// footprint. Nil skips the check.
	availableMemory func() int64
}

type WhisperOption func(*WhisperEngine)

// WithMemoryProbe installs the free-memory source used to refuse loads that
// cannot fit.
func WithMemoryProbe(probe func() int64) WhisperOption {
	return func(e *WhisperEngine) { e.availableMemory = probe }
}

func NewWhisperEngine(models *model.Manager, opts ...WhisperOption) *WhisperEngine {
	e := &WhisperEngine{models: models}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *WhisperEngine) Transcribe(ctx context.Context, req Request) (Result, error) {
	if len(req.Samples) == 0 {
		return Result{}, fmt.Errorf("%w: empty sample buffer", ErrInvalidAudioFormat)
	}
	if !ValidMode(req.Mode) {
		req.Mode = ModeBalanced
	}

	desc, err := model.Lookup(req.Model)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrModelNotLoaded, err)
	}

	handle, err := e.slot.acquire(req.Model, func() (io.Closer, error) {
		return e.load(desc)
	})
	if err != nil {
		return Result{}, err
	}
	m := handle.(whisper.Model)

	wctx, err := m.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrProcessingFailed, err)
	}

	lang := req.Language
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		// Model without multilingual support: run in English.
		lang = "en"
		if err := wctx.SetLanguage(lang); err != nil {
			return Result{}, fmt.Errorf("%w: set language: %v", ErrProcessingFailed, err)
		}
	}
	wctx.SetTranslate(false)
	applyMode(wctx, req.Mode)

	samples := toFloat32(req.Samples)

	start := time.Now()
	encoderBegin := func() bool {
		// Abort point for pipeline-level timeouts: returning false discards
		// all partially computed output.
		return ctx.Err() == nil
	}
	if err := wctx.Process(samples, encoderBegin, nil, nil); err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		}
		return Result{}, fmt.Errorf("%w: %v", ErrProcessingFailed, err)
	}
	if ctx.Err() != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}

	res := collectSegments(wctx)
	res.ProcessingTime = time.Since(start)
	res.Model = req.Model
	res.Language, res.LanguageConfidence = resolveLanguage(wctx, req.Language, res.Confidence)
	return res, nil
}

func (e *WhisperEngine) load(desc model.Descriptor) (io.Closer, error) {
	path, err := e.models.Path(desc.Size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelNotLoaded, err)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s not on disk", ErrModelNotLoaded, desc.FileName)
	}
	if e.availableMemory != nil && e.availableMemory() < desc.ResidentBytes {
		return nil, fmt.Errorf("%w: %s needs ~%d MiB", ErrInsufficientMemory, desc.Size, desc.ResidentBytes>>20)
	}

	m, err := whisper.New(path)
	if err != nil {
		if strings.Contains(err.Error(), "alloc") {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientMemory, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrModelNotLoaded, err)
	}
	return m, nil
}

// Resident reports the loaded model size, empty when none.
func (e *WhisperEngine) Resident() model.Size {
	return e.slot.resident()
}

func (e *WhisperEngine) Close() error {
	return e.slot.close()
}

func applyMode(wctx whisper.Context, mode PerformanceMode) {
	threads := runtime.NumCPU()
	if threads > 8 {
		threads = 8
	}
	wctx.SetThreads(uint(threads))
	switch mode {
	case ModeSpeed:
		wctx.SetBeamSize(1)
	case ModeAccuracy:
		wctx.SetBeamSize(8)
	default:
		wctx.SetBeamSize(3)
	}
}

func collectSegments(wctx whisper.Context) Result {
	var res Result
	var parts []string
	var probSum float64
	var probCount int

	for {
		seg, err := wctx.NextSegment()
		if err != nil {
			break // io.EOF ends the segment stream
		}
		var segProb float64
		for _, tok := range seg.Tokens {
			segProb += float64(tok.P)
		}
		segConf := 0.0
		if len(seg.Tokens) > 0 {
			segConf = segProb / float64(len(seg.Tokens))
			probSum += segProb
			probCount += len(seg.Tokens)
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		res.Segments = append(res.Segments, Segment{
			Text:       text,
			Start:      seg.Start,
			End:        seg.End,
			Confidence: segConf,
		})
	}

	res.Text = strings.Join(parts, " ")
	if probCount > 0 {
		res.Confidence = probSum / float64(probCount)
	}
	return res
}

func resolveLanguage(wctx whisper.Context, explicit string, confidence float64) (string, float64) {
	if explicit != "" {
		return explicit, 1
	}
	detected := wctx.DetectedLanguage()
	if detected == "" || confidence < langConfidenceFloor {
		// Ambiguous detection: default to English rather than failing.
		return "en", confidence
	}
	return detected, confidence
}

func toFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}
