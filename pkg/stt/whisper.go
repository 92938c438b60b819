// Package stt wraps whisper.cpp for offline speech recognition.
package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"homevox/pkg/audioconv"
)

type Options struct {
	Language      string // e.g. "auto", "ko", "en"
	Threads       int    // <=0 => NumCPU()
	BeamSize      int    // 0 = greedy; >0 enables beam search
	InitialPrompt string // optional prefix prompt
}

// withDefaults fills the zero values whisper cannot take as is.
func (o Options) withDefaults() Options {
	if o.Language == "" {
		o.Language = "auto"
	}
	if o.Threads <= 0 {
		o.Threads = runtime.NumCPU()
	}
	return o
}

type Result struct {
	Text     string
	Language string // detected or forced
}

type Transcriber struct {
	mu       sync.Mutex
	model    whisper.Model // interface, not pointer
	defaults Options
}

// DefaultOptions detects the language and uses beam search.
func DefaultOptions() Options {
	return Options{
		Language: "auto",
		BeamSize: 5,
	}
}

func NewTranscriber(modelPath string, defaults Options) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return &Transcriber{model: m, defaults: defaults}, nil
}

// TranscribeFile decodes an audio file and transcribes it with the
// default options, biased by prompt.
func (t *Transcriber) TranscribeFile(ctx context.Context, path, prompt string) (Result, error) {
	pcm, err := audioconv.ConvertFileToPCM16k(ctx, path, audioconv.Options{})
	if err != nil {
		return Result{}, fmt.Errorf("decode %s: %w", path, err)
	}

	opt := t.defaults
	if prompt != "" {
		opt.InitialPrompt = prompt
	}

	start := time.Now()
	res, err := t.TranscribePCM(ctx, pcm, opt)
	if err != nil {
		return Result{}, err
	}
	log.Debug("Transcribed", "samples", len(pcm), "took", time.Since(start), "lang", res.Language)
	return res, nil
}

func (t *Transcriber) Close() error {
	if t.model == nil {
		return nil
	}
	return t.model.Close()
}

// pcm16k must be mono @ 16 kHz, float32 in [-1, 1]
func (t *Transcriber) TranscribePCM(ctx context.Context, pcm16k []float32, opt Options) (Result, error) {
	if t.model == nil {
		return Result{}, errors.New("nil model")
	}
	if len(pcm16k) == 0 {
		return Result{}, errors.New("no audio samples provided")
	}

	// whisper contexts share the model; one transcription at a time
	t.mu.Lock()
	defer t.mu.Unlock()

	wctx, err := t.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("new context: %w", err)
	}

	opt = opt.withDefaults()
	if err := wctx.SetLanguage(opt.Language); err != nil {
		return Result{}, fmt.Errorf("set language: %w", err)
	}
	wctx.SetThreads(uint(opt.Threads))
	if opt.BeamSize > 0 {
		wctx.SetBeamSize(opt.BeamSize)
	}
	if opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(opt.InitialPrompt)
	}

	// ---- run transcription ----
	if err := wctx.Process(pcm16k, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("process: %w", err)
	}

	var text []string
	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("next segment: %w", err)
		}
		text = append(text, seg.Text)
	}

	lang := wctx.DetectedLanguage()
	if lang == "" {
		lang = wctx.Language()
	}

	return Result{Text: joinSegments(text), Language: lang}, nil
}

// joinSegments trims each segment and joins the non-empty ones with a
// single space.
func joinSegments(segs []string) string {
	var b strings.Builder
	for _, s := range segs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
	return b.String()
}
