// Package voice turns push-to-talk recordings into controller commands
// or spoken answers.
package voice

import (
	"context"
	"fmt"
	log "log/slog"
	"os"
	"strings"
	"time"

	"homevox/internal/audio"
	"homevox/internal/bus"
	"homevox/internal/ipc"
	"homevox/internal/nlu"
	"homevox/pkg/audioconv"
	"homevox/pkg/protocol"
)

type Recorder interface {
	Active() bool
	Start() (bool, error)
	Stop() ([]float32, bool)
}

// Transcriber turns a 16 kHz WAV file into text and its detected
// language.
type Transcriber interface {
	Transcribe(ctx context.Context, path, prompt string) (text, lang string, err error)
}

type Speaker interface {
	Say(ctx context.Context, text, lang string)
}

type Sender interface {
	Send(ctx context.Context, code protocol.Code) bool
}

type CareRunner interface {
	Run(ctx context.Context) bool
}

type Assistant interface {
	Ask(ctx context.Context, text, lang string) string
}

// Cue plays the listening sound.
type Cue interface {
	Beep(ctx context.Context) error
}

type Ducker interface {
	Duck(ctx context.Context, factor float64, duration time.Duration) error
	Unduck(ctx context.Context, duration time.Duration) error
}

type Config struct {
	Peak       float32
	TempDir    string
	DuckFactor float64 // 0 disables ducking
	Fade       time.Duration
}

func DefaultConfig() Config {
	return Config{
		Peak:       0.9,
		DuckFactor: 0.3,
		Fade:       200 * time.Millisecond,
	}
}

// Deps are the collaborators of a Pipeline. Cue, Ducker and Events are
// optional.
type Deps struct {
	Recorder    Recorder
	Transcriber Transcriber
	Table       nlu.Table
	Assistant   Assistant
	Speaker     Speaker
	Sender      Sender
	Care        CareRunner
	Cue         Cue
	Ducker      Ducker
	Events      bus.Publisher
}

type Pipeline struct {
	cfg    Config
	d      Deps
	prompt string
}

func New(cfg Config, d Deps) *Pipeline {
	return &Pipeline{cfg: cfg, d: d, prompt: d.Table.Prompt()}
}

// Handle processes one trigger command.
func (p *Pipeline) Handle(ctx context.Context, cmd string) {
	switch cmd {
	case ipc.StartRecording:
		p.Start(ctx)
	case ipc.StopRecording:
		p.StopAndProcess(ctx)
	default:
		log.Warn("Unknown trigger", "cmd", cmd)
	}
}

// Start begins recording. A second Start while recording is a no-op.
func (p *Pipeline) Start(ctx context.Context) {
	if p.d.Recorder.Active() {
		log.Debug("Already recording")
		return
	}

	p.duck(ctx)
	if p.d.Cue != nil {
		if err := p.d.Cue.Beep(ctx); err != nil {
			log.Warn("Failed to play cue", "err", err)
		}
	}

	started, err := p.d.Recorder.Start()
	if err != nil {
		log.Error("Failed to open microphone", "err", err)
		p.unduck(ctx)
		return
	}
	if started {
		log.Info("Starting listening")
	}
}

// StopAndProcess ends the recording and acts on what was said. Without
// an active recording it does nothing.
func (p *Pipeline) StopAndProcess(ctx context.Context) {
	pcm, ok := p.d.Recorder.Stop()
	if !ok {
		log.Debug("Not recording")
		return
	}
	p.unduck(ctx)

	log.Info("Recorded", "samples", len(pcm))
	if len(pcm) == 0 {
		return
	}

	text, lang, err := p.transcribe(ctx, audioconv.Normalize(pcm, p.cfg.Peak))
	if err != nil {
		log.Error("Failed to transcribe", "err", err)
		return
	}
	log.Info("Transcribed", "text", text, "lang", lang)

	p.Dispatch(ctx, text, lang)
}

func (p *Pipeline) transcribe(ctx context.Context, pcm []float32) (string, string, error) {
	f, err := os.CreateTemp(p.cfg.TempDir, "homevox-req-*.wav")
	if err != nil {
		return "", "", err
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	if err := audioconv.WriteWAV(path, pcm, audio.SampleRate); err != nil {
		return "", "", fmt.Errorf("write wav: %w", err)
	}
	return p.d.Transcriber.Transcribe(ctx, path, p.prompt)
}

// Dispatch resolves a transcript to a command, or asks the assistant.
func (p *Pipeline) Dispatch(ctx context.Context, text, lang string) {
	text = strings.TrimSpace(text)
	if text == "" {
		log.Info("No speech detected")
		return
	}

	if cmd, ok := p.d.Table.Resolve(text); ok {
		log.Info("Command detected", "code", cmd.Code)
		bus.Emit(p.d.Events, "intent", cmd.Code.String())

		p.d.Speaker.Say(ctx, cmd.Message, cmd.Lang)
		if cmd.Code == protocol.Unlock {
			p.d.Care.Run(ctx)
		}
		p.d.Sender.Send(ctx, cmd.Code)
		return
	}

	answer := p.d.Assistant.Ask(ctx, text, lang)
	log.Info("Answer", "text", answer)
	bus.Emit(p.d.Events, "answer", answer)
	p.d.Speaker.Say(ctx, answer, lang)
}

func (p *Pipeline) duck(ctx context.Context) {
	if p.d.Ducker == nil || p.cfg.DuckFactor <= 0 {
		return
	}
	if err := p.d.Ducker.Duck(ctx, p.cfg.DuckFactor, p.cfg.Fade); err != nil {
		log.Warn("Failed to duck audio", "err", err)
	}
}

func (p *Pipeline) unduck(ctx context.Context) {
	if p.d.Ducker == nil || p.cfg.DuckFactor <= 0 {
		return
	}
	if err := p.d.Ducker.Unduck(ctx, p.cfg.Fade); err != nil {
		log.Warn("Failed to restore audio", "err", err)
	}
}
