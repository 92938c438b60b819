package face

import (
	"context"
	"errors"
	log "log/slog"
	"time"

	"homevox/internal/bus"
	"homevox/internal/state"
	"homevox/pkg/protocol"
)

type Speaker interface {
	Say(ctx context.Context, text, lang string)
}

type Sender interface {
	Send(ctx context.Context, code protocol.Code) bool
}

type CareRunner interface {
	Run(ctx context.Context) bool
}

const (
	msgNotRegistered = "등록된 얼굴 데이터가 없습니다."
	msgWelcome       = "주인님, 어서 오세요. 문을 엽니다."
)

type Config struct {
	Idle           time.Duration
	UnlockCooldown time.Duration
	Tolerance      float64
	Scale          float64
}

func DefaultConfig() Config {
	return Config{
		Idle:           time.Second,
		UnlockCooldown: 10 * time.Second,
		Tolerance:      0.45,
		Scale:          0.4,
	}
}

type Recognizer struct {
	cfg     Config
	st      *state.Store
	owner   *Store
	dev     *Device
	engine  Engine
	speaker Speaker
	care    CareRunner
	sender  Sender
	events  bus.Publisher

	cam        Camera
	lastUnlock time.Time
}

func NewRecognizer(cfg Config, st *state.Store, owner *Store, dev *Device, engine Engine,
	speaker Speaker, care CareRunner, sender Sender) *Recognizer {
	return &Recognizer{
		cfg:     cfg,
		st:      st,
		owner:   owner,
		dev:     dev,
		engine:  engine,
		speaker: speaker,
		care:    care,
		sender:  sender,
	}
}

// WithEvents publishes unlocks to p.
func (r *Recognizer) WithEvents(p bus.Publisher) *Recognizer {
	r.events = p
	return r
}

type Outcome uint8

const (
	Idle Outcome = iota
	Scanned
	Matched
)

// Run scans while recognition is armed until ctx is done.
func (r *Recognizer) Run(ctx context.Context) {
	log.Info("Face recognition waiting")
	defer r.release()

	for ctx.Err() == nil {
		if r.Step(ctx) == Idle {
			protocol.Sleep(ctx, r.cfg.Idle)
		}
	}
}

// Step runs one iteration of the loop. The camera stays open only while
// the loop is actively scanning.
func (r *Recognizer) Step(ctx context.Context) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("Face recognition step panicked", "panic", p)
			r.release()
			out = Idle
		}
	}()

	cooling := !r.lastUnlock.IsZero() && r.st.Now().Sub(r.lastUnlock) < r.cfg.UnlockCooldown
	if r.st.Registering() || !r.st.Armed() || cooling {
		r.release()
		return Idle
	}

	owner, err := r.owner.Load()
	if err != nil {
		r.release()
		if errors.Is(err, ErrNotRegistered) {
			log.Warn("No owner face registered")
			r.speaker.Say(ctx, msgNotRegistered, "ko")
		} else {
			log.Error("Failed to load owner face", "path", r.owner.Path(), "err", err)
		}
		r.st.Disarm()
		return Idle
	}

	if r.cam == nil {
		cam, err := r.dev.TryAcquire()
		if err != nil {
			log.Error("Failed to open camera", "err", err)
			r.st.Disarm()
			return Idle
		}
		r.cam = cam
		log.Info("Face recognition started")
	}

	frame, err := r.cam.Read()
	if err != nil {
		log.Warn("Failed to read frame", "err", err)
		r.release()
		return Idle
	}

	encs, err := r.engine.Encodings(Downscale(frame, r.cfg.Scale))
	if err != nil {
		log.Warn("Face encoding failed", "err", err)
		return Scanned
	}

	for _, enc := range encs {
		if Match(owner, enc, r.cfg.Tolerance) {
			r.unlock(ctx)
			return Matched
		}
	}

	return Scanned
}

func (r *Recognizer) unlock(ctx context.Context) {
	log.Info("Owner recognized, unlocking")
	bus.Emit(r.events, "unlock", "face")

	r.speaker.Say(ctx, msgWelcome, "ko")
	r.care.Run(ctx)
	r.sender.Send(ctx, protocol.Unlock)

	r.lastUnlock = r.st.Now()
	r.st.Disarm()
	r.release()
}

func (r *Recognizer) release() {
	if r.cam != nil {
		if err := r.cam.Close(); err != nil {
			log.Debug("Camera close failed", "err", err)
		}
		r.cam = nil
	}
}
