package face

import (
	"context"
	"image"
	log "log/slog"
	"time"

	"homevox/internal/state"
)

// Preview shows live frames during enrollment and reports key presses.
type Preview interface {
	Show(img image.Image)
	Key(wait time.Duration) int
	Close()
}

type OpenPreview func() (Preview, error)

const (
	msgEnrollStart   = "얼굴 등록을 시작합니다."
	msgNoCamera      = "카메라를 찾을 수 없습니다."
	msgEnrolled      = "얼굴이 등록되었습니다."
	msgNoFace        = "얼굴이 감지되지 않았습니다."
	msgEnrollAborted = "취소되었습니다."
)

const (
	keySave = 's'
	keyQuit = 'q'
)

type Enroller struct {
	st      *state.Store
	owner   *Store
	dev     *Device
	preview OpenPreview
	engine  Engine
	speaker Speaker
}

func NewEnroller(st *state.Store, owner *Store, dev *Device, preview OpenPreview, engine Engine, speaker Speaker) *Enroller {
	return &Enroller{st: st, owner: owner, dev: dev, preview: preview, engine: engine, speaker: speaker}
}

// Run captures the owner's face until it is saved, the user quits, or
// ctx is done. Only one enrollment runs at a time.
func (e *Enroller) Run(ctx context.Context) {
	if !e.st.BeginRegistration() {
		log.Warn("Face registration already running")
		return
	}
	defer e.st.EndRegistration()

	log.Info("Face registration started")
	e.speaker.Say(ctx, msgEnrollStart, "ko")

	cam, err := e.dev.Acquire(ctx)
	if err != nil {
		log.Error("Failed to open camera", "err", err)
		e.speaker.Say(ctx, msgNoCamera, "ko")
		return
	}
	defer cam.Close()

	pv, err := e.preview()
	if err != nil {
		log.Error("Failed to open preview", "err", err)
		e.speaker.Say(ctx, msgNoCamera, "ko")
		return
	}
	defer pv.Close()

	for ctx.Err() == nil {
		frame, err := cam.Read()
		if err != nil {
			log.Error("Failed to read frame", "err", err)
			return
		}
		pv.Show(frame)

		switch pv.Key(time.Millisecond) {
		case keySave:
			if e.save(ctx, frame) {
				return
			}
		case keyQuit:
			log.Info("Face registration cancelled")
			e.speaker.Say(ctx, msgEnrollAborted, "ko")
			return
		}
	}
}

func (e *Enroller) save(ctx context.Context, frame image.Image) bool {
	encs, err := e.engine.Encodings(frame)
	if err != nil {
		log.Error("Face encoding failed", "err", err)
		return false
	}
	if len(encs) == 0 {
		e.speaker.Say(ctx, msgNoFace, "ko")
		return false
	}
	if err := e.owner.Save(encs[0]); err != nil {
		log.Error("Failed to save owner face", "path", e.owner.Path(), "err", err)
		return false
	}

	log.Info("Owner face saved", "path", e.owner.Path())
	e.speaker.Say(ctx, msgEnrolled, "ko")
	return true
}
