package controller

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

type CareRunner interface {
	Run(ctx context.Context) bool
}

const (
	msgLookAtCamera = "카메라를 봐주세요."
	msgDoorOpened   = "문이 열렸습니다."
)

// CommandHandler reacts to lines pushed on the command channel. It must
// return quickly: the smart care routine waits on temperatures that
// arrive through the same listener.
type CommandHandler struct {
	State     *state.Store
	Speaker   Speaker
	Enroll    func(ctx context.Context)
	ArmWindow time.Duration
	Events    bus.Publisher
}

func (h *CommandHandler) Handle(ctx context.Context, line string) {
	ev, err := protocol.ParseCommand(line)
	if err != nil {
		if !errors.Is(err, protocol.ErrEmpty) {
			log.Debug("Ignoring inbound line", "line", line, "err", err)
		}
		return
	}

	log.Info("Controller", "event", ev.Kind, "raw", ev.Raw)

	switch ev.Kind {
	case protocol.EV_TEMPERATURE:
		h.State.SetTemperature(ev.Temp)

	case protocol.EV_FACE_UNLOCK:
		h.State.Arm(h.ArmWindow)
		bus.Emit(h.Events, "arm", ev.Raw)
		go h.Speaker.Say(ctx, msgLookAtCamera, "ko")

	case protocol.EV_REGISTER_FACE:
		if h.Enroll != nil {
			go h.Enroll(ctx)
		}

	case protocol.EV_ECHO:
		log.Debug("Echoed command", "code", ev.Code)

	default:
		log.Debug("Unknown controller message", "raw", ev.Raw)
	}
}

// DoorHandler reacts to unsolicited unlock notifications, e.g. a keypad
// unlock, by running smart care unless one ran within Quiet.
type DoorHandler struct {
	State   *state.Store
	Speaker Speaker
	Care    CareRunner
	Quiet   time.Duration
	Events  bus.Publisher
}

func (h *DoorHandler) Handle(ctx context.Context, line string) {
	ev := protocol.ParseDoor(line)
	if ev.Kind != protocol.EV_DOOR_UNLOCKED {
		log.Debug("Door event ignored", "raw", ev.Raw)
		return
	}

	if !h.State.CareIdleFor(h.Quiet) {
		log.Debug("Door unlocked shortly after care, skipping")
		return
	}

	log.Info("Keypad or manual unlock detected")
	bus.Emit(h.Events, "door", ev.Raw)
	h.Speaker.Say(ctx, msgDoorOpened, "ko")
	h.Care.Run(ctx)
}
