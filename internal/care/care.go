// Package care runs the temperature check that follows every door unlock.
package care

import (
	"context"
	"fmt"
	log "log/slog"
	"strconv"
	"time"

	"homevox/internal/bus"
	"homevox/internal/state"
	"homevox/pkg/protocol"
)

type Sender interface {
	Send(ctx context.Context, code protocol.Code) bool
}

type Speaker interface {
	Say(ctx context.Context, text, lang string)
}

type Action uint8

const (
	ActionNone Action = iota
	ActionHeat
	ActionCool
)

func (a Action) String() string {
	switch a {
	case ActionHeat:
		return "heat"
	case ActionCool:
		return "cool"
	default:
		return "none"
	}
}

const (
	HeatAtOrBelow = 18.0
	CoolAtOrAbove = 26.0
)

// Decide maps an indoor temperature to an action. Both bounds are
// inclusive.
func Decide(temp float64) Action {
	switch {
	case temp <= HeatAtOrBelow:
		return ActionHeat
	case temp >= CoolAtOrAbove:
		return ActionCool
	default:
		return ActionNone
	}
}

// actionCode is the controller code for each action. The controller has
// no heater output; both extremes run the fan.
var actionCode = map[Action]protocol.Code{
	ActionHeat: protocol.FanOn,
	ActionCool: protocol.FanOn,
}

type Config struct {
	Cooldown     time.Duration
	PollInterval time.Duration
	PollAttempts int
}

func DefaultConfig() Config {
	return Config{
		Cooldown:     10 * time.Second,
		PollInterval: 200 * time.Millisecond,
		PollAttempts: 15,
	}
}

type Routine struct {
	cfg     Config
	st      *state.Store
	sender  Sender
	speaker Speaker
	events  bus.Publisher
}

func New(cfg Config, st *state.Store, sender Sender, speaker Speaker, events bus.Publisher) *Routine {
	return &Routine{cfg: cfg, st: st, sender: sender, speaker: speaker, events: events}
}

// Run performs one care cycle and reports whether it went past the
// cooldown gate. Failures are logged only.
func (r *Routine) Run(ctx context.Context) bool {
	if !r.st.TryBeginCare(r.cfg.Cooldown) {
		log.Info("Smart care ran recently, skipping")
		return false
	}

	log.Info("Smart care: requesting indoor temperature")

	r.st.ClearTemperature()
	if !r.sender.Send(ctx, protocol.ReqTemp) {
		log.Error("Smart care: controller unreachable")
		return true
	}

	temp, ok := r.awaitTemperature(ctx)
	if !ok {
		log.Warn("Smart care: no temperature received", "waited", time.Duration(r.cfg.PollAttempts)*r.cfg.PollInterval)
		return true
	}

	action := Decide(temp)
	log.Info("Smart care", "temp", temp, "action", action)
	bus.Emit(r.events, "care", fmt.Sprintf("%s %s", formatTemp(temp), action))

	switch action {
	case ActionHeat:
		r.speaker.Say(ctx, fmt.Sprintf("실내 온도가 %s도입니다. 춥네요. 난방기를 켜드릴게요.", formatTemp(temp)), "ko")
	case ActionCool:
		r.speaker.Say(ctx, fmt.Sprintf("실내 온도가 %s도입니다. 덥네요. 에어컨을 켜드릴게요.", formatTemp(temp)), "ko")
	default:
		return true
	}

	r.sender.Send(ctx, actionCode[action])
	return true
}

func (r *Routine) awaitTemperature(ctx context.Context) (float64, bool) {
	for i := 0; i < r.cfg.PollAttempts; i++ {
		if protocol.Sleep(ctx, r.cfg.PollInterval) != nil {
			return 0, false
		}
		if v, ok := r.st.Temperature(); ok {
			log.Debug("Temperature received", "after", time.Duration(i+1)*r.cfg.PollInterval)
			return v, true
		}
	}
	return 0, false
}

func formatTemp(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
