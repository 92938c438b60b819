package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Code is a control code understood by the home controller.
type Code uint8

const (
	LedOn Code = iota + 1
	LedOff
	FanOn
	FanOff
	Unlock
	ReqTemp
)

var codeNames = map[Code]string{
	LedOn:   "LED_ON",
	LedOff:  "LED_OFF",
	FanOn:   "FAN_ON",
	FanOff:  "FAN_OFF",
	Unlock:  "UNLOCK",
	ReqTemp: "REQ_TEMP",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(%d)", uint8(c))
}

func (c Code) Valid() bool {
	_, ok := codeNames[c]
	return ok
}

// Frame returns the newline-terminated wire form of c.
func (c Code) Frame() ([]byte, error) {
	s, ok := codeNames[c]
	if !ok {
		return nil, fmt.Errorf("unknown code %d", uint8(c))
	}
	return []byte(s + "\n"), nil
}

func ParseCode(s string) (Code, error) {
	s = strings.TrimSpace(s)
	for c, name := range codeNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown code %q", s)
}

type EventKind uint

const (
	EV_UNKNOWN EventKind = iota
	EV_TEMPERATURE
	EV_FACE_UNLOCK
	EV_REGISTER_FACE
	EV_ECHO
	EV_DOOR_UNLOCKED
)

func (k EventKind) String() string {
	switch k {
	case EV_TEMPERATURE:
		return "temperature"
	case EV_FACE_UNLOCK:
		return "face_unlock"
	case EV_REGISTER_FACE:
		return "register_face"
	case EV_ECHO:
		return "echo"
	case EV_DOOR_UNLOCKED:
		return "door_unlocked"
	default:
		return "unknown"
	}
}

// Event is one parsed inbound line from the controller.
type Event struct {
	Kind EventKind
	Temp float64
	Code Code
	Raw  string
}

const (
	tempPrefix     = "CURRENT_TEMP:"
	faceUnlockMsg  = "REQ_FACE_UNLOCK"
	registerMsg    = "REGISTER_FACE"
	unlockedMarker = "UNLOCKED"
)

var (
	ErrEmpty     = errors.New("empty message")
	ErrMalformed = errors.New("malformed message")
)

// ParseCommand parses a line pushed on the command channel.
// The controller rebroadcasts commands sent by other clients, those
// come back as EV_ECHO.
func ParseCommand(line string) (Event, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return Event{}, ErrEmpty
	}

	ev := Event{Raw: s}

	switch {
	case strings.HasPrefix(s, tempPrefix):
		v, err := strconv.ParseFloat(strings.TrimSpace(s[len(tempPrefix):]), 64)
		if err != nil {
			return ev, fmt.Errorf("%w: temperature %q", ErrMalformed, s)
		}
		ev.Kind = EV_TEMPERATURE
		ev.Temp = v
	case s == faceUnlockMsg:
		ev.Kind = EV_FACE_UNLOCK
	case s == registerMsg:
		ev.Kind = EV_REGISTER_FACE
	default:
		if c, err := ParseCode(s); err == nil {
			ev.Kind = EV_ECHO
			ev.Code = c
		}
	}

	return ev, nil
}

// ParseDoor parses a line pushed on the door-event channel.
func ParseDoor(line string) Event {
	s := strings.TrimSpace(line)
	ev := Event{Raw: s}
	if strings.Contains(s, unlockedMarker) {
		ev.Kind = EV_DOOR_UNLOCKED
	}
	return ev
}
