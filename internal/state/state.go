// Package state holds the process-wide flags shared by the listeners,
// the recognition loop, the voice pipeline and the care routine.
//
// Every field is guarded by one mutex. Flags that reset themselves after
// a delay (recognition arm window, command lock) are driven by one-shot
// timers owned by the Store; re-arming or an early clear cancels the
// pending timer so a stale callback never flips a newer value.
package state

import (
	log "log/slog"
	"sync"
	"time"
)

type timerKey uint8

const (
	disarmTimer timerKey = iota
	lockTimer
)

type Store struct {
	mu sync.Mutex

	registering bool
	armed       bool
	cmdLock     bool
	lastCare    time.Time
	temp        float64
	hasTemp     bool

	timers map[timerKey]*oneShot
	gen    uint64

	now func() time.Time
}

type oneShot struct {
	t   *time.Timer
	gen uint64
}

type Snapshot struct {
	Registering bool
	Armed       bool
	CommandLock bool
	LastCare    time.Time
	Temp        float64
	HasTemp     bool
}

// LogValue renders the snapshot as a log group. Temperature and last care
// are omitted while unset.
func (s Snapshot) LogValue() log.Value {
	attrs := []log.Attr{
		log.Bool("registering", s.Registering),
		log.Bool("armed", s.Armed),
		log.Bool("command_lock", s.CommandLock),
	}
	if !s.LastCare.IsZero() {
		attrs = append(attrs, log.Time("last_care", s.LastCare))
	}
	if s.HasTemp {
		attrs = append(attrs, log.Float64("temp", s.Temp))
	}
	return log.GroupValue(attrs...)
}

func New() *Store {
	return &Store{
		timers: make(map[timerKey]*oneShot),
		now:    time.Now,
	}
}

// NewWithClock is New with an injectable clock for cooldown checks.
func NewWithClock(now func() time.Time) *Store {
	s := New()
	s.now = now
	return s
}

func (s *Store) Now() time.Time {
	return s.now()
}

// --- registration ---

// BeginRegistration claims the camera for enrollment. It reports false
// when an enrollment already runs.
func (s *Store) BeginRegistration() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registering {
		return false
	}
	s.registering = true
	return true
}

func (s *Store) EndRegistration() {
	s.mu.Lock()
	s.registering = false
	s.mu.Unlock()
}

func (s *Store) Registering() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registering
}

// --- recognition window ---

// Arm opens the recognition window and disarms automatically after window.
func (s *Store) Arm(window time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = true
	s.scheduleLocked(disarmTimer, window, func() { s.armed = false })
}

func (s *Store) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(disarmTimer)
	s.armed = false
}

func (s *Store) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// --- command lock ---

// LockCommands raises the advisory command lock and clears it hold after
// the most recent call. Senders never wait on it.
func (s *Store) LockCommands(hold time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmdLock = true
	s.scheduleLocked(lockTimer, hold, func() { s.cmdLock = false })
}

func (s *Store) CommandLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmdLock
}

// --- smart care cooldown ---

// TryBeginCare records a care run and reports true when at least
// cooldown has passed since the previous one. Check and update happen
// under one lock.
func (s *Store) TryBeginCare(cooldown time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if !s.lastCare.IsZero() && now.Sub(s.lastCare) < cooldown {
		return false
	}
	s.lastCare = now
	return true
}

// CareIdleFor reports whether more than d passed since the last care run.
func (s *Store) CareIdleFor(d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCare.IsZero() || s.now().Sub(s.lastCare) > d
}

// --- indoor temperature ---

func (s *Store) SetTemperature(v float64) {
	s.mu.Lock()
	s.temp, s.hasTemp = v, true
	s.mu.Unlock()
}

func (s *Store) ClearTemperature() {
	s.mu.Lock()
	s.temp, s.hasTemp = 0, false
	s.mu.Unlock()
}

func (s *Store) Temperature() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.temp, s.hasTemp
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Registering: s.registering,
		Armed:       s.armed,
		CommandLock: s.cmdLock,
		LastCare:    s.lastCare,
		Temp:        s.temp,
		HasTemp:     s.hasTemp,
	}
}

// Close stops every pending timer.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.timers {
		s.cancelLocked(k)
	}
}

// scheduleLocked replaces the pending timer for key. fn runs with s.mu
// held, and only if no later schedule or cancel happened for key.
func (s *Store) scheduleLocked(key timerKey, d time.Duration, fn func()) {
	s.cancelLocked(key)
	s.gen++
	gen := s.gen
	s.timers[key] = &oneShot{
		gen: gen,
		t: time.AfterFunc(d, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			cur, ok := s.timers[key]
			if !ok || cur.gen != gen {
				return
			}
			delete(s.timers, key)
			fn()
		}),
	}
}

func (s *Store) cancelLocked(key timerKey) {
	if cur, ok := s.timers[key]; ok {
		cur.t.Stop()
		delete(s.timers, key)
	}
}
