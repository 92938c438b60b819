package state

import (
	"bytes"
	log "log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestRegistrationIsExclusive(t *testing.T) {
	s := New()
	require.True(t, s.BeginRegistration())
	assert.False(t, s.BeginRegistration())
	assert.True(t, s.Registering())

	s.EndRegistration()
	assert.False(t, s.Registering())
	assert.True(t, s.BeginRegistration())
}

func TestArmAutoDisarms(t *testing.T) {
	s := New()
	defer s.Close()

	s.Arm(20 * time.Millisecond)
	assert.True(t, s.Armed())

	assert.Eventually(t, func() bool { return !s.Armed() }, time.Second, 5*time.Millisecond)
}

func TestDisarmCancelsPendingTimer(t *testing.T) {
	s := New()
	defer s.Close()

	s.Arm(30 * time.Millisecond)
	s.Disarm()
	assert.False(t, s.Armed())

	// a new window must not be cut short by the first timer
	s.Arm(200 * time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.True(t, s.Armed())
}

func TestRearmExtendsWindow(t *testing.T) {
	s := New()
	defer s.Close()

	s.Arm(40 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	s.Arm(200 * time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.True(t, s.Armed())
}

func TestCommandLockClearsAfterLastSend(t *testing.T) {
	s := New()
	defer s.Close()

	s.LockCommands(40 * time.Millisecond)
	assert.True(t, s.CommandLocked())
	time.Sleep(25 * time.Millisecond)
	s.LockCommands(40 * time.Millisecond)
	time.Sleep(25 * time.Millisecond)
	assert.True(t, s.CommandLocked())

	assert.Eventually(t, func() bool { return !s.CommandLocked() }, time.Second, 5*time.Millisecond)
}

func TestTryBeginCareCooldown(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	s := NewWithClock(clk.Now)

	assert.True(t, s.CareIdleFor(10*time.Second))
	require.True(t, s.TryBeginCare(10*time.Second))
	assert.False(t, s.TryBeginCare(10*time.Second))
	assert.False(t, s.CareIdleFor(10*time.Second))

	clk.Advance(9 * time.Second)
	assert.False(t, s.TryBeginCare(10*time.Second))

	clk.Advance(time.Second)
	assert.False(t, s.CareIdleFor(10*time.Second))
	assert.True(t, s.TryBeginCare(10*time.Second))
}

func TestTryBeginCareConcurrent(t *testing.T) {
	s := New()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryBeginCare(10 * time.Second) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestTemperature(t *testing.T) {
	s := New()
	_, ok := s.Temperature()
	assert.False(t, ok)

	s.SetTemperature(21.5)
	v, ok := s.Temperature()
	assert.True(t, ok)
	assert.Equal(t, 21.5, v)

	s.ClearTemperature()
	_, ok = s.Temperature()
	assert.False(t, ok)

	snap := s.Snapshot()
	assert.False(t, snap.HasTemp)
}

func TestSnapshotLogValue(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	s := NewWithClock(clk.Now)
	defer s.Close()

	var buf bytes.Buffer
	logger := log.New(log.NewTextHandler(&buf, nil))

	logger.Info("idle", "state", s.Snapshot())
	assert.Contains(t, buf.String(), "state.armed=false")
	assert.NotContains(t, buf.String(), "state.last_care")
	assert.NotContains(t, buf.String(), "state.temp")

	buf.Reset()
	require.True(t, s.TryBeginCare(time.Minute))
	s.SetTemperature(19.5)
	s.Arm(time.Minute)

	logger.Info("busy", "state", s.Snapshot())
	assert.Contains(t, buf.String(), "state.armed=true")
	assert.Contains(t, buf.String(), "state.last_care=2024-03-01T08:00:00.000Z")
	assert.Contains(t, buf.String(), "state.temp=19.5")
}
