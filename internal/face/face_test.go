package face

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homevox/internal/state"
	"homevox/pkg/protocol"
)

type fakeCamera struct {
	dev     *fakeDevice
	readErr error
}

func (c *fakeCamera) Read() (image.Image, error) {
	c.dev.reads.Add(1)
	if c.readErr != nil {
		return nil, c.readErr
	}
	return image.NewRGBA(image.Rect(0, 0, 100, 50)), nil
}

func (c *fakeCamera) Close() error {
	c.dev.closes.Add(1)
	return nil
}

type fakeDevice struct {
	opens, closes, reads atomic.Int32
	openErr              error
	readErr              error
}

func (d *fakeDevice) open() (Camera, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.opens.Add(1)
	return &fakeCamera{dev: d, readErr: d.readErr}, nil
}

type fakeEngine struct {
	mu    sync.Mutex
	encs  []Encoding
	sizes []image.Rectangle
}

func (e *fakeEngine) Encodings(img image.Image) ([]Encoding, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sizes = append(e.sizes, img.Bounds())
	return e.encs, nil
}

type fakeSpeaker struct {
	mu   sync.Mutex
	said []string
}

func (s *fakeSpeaker) Say(_ context.Context, text, _ string) {
	s.mu.Lock()
	s.said = append(s.said, text)
	s.mu.Unlock()
}

func (s *fakeSpeaker) lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.said...)
}

type fakeSender struct {
	mu   sync.Mutex
	sent []protocol.Code
}

func (s *fakeSender) Send(_ context.Context, c protocol.Code) bool {
	s.mu.Lock()
	s.sent = append(s.sent, c)
	s.mu.Unlock()
	return true
}

type fakeEvents struct {
	mu   sync.Mutex
	sent []string
}

func (e *fakeEvents) Publish(kind, content string) {
	e.mu.Lock()
	e.sent = append(e.sent, kind+":"+content)
	e.mu.Unlock()
}

type fakeCare struct{ runs atomic.Int32 }

func (c *fakeCare) Run(context.Context) bool {
	c.runs.Add(1)
	return true
}

func encodingOf(v float32) Encoding {
	e := make(Encoding, Dim)
	for i := range e {
		e[i] = v
	}
	return e
}

type harness struct {
	st     *state.Store
	owner  *Store
	dev    *fakeDevice
	engine *fakeEngine
	spk    *fakeSpeaker
	snd    *fakeSender
	care   *fakeCare
	events *fakeEvents
	rec    *Recognizer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		st:     state.New(),
		owner:  NewStore(filepath.Join(t.TempDir(), "owner_face.bin")),
		dev:    &fakeDevice{},
		engine: &fakeEngine{},
		spk:    &fakeSpeaker{},
		snd:    &fakeSender{},
		care:   &fakeCare{},
		events: &fakeEvents{},
	}
	t.Cleanup(h.st.Close)
	cfg := DefaultConfig()
	cfg.Idle = time.Millisecond
	h.rec = NewRecognizer(cfg, h.st, h.owner, NewDevice(h.dev.open), h.engine, h.spk, h.care, h.snd).
		WithEvents(h.events)
	return h
}

func TestEncodingDistanceAndMatch(t *testing.T) {
	a := encodingOf(0)
	b := encodingOf(0)
	b[0] = 0.44
	assert.InDelta(t, 0.44, a.Distance(b), 1e-6)
	assert.True(t, Match(a, b, 0.45))

	b[1] = 0.3
	assert.False(t, Match(a, b, 0.45))

	assert.False(t, Match(a, encodingOf(0)[:10], 0.45))
}

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "owner.bin"))

	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNotRegistered)

	enc := encodingOf(0.25)
	enc[7] = -1.5
	require.NoError(t, s.Save(enc))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, enc, got)

	// re-registration overwrites
	require.NoError(t, s.Save(encodingOf(1)))
	got, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, encodingOf(1), got)
}

func TestStoreRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "owner.bin")
	require.NoError(t, os.WriteFile(path, []byte("not an encoding"), 0o644))

	_, err := NewStore(path).Load()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotRegistered)
}

func TestDownscale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	small := Downscale(img, 0.4)
	assert.Equal(t, 256, small.Bounds().Dx())
	assert.Equal(t, 192, small.Bounds().Dy())

	assert.Same(t, img, Downscale(img, 1).(*image.RGBA))
}

func TestDeviceIsExclusive(t *testing.T) {
	fd := &fakeDevice{}
	dev := NewDevice(fd.open)

	cam, err := dev.TryAcquire()
	require.NoError(t, err)

	_, err = dev.TryAcquire()
	assert.ErrorIs(t, err, ErrBusy)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = dev.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, cam.Close())
	require.NoError(t, cam.Close())

	cam, err = dev.TryAcquire()
	require.NoError(t, err)
	cam.Close()
	assert.Equal(t, int32(2), fd.opens.Load())
}

func TestRecognizerIdleWhenDisarmed(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 5; i++ {
		assert.Equal(t, Idle, h.rec.Step(context.Background()))
	}
	assert.Zero(t, h.dev.opens.Load())
}

func TestRecognizerWithoutOwnerNeverOpensCamera(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 20; i++ {
		h.st.Arm(time.Minute)
		assert.Equal(t, Idle, h.rec.Step(context.Background()))
		assert.False(t, h.st.Armed())
	}

	assert.Zero(t, h.dev.opens.Load())
	assert.Zero(t, h.dev.reads.Load())
	assert.Nil(t, h.rec.cam)
	assert.Len(t, h.spk.lines(), 20)
	assert.Equal(t, msgNotRegistered, h.spk.lines()[0])
}

func TestRecognizerMatchUnlocks(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.owner.Save(encodingOf(0.1)))
	h.engine.encs = []Encoding{encodingOf(0.9), encodingOf(0.11)}
	h.st.Arm(time.Minute)

	assert.Equal(t, Matched, h.rec.Step(context.Background()))

	assert.Equal(t, int32(1), h.care.runs.Load())
	assert.Equal(t, []protocol.Code{protocol.Unlock}, h.snd.sent)
	assert.Equal(t, []string{msgWelcome}, h.spk.lines())
	assert.Equal(t, []string{"unlock:face"}, h.events.sent)
	assert.False(t, h.st.Armed())
	assert.Nil(t, h.rec.cam)
	assert.Equal(t, h.dev.opens.Load(), h.dev.closes.Load())

	// frames are downscaled before encoding
	require.Len(t, h.engine.sizes, 1)
	assert.Equal(t, 40, h.engine.sizes[0].Dx())

	// re-armed within the unlock cooldown: stay idle
	h.st.Arm(time.Minute)
	assert.Equal(t, Idle, h.rec.Step(context.Background()))
	assert.Equal(t, int32(1), h.dev.opens.Load())
}

func TestRecognizerKeepsCameraWhileScanning(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.owner.Save(encodingOf(0.1)))
	h.engine.encs = []Encoding{encodingOf(5)}
	h.st.Arm(time.Minute)

	for i := 0; i < 3; i++ {
		assert.Equal(t, Scanned, h.rec.Step(context.Background()))
	}
	assert.Equal(t, int32(1), h.dev.opens.Load())
	assert.NotNil(t, h.rec.cam)

	assert.Empty(t, h.events.sent)

	// enrollment takes over: camera must be released
	require.True(t, h.st.BeginRegistration())
	assert.Equal(t, Idle, h.rec.Step(context.Background()))
	assert.Nil(t, h.rec.cam)
	assert.Equal(t, int32(1), h.dev.closes.Load())
}

func TestRecognizerCameraFailureDisarms(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.owner.Save(encodingOf(0.1)))
	h.dev.openErr = errors.New("no device")
	h.st.Arm(time.Minute)

	assert.Equal(t, Idle, h.rec.Step(context.Background()))
	assert.False(t, h.st.Armed())
}

func TestRecognizerRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.rec.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

type fakePreview struct {
	keys  []int
	shown int
}

func (p *fakePreview) Show(image.Image) { p.shown++ }

func (p *fakePreview) Key(time.Duration) int {
	if len(p.keys) == 0 {
		return 'q'
	}
	k := p.keys[0]
	p.keys = p.keys[1:]
	return k
}

func (p *fakePreview) Close() {}

func newEnroller(h *harness, pv *fakePreview) *Enroller {
	return NewEnroller(h.st, h.owner, NewDevice(h.dev.open),
		func() (Preview, error) { return pv, nil }, h.engine, h.spk)
}

func TestEnrollSavesFirstFace(t *testing.T) {
	h := newHarness(t)
	h.engine.encs = []Encoding{encodingOf(0.3), encodingOf(0.7)}
	pv := &fakePreview{keys: []int{-1, 's'}}

	newEnroller(h, pv).Run(context.Background())

	got, err := h.owner.Load()
	require.NoError(t, err)
	assert.Equal(t, encodingOf(0.3), got)
	assert.Equal(t, []string{msgEnrollStart, msgEnrolled}, h.spk.lines())
	assert.False(t, h.st.Registering())
	assert.Equal(t, h.dev.opens.Load(), h.dev.closes.Load())
	assert.Equal(t, 2, pv.shown)
}

func TestEnrollNoFaceThenQuit(t *testing.T) {
	h := newHarness(t)
	pv := &fakePreview{keys: []int{'s', 'q'}}

	newEnroller(h, pv).Run(context.Background())

	_, err := h.owner.Load()
	assert.ErrorIs(t, err, ErrNotRegistered)
	assert.Equal(t, []string{msgEnrollStart, msgNoFace, msgEnrollAborted}, h.spk.lines())
	assert.False(t, h.st.Registering())
}

func TestEnrollCameraMissing(t *testing.T) {
	h := newHarness(t)
	h.dev.openErr = errors.New("no device")

	newEnroller(h, &fakePreview{}).Run(context.Background())

	assert.Equal(t, []string{msgEnrollStart, msgNoCamera}, h.spk.lines())
	assert.False(t, h.st.Registering())
}

func TestEnrollIsExclusive(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.st.BeginRegistration())

	newEnroller(h, &fakePreview{}).Run(context.Background())

	assert.Empty(t, h.spk.lines())
	assert.Zero(t, h.dev.opens.Load())
	assert.True(t, h.st.Registering())
}
