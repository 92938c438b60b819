package audio

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	buf    []float32
	value  float32
	reads  atomic.Int32
	closed atomic.Bool
	period time.Duration
}

func (f *fakeStream) Start() error { return nil }
func (f *fakeStream) Stop() error  { return nil }

func (f *fakeStream) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeStream) Read() error {
	if f.closed.Load() {
		return errors.New("stream closed")
	}
	time.Sleep(f.period)
	for i := range f.buf {
		f.buf[i] = f.value
	}
	f.reads.Add(1)
	return nil
}

func openerFor(streams *[]*fakeStream, mu *sync.Mutex) OpenStream {
	return func(buf []float32) (Stream, error) {
		s := &fakeStream{buf: buf, value: 0.25, period: 2 * time.Millisecond}
		mu.Lock()
		*streams = append(*streams, s)
		mu.Unlock()
		return s, nil
	}
}

func TestSessionRecordsChunks(t *testing.T) {
	var streams []*fakeStream
	var mu sync.Mutex
	s := NewSession(openerFor(&streams, &mu), 20*time.Millisecond)

	started, err := s.Start()
	require.NoError(t, err)
	require.True(t, started)
	assert.True(t, s.Active())

	time.Sleep(20 * time.Millisecond)

	pcm, ok := s.Stop()
	require.True(t, ok)
	assert.False(t, s.Active())
	require.NotEmpty(t, pcm)
	assert.Zero(t, len(pcm)%ChunkSize)
	assert.Equal(t, float32(0.25), pcm[0])
	assert.True(t, streams[0].closed.Load())
}

func TestSessionStartIsIdempotent(t *testing.T) {
	var streams []*fakeStream
	var mu sync.Mutex
	s := NewSession(openerFor(&streams, &mu), 10*time.Millisecond)

	started, err := s.Start()
	require.NoError(t, err)
	assert.True(t, started)

	started, err = s.Start()
	require.NoError(t, err)
	assert.False(t, started)

	mu.Lock()
	assert.Len(t, streams, 1)
	mu.Unlock()

	s.Stop()
}

func TestSessionStopWithoutStart(t *testing.T) {
	s := NewSession(func([]float32) (Stream, error) {
		t.Fatal("stream must not be opened")
		return nil, nil
	}, 10*time.Millisecond)

	pcm, ok := s.Stop()
	assert.False(t, ok)
	assert.Nil(t, pcm)

	_, ok = s.Stop()
	assert.False(t, ok)
}

func TestSessionOpenFailure(t *testing.T) {
	s := NewSession(func([]float32) (Stream, error) {
		return nil, errors.New("no input device")
	}, 10*time.Millisecond)

	started, err := s.Start()
	assert.Error(t, err)
	assert.False(t, started)
	assert.False(t, s.Active())
}

func TestConcat(t *testing.T) {
	out := Concat([][]float32{{1, 2}, {}, {3}})
	assert.Equal(t, []float32{1, 2, 3}, out)
	assert.Empty(t, Concat(nil))
}

const sinkInputs = `Sink Input #41
	Driver: protocol-native.c
	Volume: front-left: 65536 / 100% / 0.00 dB,   front-right: 65536 / 100% / 0.00 dB
	Properties:
		application.name = "Firefox"
Sink Input #42
	Volume: front-left: 32768 /  50% / -18.06 dB
	Properties:
		application.name = "homevox"
Sink Input #bad
	Volume: 10%
`

type fakePactl struct {
	mu   sync.Mutex
	sets []string
}

func (f *fakePactl) run(_ context.Context, args ...string) ([]byte, error) {
	if args[0] == "list" {
		return []byte(sinkInputs), nil
	}
	f.mu.Lock()
	f.sets = append(f.sets, strings.Join(args[1:], " "))
	f.mu.Unlock()
	return nil, nil
}

func TestParseSinkInputs(t *testing.T) {
	got := parseSinkInputs(sinkInputs)
	require.Len(t, got, 2)
	assert.Equal(t, streamInfo{ID: 41, Volume: 100, AppName: "Firefox"}, got[0])
	assert.Equal(t, streamInfo{ID: 42, Volume: 50, AppName: "homevox"}, got[1])
}

func TestDuckerSkipsSelfAndRestores(t *testing.T) {
	p := &fakePactl{}
	d := NewDucker([]string{"homevox"}, 10).WithPactl(p.run)
	ctx := context.Background()

	require.NoError(t, d.Duck(ctx, 0.3, 0))
	assert.Equal(t, []string{"41 30%"}, p.sets)

	// second duck is a no-op
	require.NoError(t, d.Duck(ctx, 0.3, 0))
	assert.Len(t, p.sets, 1)

	require.NoError(t, d.Unduck(ctx, 0))
	assert.Equal(t, []string{"41 30%", "41 100%"}, p.sets)

	require.NoError(t, d.Unduck(ctx, 0))
	assert.Len(t, p.sets, 2)
}

func TestDuckerRespectsMinVolume(t *testing.T) {
	p := &fakePactl{}
	d := NewDucker(nil, 60).WithPactl(p.run)

	require.NoError(t, d.Duck(context.Background(), 0.1, 0))
	assert.ElementsMatch(t, []string{"41 60%", "42 60%"}, p.sets)
}
