package audio

import (
	log "log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	SampleRate = 16000
	ChunkSize  = SampleRate / 10 // 100ms
)

// Stream is a blocking mono input stream bound to the buffer it was
// opened with. *portaudio.Stream satisfies it.
type Stream interface {
	Start() error
	Read() error
	Stop() error
	Close() error
}

type OpenStream func(buf []float32) (Stream, error)

// Session is a push-to-talk recording: Start opens the stream and a
// capture goroutine, Stop closes it and returns everything captured.
type Session struct {
	open  OpenStream
	flush time.Duration

	mu  sync.Mutex
	cur *recording
}

type recording struct {
	stream Stream
	buf    []float32
	active atomic.Bool
	done   chan struct{}

	mu     sync.Mutex
	chunks [][]float32
}

func NewSession(open OpenStream, flush time.Duration) *Session {
	return &Session{open: open, flush: flush}
}

func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

// Start begins a recording. It reports false without error when one is
// already running.
func (s *Session) Start() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != nil {
		return false, nil
	}

	rec := &recording{
		buf:  make([]float32, ChunkSize),
		done: make(chan struct{}),
	}

	stream, err := s.open(rec.buf)
	if err != nil {
		return false, err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return false, err
	}

	rec.stream = stream
	rec.active.Store(true)
	s.cur = rec

	go rec.capture()

	return true, nil
}

// Stop ends the recording and returns the captured samples in order. It
// reports false when nothing was recording.
func (s *Session) Stop() ([]float32, bool) {
	s.mu.Lock()
	rec := s.cur
	s.cur = nil
	s.mu.Unlock()

	if rec == nil {
		return nil, false
	}

	rec.active.Store(false)

	// let the capture goroutine finish its last read
	select {
	case <-rec.done:
	case <-time.After(s.flush):
	}

	if err := rec.stream.Stop(); err != nil {
		log.Debug("Stream stop failed", "err", err)
	}
	if err := rec.stream.Close(); err != nil {
		log.Debug("Stream close failed", "err", err)
	}

	select {
	case <-rec.done:
	case <-time.After(time.Second):
		log.Warn("Capture goroutine still blocked after close")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return Concat(rec.chunks), true
}

func (r *recording) capture() {
	defer close(r.done)

	for r.active.Load() {
		if err := r.stream.Read(); err != nil {
			if r.active.Load() {
				log.Error("Microphone read failed", "err", err)
			}
			return
		}

		chunk := make([]float32, len(r.buf))
		copy(chunk, r.buf)

		r.mu.Lock()
		r.chunks = append(r.chunks, chunk)
		r.mu.Unlock()
	}
}

func Concat(chunks [][]float32) []float32 {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	out := make([]float32, 0, n)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
