// Package notify plays short audio clips through the default output
// device: the listening cue and synthesized speech.
package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"

	"homevox/pkg/audioconv"
)

// clipRate is the rate compressed clips are decoded at.
const clipRate = 24000

// Player owns the speaker. The device is opened on the first clip and
// later clips are resampled to its rate.
type Player struct {
	mu       sync.Mutex
	rate     beep.SampleRate
	ready    bool
	beepPath string
}

func NewPlayer(beepPath string) *Player {
	return &Player{beepPath: beepPath}
}

// Beep plays the listening cue.
func (p *Player) Beep(ctx context.Context) error {
	return p.PlayFile(ctx, p.beepPath)
}

// PlayFile plays a wav, mp3 or ogg file and blocks until it ends or ctx
// is done.
func (p *Player) PlayFile(ctx context.Context, path string) error {
	streamer, format, err := decode(ctx, path)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	defer streamer.Close()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ready {
		if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
			return fmt.Errorf("init speaker: %w", err)
		}
		p.rate = format.SampleRate
		p.ready = true
	}

	var s beep.Streamer = streamer
	if format.SampleRate != p.rate {
		s = beep.Resample(4, format.SampleRate, p.rate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

func decode(ctx context.Context, path string) (beep.StreamSeekCloser, beep.Format, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		f, err := os.Open(path)
		if err != nil {
			return nil, beep.Format{}, err
		}
		s, format, err := wav.Decode(f)
		if err != nil {
			f.Close()
		}
		return s, format, err
	}

	pcm, err := audioconv.DecodeFile(ctx, path, audioconv.Options{Rate: clipRate})
	if err != nil {
		return nil, beep.Format{}, err
	}
	return &clip{pcm: pcm}, beep.Format{SampleRate: clipRate, NumChannels: 1, Precision: 2}, nil
}

// clip streams decoded mono samples to both speaker channels.
type clip struct {
	pcm []float32
	pos int
}

func (c *clip) Stream(samples [][2]float64) (int, bool) {
	if c.pos >= len(c.pcm) {
		return 0, false
	}
	n := min(len(samples), len(c.pcm)-c.pos)
	for i := range n {
		v := float64(c.pcm[c.pos+i])
		samples[i] = [2]float64{v, v}
	}
	c.pos += n
	return n, true
}

func (c *clip) Err() error    { return nil }
func (c *clip) Len() int      { return len(c.pcm) }
func (c *clip) Position() int { return c.pos }
func (c *clip) Close() error  { return nil }

func (c *clip) Seek(p int) error {
	if p < 0 || p > len(c.pcm) {
		return fmt.Errorf("seek %d out of range [0, %d]", p, len(c.pcm))
	}
	c.pos = p
	return nil
}
