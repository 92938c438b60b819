package audioconv

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Normalize scales pcm in place so its absolute peak equals peak. Silent
// buffers are returned unchanged.
func Normalize(pcm []float32, peak float32) []float32 {
	maxAbs := Peak(pcm)
	if maxAbs == 0 {
		return pcm
	}

	k := peak / maxAbs
	for i := range pcm {
		pcm[i] *= k
	}
	return pcm
}

// Peak is the largest absolute sample value.
func Peak(pcm []float32) float32 {
	var m float32
	for _, v := range pcm {
		if a := float32(math.Abs(float64(v))); a > m {
			m = a
		}
	}
	return m
}

// WriteWAV stores mono float32 samples as a 16-bit PCM wav file.
func WriteWAV(path string, pcm []float32, rate int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc := wav.NewEncoder(f, rate, 16, 1, 1)

	data := make([]int, len(pcm))
	for i, v := range pcm {
		data[i] = int(math.Round(clamp(float64(v), -1, 1) * 32767))
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	return enc.Close()
}
