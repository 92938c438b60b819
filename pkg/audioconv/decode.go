// Package audioconv converts between audio files and mono float32 PCM,
// 16 kHz by default since that is what the transcriber consumes.
package audioconv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

const TargetRate = 16000

type Options struct {
	// Rate is the output sample rate; 0 means TargetRate.
	Rate       int
	MaxSamples int
}

func (o Options) rate() int {
	if o.Rate > 0 {
		return o.Rate
	}
	return TargetRate
}

// ConvertFileToPCM16k decodes a wav, mp3 or ogg file to 16 kHz mono.
func ConvertFileToPCM16k(ctx context.Context, path string, opt Options) ([]float32, error) {
	opt.Rate = TargetRate
	return DecodeFile(ctx, path, opt)
}

// DecodeFile decodes a wav, mp3 or ogg file to mono at opt.Rate. Unknown
// extensions are sniffed by magic bytes.
func DecodeFile(_ context.Context, path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return decodeWAV(f, opt)
	case ".mp3":
		return decodeMP3(f, opt)
	case ".ogg", ".oga", ".opus":
		return decodeOgg(f, opt)
	}

	magic, _ := bufio.NewReader(f).Peek(4)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	switch {
	case bytes.HasPrefix(magic, []byte("RIFF")):
		return decodeWAV(f, opt)
	case bytes.HasPrefix(magic, []byte("OggS")):
		return decodeOgg(f, opt)
	case isMP3(magic):
		return decodeMP3(f, opt)
	}
	return nil, fmt.Errorf("unsupported format: %s (supported: wav/mp3/ogg-vorbis[/opus])", path)
}

// isMP3 matches an ID3v2 tag or an MPEG audio frame sync.
func isMP3(magic []byte) bool {
	if bytes.HasPrefix(magic, []byte("ID3")) {
		return true
	}
	return len(magic) >= 2 && magic[0] == 0xFF && magic[1]&0xE0 == 0xE0
}

func decodeWAV(r io.ReadSeeker, opt Options) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if pb == nil || len(pb.Data) == 0 {
		return nil, errors.New("empty wav")
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}

	ch, sr := 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			ch = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			sr = pb.Format.SampleRate
		}
	}

	return finish(intsToFloat32(pb.Data, bd), ch, sr, opt), nil
}

func decodeMP3(r io.Reader, opt Options) ([]float32, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, err
	}

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	// go-mp3 always produces interleaved stereo
	return finish(int16sToFloat32(ints), 2, sr, opt), nil
}

// decodeOgg tries Vorbis first, then Opus.
func decodeOgg(r io.ReadSeeker, opt Options) ([]float32, error) {
	pcm, format, vErr := oggvorbis.ReadAll(r)
	if vErr == nil && format != nil && format.Channels > 0 && format.SampleRate > 0 {
		return finish(pcm, format.Channels, format.SampleRate, opt), nil
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	out, oErr := decodeOpus(r, opt)
	if oErr != nil {
		return nil, fmt.Errorf("cannot decode ogg as vorbis (%v) or opus (%w)", vErr, oErr)
	}
	return out, nil
}

func finish(x []float32, channels, rate int, opt Options) []float32 {
	x = downmixInterleaved(x, channels)
	x = resampleLinear(x, rate, opt.rate())
	if opt.MaxSamples > 0 && len(x) > opt.MaxSamples {
		x = x[:opt.MaxSamples]
	}
	return x
}
