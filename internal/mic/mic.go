// Package mic opens the default input device through PortAudio.
package mic

import (
	"github.com/gordonklaus/portaudio"

	"homevox/internal/audio"
)

func Init() error {
	return portaudio.Initialize()
}

func Close() {
	portaudio.Terminate()
}

// Open is an audio.OpenStream for the default mono input at 16 kHz.
func Open(buf []float32) (audio.Stream, error) {
	s, err := portaudio.OpenDefaultStream(1, 0, audio.SampleRate, len(buf), buf)
	if err != nil {
		return nil, err
	}
	return s, nil
}
