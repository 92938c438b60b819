// Package dlib computes face encodings with the dlib models shipped for
// go-face.
package dlib

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	goface "github.com/Kagami/go-face"

	"homevox/internal/face"
)

type Engine struct {
	mu  sync.Mutex
	rec *goface.Recognizer
}

// New loads the shape predictor and recognition models from modelDir.
func New(modelDir string) (*Engine, error) {
	rec, err := goface.NewRecognizer(modelDir)
	if err != nil {
		return nil, fmt.Errorf("load face models: %w", err)
	}
	return &Engine{rec: rec}, nil
}

func (e *Engine) Encodings(img image.Image) ([]face.Encoding, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	e.mu.Lock()
	faces, err := e.rec.Recognize(buf.Bytes())
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}

	out := make([]face.Encoding, 0, len(faces))
	for _, f := range faces {
		enc := make(face.Encoding, len(f.Descriptor))
		copy(enc, f.Descriptor[:])
		out = append(out, enc)
	}
	return out, nil
}

func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec.Close()
}
