// Package face runs owner recognition and enrollment against a camera
// and a face-embedding engine.
package face

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// Dim is the length of an encoding produced by the dlib engine.
const Dim = 128

type Encoding []float32

// Distance is the euclidean distance between two encodings.
func (e Encoding) Distance(o Encoding) float64 {
	if len(e) != len(o) {
		return math.Inf(1)
	}
	var sum float64
	for i := range e {
		d := float64(e[i]) - float64(o[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Match reports whether candidate is within tolerance of known.
func Match(known, candidate Encoding, tolerance float64) bool {
	return known.Distance(candidate) <= tolerance
}

var ErrNotRegistered = errors.New("owner face not registered")

var fileMagic = [4]byte{'H', 'V', 'F', '1'}

// Store persists the owner encoding in a single file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

func (s *Store) Load() (Encoding, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotRegistered
		}
		return nil, err
	}
	defer f.Close()

	var hdr struct {
		Magic [4]byte
		Dim   uint32
	}
	if err := binary.Read(f, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if hdr.Magic != fileMagic {
		return nil, fmt.Errorf("%s: not an encoding file", s.path)
	}
	if hdr.Dim == 0 || hdr.Dim > 4096 {
		return nil, fmt.Errorf("%s: bad dimension %d", s.path, hdr.Dim)
	}

	enc := make(Encoding, hdr.Dim)
	if err := binary.Read(f, binary.LittleEndian, []float32(enc)); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: truncated", s.path)
		}
		return nil, fmt.Errorf("read encoding: %w", err)
	}
	return enc, nil
}

// Save replaces the stored encoding atomically.
func (s *Store) Save(enc Encoding) error {
	if len(enc) == 0 {
		return errors.New("empty encoding")
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, fileMagic)
	binary.Write(&buf, binary.LittleEndian, uint32(len(enc)))
	binary.Write(&buf, binary.LittleEndian, []float32(enc))

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".owner-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
