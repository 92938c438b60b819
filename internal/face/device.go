package face

import (
	"context"
	"errors"
	"image"
	"sync"

	"golang.org/x/image/draw"
)

type Camera interface {
	Read() (image.Image, error)
	Close() error
}

type OpenCamera func() (Camera, error)

// Engine detects faces in a frame and returns one encoding per face.
type Engine interface {
	Encodings(img image.Image) ([]Encoding, error)
}

var ErrBusy = errors.New("camera in use")

// Device serializes access to the camera between the recognition loop
// and enrollment. At most one handle is open at any time.
type Device struct {
	open OpenCamera
	sem  chan struct{}
}

func NewDevice(open OpenCamera) *Device {
	return &Device{open: open, sem: make(chan struct{}, 1)}
}

type handle struct {
	Camera
	release func()
}

func (h *handle) Close() error {
	err := h.Camera.Close()
	h.release()
	return err
}

// TryAcquire opens the camera unless another owner holds it.
func (d *Device) TryAcquire() (Camera, error) {
	select {
	case d.sem <- struct{}{}:
	default:
		return nil, ErrBusy
	}
	return d.openHeld()
}

// Acquire waits for the camera to be free, then opens it.
func (d *Device) Acquire(ctx context.Context) (Camera, error) {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return d.openHeld()
}

func (d *Device) openHeld() (Camera, error) {
	cam, err := d.open()
	if err != nil {
		<-d.sem
		return nil, err
	}
	var once sync.Once
	return &handle{Camera: cam, release: func() {
		once.Do(func() { <-d.sem })
	}}, nil
}

// Downscale resizes img by factor, factors outside (0,1) return img as is.
func Downscale(img image.Image, factor float64) image.Image {
	if factor <= 0 || factor >= 1 {
		return img
	}
	b := img.Bounds()
	w := int(float64(b.Dx()) * factor)
	h := int(float64(b.Dy()) * factor)
	if w < 1 || h < 1 {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
