// Package gocvcam provides the camera and enrollment preview window on
// top of OpenCV.
package gocvcam

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"homevox/internal/face"
)

type Camera struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// Opener returns a face.OpenCamera for the given device index.
func Opener(index int) face.OpenCamera {
	return func() (face.Camera, error) {
		c, err := Open(index)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func Open(index int) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("camera %d not available", index)
	}
	return &Camera{vc: vc, mat: gocv.NewMat()}, nil
}

func (c *Camera) Read() (image.Image, error) {
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, errors.New("no frame")
	}
	return c.mat.ToImage()
}

func (c *Camera) Close() error {
	c.mat.Close()
	return c.vc.Close()
}

const hint = "Press 's' to Save, 'q' to Quit"

type Window struct {
	w *gocv.Window
}

func OpenWindow(title string) face.OpenPreview {
	return func() (face.Preview, error) {
		return &Window{w: gocv.NewWindow(title)}, nil
	}
}

func (w *Window) Show(img image.Image) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return
	}
	defer mat.Close()

	gocv.PutText(&mat, hint, image.Pt(50, 50), gocv.FontHersheySimplex, 0.7, color.RGBA{0, 255, 0, 0}, 2)
	w.w.IMShow(mat)
}

func (w *Window) Key(wait time.Duration) int {
	ms := int(wait / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	return w.w.WaitKey(ms) & 0xFF
}

func (w *Window) Close() {
	w.w.Close()
}
