package enhancer

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ErrScaleMismatch is returned when an upscaler's output is not exactly
// Factor times the input size.
var ErrScaleMismatch = errors.New("upscaled image has unexpected size")

// Upscaler raises the linear resolution of a BGR image by a fixed integer
// factor. The returned Mat is owned by the caller.
type Upscaler interface {
	Upscale(img gocv.Mat) (gocv.Mat, error)
	Factor() int
	Close() error
}

// Kind names an upscaler implementation.
type Kind string

const (
	KindWaifu2x    Kind = "waifu2x"
	KindRealESRGAN Kind = "realesrgan"
	KindBicubic    Kind = "bicubic"
)

// Interpolator is a model-free Upscaler using bicubic interpolation.
type Interpolator struct {
	factor int
}

// NewInterpolator returns a bicubic upscaler; factors below 2 are raised to 2.
func NewInterpolator(factor int) *Interpolator {
	if factor < 2 {
		factor = 2
	}
	return &Interpolator{factor: factor}
}

// Upscale resizes img by the interpolator's factor.
func (u *Interpolator) Upscale(img gocv.Mat) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.NewMat(), fmt.Errorf("upscale: empty image")
	}
	out := gocv.NewMat()
	size := image.Pt(img.Cols()*u.factor, img.Rows()*u.factor)
	gocv.Resize(img, &out, size, 0, 0, gocv.InterpolationCubic)
	return out, nil
}

// Factor returns the linear scale factor.
func (u *Interpolator) Factor() int {
	return u.factor
}

// Close is a no-op.
func (u *Interpolator) Close() error {
	return nil
}

// CheckScale verifies that out is exactly factor times in.
func CheckScale(in, out gocv.Mat, factor int) error {
	if out.Cols() != in.Cols()*factor || out.Rows() != in.Rows()*factor {
		return fmt.Errorf("%w: %dx%d from %dx%d at factor %d",
			ErrScaleMismatch, out.Cols(), out.Rows(), in.Cols(), in.Rows(), factor)
	}
	return nil
}
