package align

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/dudu/facealign/internal/enhancer"
	"github.com/dudu/facealign/pkg/log"
)

// maxUpscalePasses caps how many times the upscaler may be applied to a
// single face.
const maxUpscalePasses = 3

var (
	// ErrInvalidConfig is returned for unusable output/transform sizes.
	ErrInvalidConfig = errors.New("invalid alignment config")
	// ErrInvalidImage is returned for empty or non 3-channel inputs.
	ErrInvalidImage = errors.New("invalid source image")
	// ErrFaceOutsideImage is returned when the crop around the face quad
	// does not overlap the image.
	ErrFaceOutsideImage = errors.New("face lies outside the image")
)

// Config holds the per-run alignment settings.
type Config struct {
	OutputSize    int
	TransformSize int
	EnablePadding bool
	Profile       Profile
}

// DefaultConfig returns the settings the dataset driver uses for profile.
func DefaultConfig(profile Profile) Config {
	if profile == ProfileLegacy {
		return Config{OutputSize: 128, TransformSize: 512, EnablePadding: true, Profile: ProfileLegacy}
	}
	return Config{OutputSize: 256, TransformSize: 1024, EnablePadding: true, Profile: Profile1024}
}

// Validate checks the size relationship.
func (c Config) Validate() error {
	if c.OutputSize <= 0 || c.TransformSize <= 0 {
		return fmt.Errorf("%w: sizes must be positive (output %d, transform %d)",
			ErrInvalidConfig, c.OutputSize, c.TransformSize)
	}
	if c.OutputSize > c.TransformSize {
		return fmt.Errorf("%w: output size %d exceeds transform size %d",
			ErrInvalidConfig, c.OutputSize, c.TransformSize)
	}
	return nil
}

// Trace records what each pass did to the working image.
type Trace struct {
	QSize        float64
	Shrink       int
	Cropped      bool
	Crop         image.Rectangle
	Padded       bool
	Pad          Pad
	UpscaleCalls int
	WorkingSize  image.Point // working image size at the final resample
}

// Result is one aligned face. Image is an OutputSize square BGR Mat that
// the caller must Close. Quad holds the corners that were mapped onto the
// output, in the coordinates of the working image after shrink, crop, pad
// and upscale, not of the source image.
type Result struct {
	Image gocv.Mat
	Quad  Quad
	Trace Trace
}

// Close releases the result image.
func (r *Result) Close() error {
	return r.Image.Close()
}

// Aligner maps faces into the canonical square frame.
type Aligner struct {
	config   Config
	upscaler enhancer.Upscaler
	logger   *logrus.Logger
}

// NewAligner creates an aligner. A nil upscaler falls back to bicubic 2x
// interpolation; a nil logger uses the process logger.
func NewAligner(config Config, upscaler enhancer.Upscaler, logger *logrus.Logger) (*Aligner, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if upscaler == nil {
		upscaler = enhancer.NewInterpolator(2)
	}
	return &Aligner{
		config:   config,
		upscaler: upscaler,
		logger:   log.Or(logger),
	}, nil
}

// Config returns the aligner's settings.
func (a *Aligner) Config() Config {
	return a.config
}

// Align crops, straightens and resamples the face described by lm out of
// img. img is not modified.
func (a *Aligner) Align(img gocv.Mat, lm LandmarkSet) (*Result, error) {
	if img.Empty() || img.Channels() != 3 {
		return nil, fmt.Errorf("%w: need a non-empty 3-channel image, got %d channels",
			ErrInvalidImage, img.Channels())
	}

	quad, qsize, err := ComputeQuad(lm, a.config.Profile)
	if err != nil {
		return nil, err
	}
	trace := Trace{QSize: qsize}

	work := img
	owned := false
	swap := func(next gocv.Mat) {
		if owned {
			work.Close()
		}
		work = next
		owned = true
	}
	defer func() {
		if owned {
			work.Close()
		}
	}()

	// Shrink.
	shrink := shrinkFactor(qsize, a.config.OutputSize)
	trace.Shrink = shrink
	if shrink > 1 {
		size := image.Pt(
			int(math.RoundToEven(float64(work.Cols())/float64(shrink))),
			int(math.RoundToEven(float64(work.Rows())/float64(shrink))),
		)
		small := gocv.NewMat()
		gocv.Resize(work, &small, size, 0, 0, gocv.InterpolationArea)
		swap(small)
		quad = quad.Scale(1 / float64(shrink))
		qsize /= float64(shrink)
	}

	// Crop.
	border := borderFor(qsize)
	crop := cropRect(quad, border, image.Pt(work.Cols(), work.Rows()))
	if crop.Empty() {
		return nil, fmt.Errorf("%w: face quad %v lies outside the %dx%d image",
			ErrFaceOutsideImage, quad.Bounds(), work.Cols(), work.Rows())
	}
	if crop.Dx() < work.Cols() || crop.Dy() < work.Rows() {
		roi := work.Region(crop)
		cropped := roi.Clone()
		roi.Close()
		swap(cropped)
		quad = quad.Translate(r2.Vec{X: -float64(crop.Min.X), Y: -float64(crop.Min.Y)})
		trace.Cropped = true
		trace.Crop = crop
	}

	// Pad.
	pad := requiredPad(quad, border, image.Pt(work.Cols(), work.Rows()))
	if a.config.EnablePadding && needsPad(pad, border) {
		pad = pad.AtLeast(int(math.RoundToEven(qsize * 0.3)))
		padded, err := padAndBlend(work, pad, qsize)
		if err != nil {
			return nil, err
		}
		swap(padded)
		quad = quad.Translate(r2.Vec{X: float64(pad.Left), Y: float64(pad.Top)})
		trace.Padded = true
		trace.Pad = pad
	}

	// Raise resolution.
	for i := 0; i < maxUpscalePasses; i++ {
		if work.Cols() >= a.config.OutputSize && work.Rows() >= a.config.OutputSize {
			continue
		}
		up, err := a.upscaler.Upscale(work)
		if err != nil {
			return nil, fmt.Errorf("upscale pass %d: %w", i+1, err)
		}
		factor := a.upscaler.Factor()
		if err := enhancer.CheckScale(work, up, factor); err != nil {
			up.Close()
			return nil, err
		}
		swap(up)
		quad = quad.Scale(float64(factor))
		trace.UpscaleCalls++
	}
	trace.WorkingSize = image.Pt(work.Cols(), work.Rows())

	// Transform.
	out, err := a.resample(work, quad)
	if err != nil {
		return nil, err
	}

	a.logger.WithFields(log.Fields{
		"qsize":   trace.QSize,
		"shrink":  trace.Shrink,
		"cropped": trace.Cropped,
		"padded":  trace.Padded,
		"upscale": trace.UpscaleCalls,
	}).Debug("face aligned")

	return &Result{Image: out, Quad: quad, Trace: trace}, nil
}

// resample maps quad onto a TransformSize square with bicubic sampling and
// reduces it to OutputSize when smaller.
func (a *Aligner) resample(work gocv.Mat, quad Quad) (gocv.Mat, error) {
	size := a.config.TransformSize
	// quad corners are pixel centres; the square's corners sit half a
	// pixel outside the first and last pixel centres
	lo, hi := float32(-0.5), float32(size)-0.5
	src := gocv.NewPoint2fVectorFromPoints([]gocv.Point2f{
		point2f(quad[0]), point2f(quad[1]), point2f(quad[2]), point2f(quad[3]),
	})
	defer src.Close()
	dst := gocv.NewPoint2fVectorFromPoints([]gocv.Point2f{
		{X: lo, Y: lo}, {X: lo, Y: hi}, {X: hi, Y: hi}, {X: hi, Y: lo},
	})
	defer dst.Close()

	m := gocv.GetPerspectiveTransform2f(src, dst)
	defer m.Close()
	if m.Empty() {
		return gocv.NewMat(), fmt.Errorf("%w: no perspective transform for quad", ErrDegenerateLandmarks)
	}

	warped := gocv.NewMat()
	gocv.WarpPerspectiveWithParams(work, &warped, m, image.Pt(size, size),
		gocv.InterpolationCubic, gocv.BorderConstant, color.RGBA{})

	if a.config.OutputSize >= size {
		return warped, nil
	}
	defer warped.Close()
	return reduce(warped, a.config.OutputSize), nil
}

// reduce downsamples a square image to size by area averaging, so every
// source pixel contributes to the output.
func reduce(src gocv.Mat, size int) gocv.Mat {
	out := gocv.NewMat()
	gocv.Resize(src, &out, image.Pt(size, size), 0, 0, gocv.InterpolationArea)
	return out
}

func point2f(v r2.Vec) gocv.Point2f {
	return gocv.Point2f{X: float32(v.X), Y: float32(v.Y)}
}
