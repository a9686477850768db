package align

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// ErrDegenerateLandmarks is returned for landmark sets whose eye or mouth
// vectors have no length, or whose coordinates are not finite.
var ErrDegenerateLandmarks = errors.New("degenerate landmarks")

// LandmarkSet holds the four points that drive alignment, in source image
// pixel coordinates.
type LandmarkSet struct {
	EyeLeft    r2.Vec
	EyeRight   r2.Vec
	MouthLeft  r2.Vec
	MouthRight r2.Vec
}

// Points returns the landmarks in their canonical order.
func (l LandmarkSet) Points() [4]r2.Vec {
	return [4]r2.Vec{l.EyeLeft, l.EyeRight, l.MouthLeft, l.MouthRight}
}

// EyeToEye is the vector from the left to the right eye.
func (l LandmarkSet) EyeToEye() r2.Vec {
	return r2.Sub(l.EyeRight, l.EyeLeft)
}

// EyeAvg is the midpoint of the eyes.
func (l LandmarkSet) EyeAvg() r2.Vec {
	return r2.Scale(0.5, r2.Add(l.EyeLeft, l.EyeRight))
}

// EyeToMouth is the vector from the eye midpoint to the mouth midpoint.
func (l LandmarkSet) EyeToMouth() r2.Vec {
	mouthAvg := r2.Scale(0.5, r2.Add(l.MouthLeft, l.MouthRight))
	return r2.Sub(mouthAvg, l.EyeAvg())
}

// Validate rejects sets the orientation computation cannot handle.
func (l LandmarkSet) Validate() error {
	for i, p := range l.Points() {
		if !finite(p.X) || !finite(p.Y) {
			return fmt.Errorf("%w: point %d is not finite", ErrDegenerateLandmarks, i)
		}
	}
	if r2.Norm(l.EyeToEye()) == 0 {
		return fmt.Errorf("%w: eyes coincide", ErrDegenerateLandmarks)
	}
	if r2.Norm(l.EyeToMouth()) == 0 {
		return fmt.Errorf("%w: mouth midpoint coincides with eye midpoint", ErrDegenerateLandmarks)
	}
	// x = eye_to_eye - rot90(eye_to_mouth) is normalized below
	if r2.Norm(r2.Sub(l.EyeToEye(), rot90(l.EyeToMouth()))) == 0 {
		return fmt.Errorf("%w: crop axis has no length", ErrDegenerateLandmarks)
	}
	return nil
}

// Quad is the oriented crop rectangle: top-left, bottom-left, bottom-right,
// top-right in the frame of the face.
type Quad [4]r2.Vec

// ComputeQuad derives the crop quad and its side length (qsize) from the
// landmarks using the framing constants of profile.
func ComputeQuad(l LandmarkSet, profile Profile) (Quad, float64, error) {
	if err := l.Validate(); err != nil {
		return Quad{}, 0, err
	}
	c := profile.Constants()

	eyeToEye := l.EyeToEye()
	eyeToMouth := l.EyeToMouth()

	x := r2.Unit(r2.Sub(eyeToEye, rot90(eyeToMouth)))
	x = r2.Scale(c.HalfSize(r2.Norm(eyeToEye), r2.Norm(eyeToMouth)), x)
	y := rot90(x)

	center := r2.Add(l.EyeAvg(), r2.Scale(c.CenterOffset, eyeToMouth))

	q := Quad{
		r2.Sub(r2.Sub(center, x), y),
		r2.Add(r2.Sub(center, x), y),
		r2.Add(r2.Add(center, x), y),
		r2.Sub(r2.Add(center, x), y),
	}
	return q, r2.Norm(x) * 2, nil
}

// Scale multiplies every corner by f.
func (q Quad) Scale(f float64) Quad {
	for i := range q {
		q[i] = r2.Scale(f, q[i])
	}
	return q
}

// Translate adds d to every corner.
func (q Quad) Translate(d r2.Vec) Quad {
	for i := range q {
		q[i] = r2.Add(q[i], d)
	}
	return q
}

// Bounds returns floor(min) and ceil(max) of the corners as a rectangle.
func (q Quad) Bounds() image.Rectangle {
	minX, minY := q[0].X, q[0].Y
	maxX, maxY := q[0].X, q[0].Y
	for _, p := range q[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return image.Rect(
		int(math.Floor(minX)), int(math.Floor(minY)),
		int(math.Ceil(maxX)), int(math.Ceil(maxY)),
	)
}

// Within reports whether every corner lies inside a w x h image.
func (q Quad) Within(w, h int) bool {
	for _, p := range q {
		if p.X < 0 || p.Y < 0 || p.X > float64(w) || p.Y > float64(h) {
			return false
		}
	}
	return true
}

// shrinkFactor returns the integer downsample factor for a quad of side
// qsize rendered at outputSize.
func shrinkFactor(qsize float64, outputSize int) int {
	return int(math.Floor(qsize / float64(outputSize) * 0.5))
}

// borderFor is the context margin kept around the quad.
func borderFor(qsize float64) int {
	return max(int(math.RoundToEven(qsize*0.1)), 3)
}

// cropRect expands the quad bounds by border and clamps them to size. The
// result is empty when the expanded bounds miss the image entirely.
func cropRect(q Quad, border int, size image.Point) image.Rectangle {
	return q.Bounds().Inset(-border).Intersect(image.Rectangle{Max: size})
}

// Pad holds per-side pad amounts in pixels.
type Pad struct {
	Left, Top, Right, Bottom int
}

// Max returns the largest side.
func (p Pad) Max() int {
	return max(p.Left, p.Top, p.Right, p.Bottom)
}

// AtLeast raises every side to n.
func (p Pad) AtLeast(n int) Pad {
	return Pad{max(p.Left, n), max(p.Top, n), max(p.Right, n), max(p.Bottom, n)}
}

// requiredPad returns how far the quad plus border extends past each edge
// of a size image.
func requiredPad(q Quad, border int, size image.Point) Pad {
	b := q.Bounds()
	return Pad{
		Left:   max(-b.Min.X+border, 0),
		Top:    max(-b.Min.Y+border, 0),
		Right:  max(b.Max.X-size.X+border, 0),
		Bottom: max(b.Max.Y-size.Y+border, 0),
	}
}

// needsPad reports whether padding triggers. The threshold compares the
// largest side against border-4 and the caller then raises all four sides.
func needsPad(p Pad, border int) bool {
	return p.Max() > border-4
}

// rot90 is (x, y) -> (-y, x).
func rot90(v r2.Vec) r2.Vec {
	return r2.Vec{X: -v.Y, Y: v.X}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
