package align

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

// celebA landmarks from the reference annotation (178x218 images).
func celebA() LandmarkSet {
	return LandmarkSet{
		EyeLeft:    r2.Vec{X: 69, Y: 111},
		EyeRight:   r2.Vec{X: 108, Y: 111},
		MouthLeft:  r2.Vec{X: 72, Y: 152},
		MouthRight: r2.Vec{X: 105, Y: 152},
	}
}

func assertQuadInDelta(t *testing.T, want, got Quad, delta float64) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i].X, got[i].X, delta, "corner %d x", i)
		assert.InDelta(t, want[i].Y, got[i].Y, delta, "corner %d y", i)
	}
}

func TestComputeQuad_Profile1024(t *testing.T) {
	q, qsize, err := ComputeQuad(celebA(), Profile1024)
	require.NoError(t, err)

	assert.InDelta(t, 156.0, qsize, 1e-9)
	assertQuadInDelta(t, Quad{
		{X: 10.5, Y: 37.1},
		{X: 10.5, Y: 193.1},
		{X: 166.5, Y: 193.1},
		{X: 166.5, Y: 37.1},
	}, q, 1e-9)
}

func TestComputeQuad_Legacy(t *testing.T) {
	q, qsize, err := ComputeQuad(celebA(), ProfileLegacy)
	require.NoError(t, err)

	half := (39*1.641 + 41*1.56) / 2
	cy := 111 + 41*0.317
	assert.InDelta(t, 2*half, qsize, 1e-9)
	assertQuadInDelta(t, Quad{
		{X: 88.5 - half, Y: cy - half},
		{X: 88.5 - half, Y: cy + half},
		{X: 88.5 + half, Y: cy + half},
		{X: 88.5 + half, Y: cy - half},
	}, q, 1e-9)
}

func TestComputeQuad_LevelEyesGiveAxisAlignedQuad(t *testing.T) {
	q, _, err := ComputeQuad(celebA(), Profile1024)
	require.NoError(t, err)

	// top edge runs from corner 0 to corner 3, left edge from 0 to 1
	assert.InDelta(t, q[0].Y, q[3].Y, 1e-9)
	assert.InDelta(t, q[0].X, q[1].X, 1e-9)
	assert.Less(t, q[0].Y, q[1].Y, "corner 1 must be below corner 0")
	assert.Less(t, q[0].X, q[3].X, "corner 3 must be right of corner 0")
}

func TestComputeQuad_Equivariance(t *testing.T) {
	base := celebA()
	want, wantSize, err := ComputeQuad(base, Profile1024)
	require.NoError(t, err)

	angle := 0.7
	scale := 1.8
	shift := r2.Vec{X: -40, Y: 250}
	transform := func(p r2.Vec) r2.Vec {
		return r2.Add(r2.Scale(scale, r2.Rotate(p, angle, r2.Vec{})), shift)
	}

	moved := LandmarkSet{
		EyeLeft:    transform(base.EyeLeft),
		EyeRight:   transform(base.EyeRight),
		MouthLeft:  transform(base.MouthLeft),
		MouthRight: transform(base.MouthRight),
	}
	got, gotSize, err := ComputeQuad(moved, Profile1024)
	require.NoError(t, err)

	assert.InDelta(t, wantSize*scale, gotSize, 1e-9)
	var expected Quad
	for i := range want {
		expected[i] = transform(want[i])
	}
	assertQuadInDelta(t, expected, got, 1e-9)
}

func TestLandmarkSet_Validate(t *testing.T) {
	tests := []struct {
		name string
		lm   LandmarkSet
	}{
		{
			name: "eyes coincide",
			lm: LandmarkSet{
				EyeLeft: r2.Vec{X: 10, Y: 10}, EyeRight: r2.Vec{X: 10, Y: 10},
				MouthLeft: r2.Vec{X: 5, Y: 30}, MouthRight: r2.Vec{X: 15, Y: 30},
			},
		},
		{
			name: "mouth on eye midpoint",
			lm: LandmarkSet{
				EyeLeft: r2.Vec{X: 0, Y: 10}, EyeRight: r2.Vec{X: 20, Y: 10},
				MouthLeft: r2.Vec{X: 5, Y: 10}, MouthRight: r2.Vec{X: 15, Y: 10},
			},
		},
		{
			name: "crop axis cancels",
			lm: LandmarkSet{
				EyeLeft: r2.Vec{X: 0, Y: 0}, EyeRight: r2.Vec{X: 10, Y: 0},
				MouthLeft: r2.Vec{X: 4, Y: -10}, MouthRight: r2.Vec{X: 6, Y: -10},
			},
		},
		{
			name: "not finite",
			lm: LandmarkSet{
				EyeLeft: r2.Vec{X: math.NaN(), Y: 0}, EyeRight: r2.Vec{X: 10, Y: 0},
				MouthLeft: r2.Vec{X: 4, Y: 10}, MouthRight: r2.Vec{X: 6, Y: 10},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.lm.Validate()
			assert.ErrorIs(t, err, ErrDegenerateLandmarks)

			_, _, err = ComputeQuad(tt.lm, Profile1024)
			assert.ErrorIs(t, err, ErrDegenerateLandmarks)
		})
	}

	assert.NoError(t, celebA().Validate())
}

func TestShrinkFactor(t *testing.T) {
	assert.Equal(t, 0, shrinkFactor(156, 256))
	assert.Equal(t, 1, shrinkFactor(156, 64))
	assert.Equal(t, 2, shrinkFactor(156, 32))
	assert.Equal(t, 4, shrinkFactor(2048, 256))
}

func TestBorderFor(t *testing.T) {
	assert.Equal(t, 16, borderFor(156))
	assert.Equal(t, 3, borderFor(10))
	// 12.5 rounds half to even
	assert.Equal(t, 12, borderFor(125))
}

func TestCropAndPad_CelebAScenario(t *testing.T) {
	q, qsize, err := ComputeQuad(celebA(), Profile1024)
	require.NoError(t, err)

	border := borderFor(qsize)
	crop := cropRect(q, border, image.Pt(178, 218))
	assert.Equal(t, image.Rect(0, 21, 178, 210), crop)

	q = q.Translate(r2.Vec{X: -float64(crop.Min.X), Y: -float64(crop.Min.Y)})
	pad := requiredPad(q, border, crop.Size())
	assert.Equal(t, Pad{Left: 6, Top: 0, Right: 5, Bottom: 0}, pad)
	assert.False(t, needsPad(pad, border))
	assert.True(t, q.Within(crop.Dx(), crop.Dy()))
}

func TestCropRect_OffImage(t *testing.T) {
	q := Quad{{X: 240, Y: -32}, {X: 240, Y: 129}, {X: 400, Y: 129}, {X: 400, Y: -32}}
	assert.True(t, cropRect(q, 16, image.Pt(100, 100)).Empty())

	partial := q.Translate(r2.Vec{X: -200})
	assert.Equal(t, image.Rect(24, 0, 100, 100), cropRect(partial, 16, image.Pt(100, 100)))
}

func TestNeedsPad_OneSideRaisesAll(t *testing.T) {
	border := 16
	pad := Pad{Left: 13}
	require.True(t, needsPad(pad, border))

	assert.Equal(t, Pad{Left: 48, Top: 48, Right: 48, Bottom: 48}, pad.AtLeast(48))
	assert.Equal(t, Pad{Left: 60, Top: 48, Right: 48, Bottom: 48}, Pad{Left: 60}.AtLeast(48))
	assert.False(t, needsPad(Pad{Left: 12}, border))
}

func TestQuad_ScaleTranslateBounds(t *testing.T) {
	q := Quad{{X: 1.5, Y: 2.2}, {X: 1.5, Y: 8.9}, {X: 7.1, Y: 8.9}, {X: 7.1, Y: 2.2}}

	assert.Equal(t, image.Rect(1, 2, 8, 9), q.Bounds())
	assert.Equal(t, image.Rect(3, 4, 15, 18), q.Scale(2).Bounds())
	assert.Equal(t, image.Rect(-9, 2, -2, 9), q.Translate(r2.Vec{X: -10}).Bounds())

	assert.True(t, q.Within(8, 9))
	assert.False(t, q.Within(7, 9))
	assert.False(t, q.Translate(r2.Vec{X: -2}).Within(100, 100))
}
