package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(x1, y1, x2, y2 float32) BoundingBox {
	return BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func TestBoundingBox_IoU(t *testing.T) {
	a := box(0, 0, 10, 10)

	assert.Equal(t, float32(1), a.IoU(a))
	assert.Equal(t, float32(0), a.IoU(box(10, 0, 20, 10)), "touching boxes do not overlap")
	assert.InDelta(t, 25.0/175.0, a.IoU(box(5, 5, 15, 15)), 1e-6)
	assert.Equal(t, float32(0), box(0, 0, 0, 0).IoU(box(0, 0, 0, 0)))
}

func TestNMS(t *testing.T) {
	faces := []Face{
		{BoundingBox: box(0, 0, 10, 10), Score: 0.6},
		{BoundingBox: box(1, 1, 11, 11), Score: 0.9},
		{BoundingBox: box(50, 50, 60, 60), Score: 0.7},
		{BoundingBox: box(0, 0, 10, 9), Score: 0.8},
	}

	kept := nms(faces, 0.4)
	require.Len(t, kept, 2)
	assert.Equal(t, float32(0.9), kept[0].Score)
	assert.Equal(t, float32(0.7), kept[1].Score)

	assert.Empty(t, nms(nil, 0.4))
}

func TestDecodeLevel(t *testing.T) {
	s := &SCRFD{config: Config{InputSize: 64, ConfThreshold: 0.5, NMSThreshold: 0.4}}
	stride := 32
	anchors := (64 / stride) * (64 / stride) * numAnchors

	scores := make([]float32, anchors)
	boxes := make([]float32, anchors*4)
	kps := make([]float32, anchors*10)
	for i := range scores {
		scores[i] = -10
	}

	// anchor 0 sits at feature cell (0, 0), centre (16, 16)
	scores[0] = 10
	copy(boxes[0:4], []float32{0.25, 0.25, 0.5, 0.5})
	copy(kps[0:10], []float32{-0.1, -0.1, 0.1, -0.1, 0, 0, -0.1, 0.2, 0.1, 0.2})

	faces := s.decodeLevel(scores, boxes, kps, stride, 0.5, 100, 100)
	require.Len(t, faces, 1)

	f := faces[0]
	assert.InDelta(t, 16.0, f.BoundingBox.X1, 1e-4)
	assert.InDelta(t, 16.0, f.BoundingBox.Y1, 1e-4)
	assert.InDelta(t, 64.0, f.BoundingBox.X2, 1e-4)
	assert.InDelta(t, 64.0, f.BoundingBox.Y2, 1e-4)
	assert.InDelta(t, 25.6, f.Landmarks.LeftEye.X, 1e-4)
	assert.InDelta(t, 38.4, f.Landmarks.RightEye.X, 1e-4)
	assert.InDelta(t, 44.8, f.Landmarks.LeftMouth.Y, 1e-4)
	assert.Greater(t, f.Score, float32(0.99))

	pts := f.Landmarks.AlignmentPoints()
	assert.Equal(t, f.Landmarks.LeftEye, pts[0])
	assert.Equal(t, f.Landmarks.RightEye, pts[1])
	assert.Equal(t, f.Landmarks.LeftMouth, pts[2])
	assert.Equal(t, f.Landmarks.RightMouth, pts[3])
}
