package detector

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/facealign/internal/inference"
)

// Config holds SCRFD detection settings.
type Config struct {
	InputSize     int
	ConfThreshold float32
	NMSThreshold  float32
}

// DefaultConfig matches the 640px SCRFD export.
func DefaultConfig() Config {
	return Config{InputSize: 640, ConfThreshold: 0.5, NMSThreshold: 0.4}
}

var featureStrides = []int{8, 16, 32}

// anchors per feature map position
const numAnchors = 2

// SCRFD implements the SCRFD face detector
type SCRFD struct {
	session *inference.Session
	config  Config
}

// NewSCRFD creates a new SCRFD detector
func NewSCRFD(modelPath string, config Config, opts inference.Options) (*SCRFD, error) {
	if config.InputSize <= 0 || config.InputSize%32 != 0 {
		return nil, fmt.Errorf("SCRFD input size %d must be a positive multiple of 32", config.InputSize)
	}

	// 1 input and 9 outputs (3 levels x score, bbox, kps)
	inputNames := []string{"input.1"}
	outputNames := []string{
		"score_8", "score_16", "score_32",
		"bbox_8", "bbox_16", "bbox_32",
		"kps_8", "kps_16", "kps_32",
	}

	session, err := inference.NewSession(modelPath, inputNames, outputNames, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create SCRFD session: %w", err)
	}

	return &SCRFD{session: session, config: config}, nil
}

// Detect finds faces in a BGR image. Results are in image coordinates,
// highest score first.
func (s *SCRFD) Detect(img gocv.Mat) ([]Face, error) {
	if img.Empty() {
		return nil, fmt.Errorf("detect: empty image")
	}
	size := s.config.InputSize

	blob, scale := s.preprocess(img)
	defer blob.Close()

	floatData, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read input blob: %w", err)
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, 3, int64(size), int64(size)), floatData)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := make([]ort.Value, 9)
	tensors := make([]*ort.Tensor[float32], 9)
	defer func() {
		for _, t := range tensors {
			if t != nil {
				t.Destroy()
			}
		}
	}()

	for level, stride := range featureStrides {
		anchors := int64((size / stride) * (size / stride) * numAnchors)
		for k, width := range []int64{1, 4, 10} {
			t, err := inference.CreateEmptyTensor[float32]([]int64{anchors, width})
			if err != nil {
				return nil, fmt.Errorf("failed to create output tensor: %w", err)
			}
			outputs[k*3+level] = t
			tensors[k*3+level] = t
		}
	}

	if err := s.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	var faces []Face
	for level, stride := range featureStrides {
		faces = append(faces, s.decodeLevel(
			tensors[level].GetData(), tensors[level+3].GetData(), tensors[level+6].GetData(),
			stride, scale, img.Cols(), img.Rows(),
		)...)
	}

	return nms(faces, s.config.NMSThreshold), nil
}

// preprocess letterboxes img into the top-left of an InputSize square and
// returns the NCHW blob normalized to (x-127.5)/128 in RGB order.
func (s *SCRFD) preprocess(img gocv.Mat) (gocv.Mat, float32) {
	size := s.config.InputSize
	scale := float32(size) / float32(max(img.Rows(), img.Cols()))

	newWidth := int(float32(img.Cols()) * scale)
	newHeight := int(float32(img.Rows()) * scale)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(newWidth, newHeight), 0, 0, gocv.InterpolationLinear)

	padded := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), size, size, gocv.MatTypeCV8UC3)
	defer padded.Close()
	roi := padded.Region(image.Rect(0, 0, newWidth, newHeight))
	resized.CopyTo(&roi)
	roi.Close()

	blob := gocv.BlobFromImage(padded, 1.0/128.0, image.Pt(size, size),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	return blob, scale
}

// decodeLevel turns one stride's raw outputs into faces above the
// confidence threshold.
func (s *SCRFD) decodeLevel(scores, boxes, kps []float32, stride int, scale float32, width, height int) []Face {
	var faces []Face
	fm := s.config.InputSize / stride
	st := float32(stride)

	anchor := 0
	for y := 0; y < fm; y++ {
		for x := 0; x < fm; x++ {
			cx := (float32(x) + 0.5) * st
			cy := (float32(y) + 0.5) * st
			for a := 0; a < numAnchors; a++ {
				score := sigmoid(scores[anchor])
				if score > s.config.ConfThreshold {
					b := boxes[anchor*4 : anchor*4+4]
					k := kps[anchor*10 : anchor*10+10]
					pt := func(i int) Point {
						return Point{X: (cx + k[i*2]*st) / scale, Y: (cy + k[i*2+1]*st) / scale}
					}

					faces = append(faces, Face{
						BoundingBox: BoundingBox{
							X1: clamp((cx-b[0]*st)/scale, 0, float32(width)),
							Y1: clamp((cy-b[1]*st)/scale, 0, float32(height)),
							X2: clamp((cx+b[2]*st)/scale, 0, float32(width)),
							Y2: clamp((cy+b[3]*st)/scale, 0, float32(height)),
						},
						Landmarks: Landmarks{
							LeftEye:    pt(0),
							RightEye:   pt(1),
							Nose:       pt(2),
							LeftMouth:  pt(3),
							RightMouth: pt(4),
						},
						Score: score,
					})
				}
				anchor++
			}
		}
	}
	return faces
}

// Close releases detector resources
func (s *SCRFD) Close() error {
	return s.session.Destroy()
}

func sigmoid(x float32) float32 {
	return 1.0 / (1.0 + float32(math.Exp(float64(-x))))
}

func clamp(x, lo, hi float32) float32 {
	return min(max(x, lo), hi)
}
