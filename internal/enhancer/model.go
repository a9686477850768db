package enhancer

import (
	"fmt"
	"image/color"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/facealign/internal/inference"
)

// ModelUpscaler runs an ONNX super-resolution network.
// Input: NCHW RGB in [0,1], Output: NCHW RGB in [0,1] at Factor x size.
type ModelUpscaler struct {
	session *inference.Session
	factor  int
	edgePad int
}

// NewWaifu2x loads a waifu2x 2x model (noise1_scale2.0x export). The model
// expects 7 pixels of replicated border on every side and consumes them.
func NewWaifu2x(modelPath string, opts inference.Options) (*ModelUpscaler, error) {
	return newModelUpscaler(modelPath, 2, 7, opts)
}

// NewRealESRGAN loads a Real-ESRGAN x4v3 model (4x, no border).
func NewRealESRGAN(modelPath string, opts inference.Options) (*ModelUpscaler, error) {
	return newModelUpscaler(modelPath, 4, 0, opts)
}

func newModelUpscaler(modelPath string, factor, edgePad int, opts inference.Options) (*ModelUpscaler, error) {
	// Exported models do not agree on tensor names
	inputNames, outputNames, err := inference.ModelIO(modelPath)
	if err != nil {
		return nil, err
	}
	if len(inputNames) != 1 || len(outputNames) != 1 {
		return nil, fmt.Errorf("upscaler model %s: want 1 input and 1 output, got %d and %d",
			modelPath, len(inputNames), len(outputNames))
	}

	session, err := inference.NewSession(modelPath, inputNames, outputNames, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create upscaler session: %w", err)
	}

	return &ModelUpscaler{
		session: session,
		factor:  factor,
		edgePad: edgePad,
	}, nil
}

// Upscale runs the network over img.
func (m *ModelUpscaler) Upscale(img gocv.Mat) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.NewMat(), fmt.Errorf("upscale: empty image")
	}

	src := img
	if m.edgePad > 0 {
		padded := gocv.NewMat()
		defer padded.Close()
		gocv.CopyMakeBorder(img, &padded, m.edgePad, m.edgePad, m.edgePad, m.edgePad,
			gocv.BorderReplicate, color.RGBA{})
		src = padded
	}

	height := src.Rows()
	width := src.Cols()
	floatData := preprocess(src)

	inputTensor, err := ort.NewTensor(
		ort.NewShape(1, 3, int64(height), int64(width)),
		floatData,
	)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outHeight := img.Rows() * m.factor
	outWidth := img.Cols() * m.factor

	outputTensor, err := inference.CreateEmptyTensor[float32]([]int64{1, 3, int64(outHeight), int64(outWidth)})
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	err = m.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor})
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("upscaler inference failed: %w", err)
	}

	result, err := postprocess(outputTensor.GetData(), outHeight, outWidth)
	if err != nil {
		return gocv.NewMat(), err
	}
	if err := CheckScale(img, result, m.factor); err != nil {
		result.Close()
		return gocv.NewMat(), err
	}
	return result, nil
}

// Factor returns the model's linear scale factor.
func (m *ModelUpscaler) Factor() int {
	return m.factor
}

// Close releases resources
func (m *ModelUpscaler) Close() error {
	return m.session.Destroy()
}

// preprocess converts a BGR Mat to NCHW RGB floats in [0,1].
func preprocess(img gocv.Mat) []float32 {
	height := img.Rows()
	width := img.Cols()
	plane := height * width
	floatData := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pixel := img.GetVecbAt(y, x)
			idx := y*width + x
			floatData[0*plane+idx] = float32(pixel[2]) / 255.0 // R
			floatData[1*plane+idx] = float32(pixel[1]) / 255.0 // G
			floatData[2*plane+idx] = float32(pixel[0]) / 255.0 // B
		}
	}
	return floatData
}

// postprocess converts NCHW RGB output in [0,1] to a BGR image.
func postprocess(output []float32, height, width int) (gocv.Mat, error) {
	size := height * width
	if len(output) < 3*size {
		return gocv.NewMat(), fmt.Errorf("%w: output tensor holds %d values, want %d",
			ErrScaleMismatch, len(output), 3*size)
	}
	pixels := make([]byte, size*3)

	for idx := 0; idx < size; idx++ {
		pixIdx := idx * 3
		pixels[pixIdx+0] = toByte(output[2*size+idx]) // B
		pixels[pixIdx+1] = toByte(output[1*size+idx]) // G
		pixels[pixIdx+2] = toByte(output[0*size+idx]) // R
	}

	result, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC3, pixels)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to build output image: %w", err)
	}
	return result, nil
}

func toByte(v float32) uint8 {
	return uint8(clamp(v*255.0+0.5, 0, 255))
}

func clamp(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
