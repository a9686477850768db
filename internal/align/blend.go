package align

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"slices"

	"gocv.io/x/gocv"
)

// padAndBlend extends img by pad using reflection and hides the reflected
// border: the area near the original edge is blended with a blurred copy
// and the far padding fades to the per-channel median colour.
func padAndBlend(img gocv.Mat, pad Pad, qsize float64) (gocv.Mat, error) {
	padded := gocv.NewMat()
	defer padded.Close()
	gocv.CopyMakeBorder(img, &padded, pad.Top, pad.Bottom, pad.Left, pad.Right,
		gocv.BorderReflect101, color.RGBA{})
	if padded.Empty() {
		return gocv.NewMat(), fmt.Errorf("pad: reflection padding produced an empty image")
	}

	work := gocv.NewMat()
	defer work.Close()
	padded.ConvertTo(&work, gocv.MatTypeCV32FC3)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gaussian(work, &blurred, qsize*0.02)

	data, err := work.DataPtrFloat32()
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("pad: %w", err)
	}
	blur, err := blurred.DataPtrFloat32()
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("pad: %w", err)
	}

	h, w := work.Rows(), work.Cols()
	mask := featherMask(w, h, pad)

	for i, m := range mask {
		weight := clamp01(m*3 + 1)
		for c := 0; c < 3; c++ {
			j := i*3 + c
			data[j] += (blur[j] - data[j]) * weight
		}
	}

	median := channelMedians(data)
	for i, m := range mask {
		weight := clamp01(m)
		if weight == 0 {
			continue
		}
		for c := 0; c < 3; c++ {
			j := i*3 + c
			data[j] += (median[c] - data[j]) * weight
		}
	}

	// ConvertTo rounds and saturates into [0, 255]
	out := gocv.NewMat()
	work.ConvertTo(&out, gocv.MatTypeCV8UC3)
	return out, nil
}

// featherMask returns, per pixel, the normalized distance into the padded
// border: 0 on the original edge, 1 on the outer edge of the padding and
// negative inside the original image.
func featherMask(w, h int, pad Pad) []float32 {
	mask := make([]float32, w*h)
	for y := 0; y < h; y++ {
		my := 1 - min(ratio(y, pad.Top), ratio(h-1-y, pad.Bottom))
		for x := 0; x < w; x++ {
			mx := 1 - min(ratio(x, pad.Left), ratio(w-1-x, pad.Right))
			mask[y*w+x] = max(mx, my)
		}
	}
	return mask
}

// gaussian blurs src with the given sigma, truncating the kernel at four
// sigma and reflecting at the image edge.
func gaussian(src gocv.Mat, dst *gocv.Mat, sigma float64) {
	if sigma <= 0 {
		src.CopyTo(dst)
		return
	}
	k := 2*int(4*sigma+0.5) + 1
	gocv.GaussianBlur(src, dst, image.Pt(k, k), sigma, sigma, gocv.BorderReflect)
}

// channelMedians returns the median of each of the three interleaved
// channels, averaging the middle pair for even counts.
func channelMedians(data []float32) [3]float32 {
	var out [3]float32
	n := len(data) / 3
	if n == 0 {
		return out
	}
	values := make([]float32, n)
	for c := 0; c < 3; c++ {
		for i := 0; i < n; i++ {
			values[i] = data[i*3+c]
		}
		slices.Sort(values)
		if n%2 == 1 {
			out[c] = values[n/2]
		} else {
			out[c] = (values[n/2-1] + values[n/2]) / 2
		}
	}
	return out
}

func ratio(v, pad int) float32 {
	if pad == 0 {
		return float32(math.Inf(1))
	}
	return float32(v) / float32(pad)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
