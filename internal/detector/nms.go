package detector

import (
	"cmp"
	"slices"
)

// nms keeps the highest scoring face of every group whose boxes overlap
// by more than iouThreshold. faces is reordered by descending score.
func nms(faces []Face, iouThreshold float32) []Face {
	if len(faces) == 0 {
		return faces
	}

	slices.SortStableFunc(faces, func(a, b Face) int {
		return cmp.Compare(b.Score, a.Score)
	})

	suppressed := make([]bool, len(faces))
	result := make([]Face, 0, len(faces))

	for i := range faces {
		if suppressed[i] {
			continue
		}
		result = append(result, faces[i])
		for j := i + 1; j < len(faces); j++ {
			if !suppressed[j] && faces[i].BoundingBox.IoU(faces[j].BoundingBox) > iouThreshold {
				suppressed[j] = true
			}
		}
	}

	return result
}
