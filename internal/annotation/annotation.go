package annotation

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	jsoniter "github.com/json-iterator/go"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/dudu/facealign/internal/align"
	"github.com/dudu/facealign/internal/imageio"
)

// ErrMalformedLandmarks is returned for landmark lists that do not split
// into whole faces of four (x, y) points.
var ErrMalformedLandmarks = errors.New("malformed landmark list")

// PointsPerFace is the number of landmarks stored for each face.
const PointsPerFace = 4

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store maps a source image file name to the flat list of its landmark
// points. Every consecutive group of four points is one face: eye_left,
// eye_right, mouth_left, mouth_right.
type Store map[string][][]float64

// Load reads a store from a JSON file.
func Load(path string) (Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read annotations: %w", err)
	}
	var s Store
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode annotations %s: %w", path, err)
	}
	if s == nil {
		s = Store{}
	}
	return s, nil
}

// Save writes the store as indented JSON, replacing path atomically.
func Save(path string, s Store) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode annotations: %w", err)
	}
	return imageio.WriteFileAtomic(path, data)
}

// Merge combines stores; entries of later stores replace earlier ones.
func Merge(stores ...Store) Store {
	out := Store{}
	for _, s := range stores {
		maps.Copy(out, s)
	}
	return out
}

// Files returns the annotated file names in sorted order.
func (s Store) Files() []string {
	return slices.Sorted(maps.Keys(s))
}

// Has reports whether filename is annotated.
func (s Store) Has(filename string) bool {
	_, ok := s[filename]
	return ok
}

// Add appends one face to filename's entry.
func (s Store) Add(filename string, lm align.LandmarkSet) {
	for _, p := range lm.Points() {
		s[filename] = append(s[filename], []float64{p.X, p.Y})
	}
}

// Faces splits filename's entry into landmark sets. A missing entry yields
// no faces and no error.
func (s Store) Faces(filename string) ([]align.LandmarkSet, error) {
	points, ok := s[filename]
	if !ok {
		return nil, nil
	}
	if len(points)%PointsPerFace != 0 {
		return nil, fmt.Errorf("%w: %s has %d points, not a multiple of %d",
			ErrMalformedLandmarks, filename, len(points), PointsPerFace)
	}

	faces := make([]align.LandmarkSet, 0, len(points)/PointsPerFace)
	for i := 0; i < len(points); i += PointsPerFace {
		var v [PointsPerFace]r2.Vec
		for j := range v {
			p := points[i+j]
			if len(p) != 2 {
				return nil, fmt.Errorf("%w: %s point %d has %d coordinates",
					ErrMalformedLandmarks, filename, i+j, len(p))
			}
			v[j] = r2.Vec{X: p[0], Y: p[1]}
		}
		faces = append(faces, align.LandmarkSet{
			EyeLeft: v[0], EyeRight: v[1], MouthLeft: v[2], MouthRight: v[3],
		})
	}
	return faces, nil
}
