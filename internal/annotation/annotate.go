package annotation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/dudu/facealign/internal/align"
	"github.com/dudu/facealign/internal/detector"
	"github.com/dudu/facealign/internal/imageio"
	"github.com/dudu/facealign/pkg/log"
)

// FaceDetector finds faces and their keypoints in a BGR image.
type FaceDetector interface {
	Detect(img gocv.Mat) ([]detector.Face, error)
}

// Annotator builds a Store by running a detector over a directory.
type Annotator struct {
	Detector FaceDetector
	// MinScore drops detections below this confidence.
	MinScore float32
	Logger   *logrus.Logger
}

// Annotate detects faces in every image of dir and records the usable ones
// into s. Unreadable files are logged and skipped. Returns the number of
// faces added.
func (a *Annotator) Annotate(ctx context.Context, dir string, s Store) (int, error) {
	logger := log.Or(a.Logger)

	names, err := imageio.ListImages(dir)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return added, err
		}

		n, err := a.annotateFile(filepath.Join(dir, name), name, s)
		if errors.Is(err, imageio.ErrUnreadableImage) {
			logger.WithFields(log.Fields{"file": name, "error": err.Error()}).Warn("skipping unreadable image")
			continue
		}
		if err != nil {
			return added, err
		}

		logger.WithFields(log.Fields{"file": name, "faces": n}).Info("annotated")
		added += n
	}
	return added, nil
}

func (a *Annotator) annotateFile(path, name string, s Store) (int, error) {
	img, err := imageio.Read(path)
	if err != nil {
		return 0, err
	}
	defer img.Close()

	faces, err := a.Detector.Detect(img)
	if err != nil {
		return 0, fmt.Errorf("detection failed for %s: %w", name, err)
	}

	// replace rather than extend earlier annotations of the same file
	delete(s, name)
	n := 0
	for _, f := range faces {
		if f.Score < a.MinScore {
			continue
		}
		lm := fromDetector(f.Landmarks)
		if lm.Validate() != nil {
			continue
		}
		s.Add(name, lm)
		n++
	}
	return n, nil
}

func fromDetector(l detector.Landmarks) align.LandmarkSet {
	pts := l.AlignmentPoints()
	vec := func(p detector.Point) r2.Vec { return r2.Vec{X: float64(p.X), Y: float64(p.Y)} }
	return align.LandmarkSet{
		EyeLeft:    vec(pts[0]),
		EyeRight:   vec(pts[1]),
		MouthLeft:  vec(pts[2]),
		MouthRight: vec(pts[3]),
	}
}
