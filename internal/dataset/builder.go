package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/dudu/facealign/internal/align"
	"github.com/dudu/facealign/internal/annotation"
	"github.com/dudu/facealign/internal/imageio"
	"github.com/dudu/facealign/pkg/log"
)

// FaceAligner produces one aligned face per landmark set.
type FaceAligner interface {
	Align(img gocv.Mat, lm align.LandmarkSet) (*align.Result, error)
}

// Timing accumulates time spent in each stage of a build.
type Timing struct {
	Read  time.Duration
	Align time.Duration
	Write time.Duration
	Total time.Duration
}

// Stats summarises a finished (or failed) build.
type Stats struct {
	RunID  string
	Files  int
	Faces  int
	Next   int // index the next written face would get
	Timing Timing
}

// Builder walks annotation stores and writes one aligned image per face.
type Builder struct {
	Aligner    FaceAligner
	Stores     []annotation.Store
	ImageDir   string
	OutputDir  string
	Ext        string // "png" or "jpg"
	StartIndex int
	Logger     *logrus.Logger
}

// Run processes every store in order. For each store, files in ImageDir
// are visited in name order and every face annotated for that file is
// aligned and written as %05d.<ext>, numbered consecutively across stores.
// The first failure is logged with the offending file and returned.
func (b *Builder) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	stats := Stats{RunID: uuid.NewString(), Next: b.StartIndex}
	logger := log.Or(b.Logger).WithField("run", stats.RunID)

	if err := os.MkdirAll(b.OutputDir, 0o755); err != nil {
		return stats, fmt.Errorf("failed to create output dir: %w", err)
	}

	names, err := imageio.ListImages(b.ImageDir)
	if err != nil {
		return stats, err
	}

	for si, store := range b.Stores {
		for _, name := range names {
			if !store.Has(name) {
				continue
			}
			if err := ctx.Err(); err != nil {
				stats.Timing.Total = time.Since(start)
				return stats, err
			}

			n, err := b.buildFile(name, store, &stats)
			if err != nil {
				logger.WithFields(log.Fields{"store": si, "file": name, "error": err.Error()}).Error("error with file")
				stats.Timing.Total = time.Since(start)
				return stats, fmt.Errorf("%s: %w", name, err)
			}

			logger.WithFields(log.Fields{"store": si, "file": name, "faces": n}).Info("faces detected")
			stats.Files++
		}
	}

	stats.Timing.Total = time.Since(start)
	logger.WithFields(log.Fields{
		"files":    stats.Files,
		"faces":    stats.Faces,
		"duration": stats.Timing.Total.String(),
	}).Info("dataset build finished")
	return stats, nil
}

// buildFile aligns and writes every face of one annotated file.
func (b *Builder) buildFile(name string, store annotation.Store, stats *Stats) (int, error) {
	faces, err := store.Faces(name)
	if err != nil {
		return 0, err
	}

	readStart := time.Now()
	img, err := imageio.Read(filepath.Join(b.ImageDir, name))
	stats.Timing.Read += time.Since(readStart)
	if err != nil {
		return 0, err
	}
	defer img.Close()

	for i, lm := range faces {
		alignStart := time.Now()
		res, err := b.Aligner.Align(img, lm)
		stats.Timing.Align += time.Since(alignStart)
		if err != nil {
			return i, fmt.Errorf("face %d: %w", i, err)
		}

		writeStart := time.Now()
		err = imageio.WriteAtomic(b.outputPath(stats.Next), res.Image)
		stats.Timing.Write += time.Since(writeStart)
		res.Close()
		if err != nil {
			return i, err
		}

		stats.Next++
		stats.Faces++
	}
	return len(faces), nil
}

func (b *Builder) outputPath(index int) string {
	ext := strings.TrimPrefix(b.Ext, ".")
	if ext == "" {
		ext = "png"
	}
	return filepath.Join(b.OutputDir, fmt.Sprintf("%05d.%s", index, ext))
}
