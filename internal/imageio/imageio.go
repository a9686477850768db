package imageio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/renameio/v2"
	"gocv.io/x/gocv"
)

// ErrUnreadableImage is returned when a file cannot be decoded as an image.
var ErrUnreadableImage = errors.New("unreadable image")

var extensions = map[string]gocv.FileExt{
	".png":  gocv.PNGFileExt,
	".jpg":  gocv.JPEGFileExt,
	".jpeg": gocv.JPEGFileExt,
	".bmp":  ".bmp",
	".webp": ".webp",
	".tif":  ".tif",
	".tiff": ".tiff",
}

// IsImage reports whether name has an extension this package can decode.
func IsImage(name string) bool {
	_, ok := extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ListImages returns the image file names in dir, sorted.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsImage(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// Read decodes path as a 3-channel BGR image. Alpha channels are dropped.
func Read(path string) (gocv.Mat, error) {
	if _, err := os.Stat(path); err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %s: %v", ErrUnreadableImage, path, err)
	}
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), fmt.Errorf("%w: %s", ErrUnreadableImage, path)
	}
	return img, nil
}

// WriteAtomic encodes img by the extension of path and replaces path in a
// single rename, so readers never observe a partial file.
func WriteAtomic(path string, img gocv.Mat) error {
	ext, ok := extensions[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return fmt.Errorf("unsupported output extension %q", filepath.Ext(path))
	}

	buf, err := gocv.IMEncode(ext, img)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	defer buf.Close()

	return WriteFileAtomic(path, buf.GetBytes())
}

// WriteFileAtomic writes data to a temp file next to path, syncs it and
// renames it over path.
func WriteFileAtomic(path string, data []byte) error {
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
