package imageio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.JPG", "notes.txt", ".c.png.123.tmp"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	names, err := ListImages(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.JPG", "b.png"}, names)

	_, err = ListImages(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestWriteAtomicAndRead(t *testing.T) {
	dir := t.TempDir()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), 8, 12, gocv.MatTypeCV8UC3)
	defer img.Close()

	path := filepath.Join(dir, "00000.png")
	require.NoError(t, WriteAtomic(path, img))

	got, err := Read(path)
	require.NoError(t, err)
	defer got.Close()
	assert.Equal(t, 12, got.Cols())
	assert.Equal(t, 8, got.Rows())
	assert.Equal(t, gocv.Vecb{10, 20, 30}, got.GetVecbAt(3, 4))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteAtomic_UnsupportedExtension(t *testing.T) {
	img := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer img.Close()

	err := WriteAtomic(filepath.Join(t.TempDir(), "out.gif"), img)
	assert.Error(t, err)
}

func TestRead_Unreadable(t *testing.T) {
	dir := t.TempDir()

	_, err := Read(filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, ErrUnreadableImage)

	garbage := filepath.Join(dir, "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o644))
	_, err = Read(garbage)
	assert.ErrorIs(t, err, ErrUnreadableImage)
}

func TestWriteFileAtomic_Replaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "save.json")

	require.NoError(t, WriteFileAtomic(path, []byte(`{"a.png": []}`)))
	require.NoError(t, WriteFileAtomic(path, []byte(`{}`)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm()&0o600)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	err = WriteFileAtomic(filepath.Join(dir, "missing", "x.json"), []byte(`{}`))
	assert.Error(t, err)
}
