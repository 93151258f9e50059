package pdf

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, w, h))))
}

func TestCollectImagesSkipsUndecodable(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "page_1_image_1.png"), 10, 10)
	writePNG(t, filepath.Join(dir, "page_1_image_2.png"), 40, 20)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	images, err := collectImages(dir)
	require.NoError(t, err)
	require.Len(t, images, 2)

	best := largest(images)
	assert.Equal(t, 40, best.Bounds().Dx())
}

func TestFirstPageImageRejectsGarbage(t *testing.T) {
	_, err := FirstPageImage([]byte("not a pdf"))
	require.Error(t, err)
}
