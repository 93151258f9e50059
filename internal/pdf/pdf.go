// Package pdf pulls the capture raster out of PDF documents produced by
// scanning apps, which embed the photographed page as an image.
package pdf

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrNoImages is returned when the selected page carries no decodable image.
var ErrNoImages = errors.New("pdf contains no extractable images")

// FirstPageImage returns the largest image embedded on the first page of the
// PDF held in data.
func FirstPageImage(data []byte) (image.Image, error) {
	tempDir, err := os.MkdirTemp("", "idscan-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	src := filepath.Join(tempDir, "capture.pdf")
	if err := os.WriteFile(src, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to stage pdf: %w", err)
	}

	outDir := filepath.Join(tempDir, "images")
	if err := os.Mkdir(outDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := api.ExtractImagesFile(src, outDir, []string{"1"}, nil); err != nil {
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}

	images, err := collectImages(outDir)
	if err != nil {
		return nil, fmt.Errorf("failed to process extracted images: %w", err)
	}
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	return largest(images), nil
}

// collectImages decodes every file under dir in name order, skipping files
// that are not decodable rasters.
func collectImages(dir string) ([]image.Image, error) {
	var paths []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var out []image.Image
	for _, p := range paths {
		img, err := loadImageFile(p)
		if err != nil {
			continue
		}
		out = append(out, img)
	}
	return out, nil
}

func loadImageFile(path string) (image.Image, error) {
	file, err := os.Open(path) //nolint:gosec // G304: files written by pdfcpu into our temp dir
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	return img, err
}

func largest(images []image.Image) image.Image {
	best := images[0]
	bestArea := best.Bounds().Dx() * best.Bounds().Dy()
	for _, img := range images[1:] {
		if a := img.Bounds().Dx() * img.Bounds().Dy(); a > bestArea {
			best, bestArea = img, a
		}
	}
	return best
}
