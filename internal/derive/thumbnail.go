// Package derive produces derived renditions of uploaded media.
package derive

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder

	"github.com/disintegration/imaging"
)

// Default thumbnail bounds
const (
	DefaultWidth   = 300
	DefaultHeight  = 300
	DefaultQuality = 80
)

// Thumbnailer fits images into a bounding box and encodes them as JPEG
type Thumbnailer struct {
	Width   int
	Height  int
	Quality int
}

// NewThumbnailer creates a thumbnailer with the default bounds
func NewThumbnailer() *Thumbnailer {
	return &Thumbnailer{
		Width:   DefaultWidth,
		Height:  DefaultHeight,
		Quality: DefaultQuality,
	}
}

// Generate decodes data and returns a JPEG thumbnail
func (t *Thumbnailer) Generate(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}

	// Lanczos resampling, aspect ratio preserved
	thumbnail := imaging.Fit(img, t.Width, t.Height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumbnail, &jpeg.Options{Quality: t.Quality}); err != nil {
		return nil, fmt.Errorf("JPEG encode failed: %w", err)
	}
	return buf.Bytes(), nil
}
