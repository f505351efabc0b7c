// Package images scales stored trigger images.
package images

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

// Resizer implements dispatch.Resizer with Catmull-Rom resampling.
type Resizer struct {
	// Quality is the JPEG encoding quality. Zero means jpeg.DefaultQuality.
	Quality int
}

// Resize scales the image read from r to fit within width x height,
// keeping its aspect ratio. The output uses the format implied by name.
func (rz Resizer) Resize(r io.Reader, name string, width, height int) (io.Reader, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid size %dx%d", width, height)
	}
	src, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %v", name, err)
	}

	w, h := Fit(src.Bounds().Dx(), src.Bounds().Dy(), width, height)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		q := rz.Quality
		if q == 0 {
			q = jpeg.DefaultQuality
		}
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: q})
	case ".gif":
		err = gif.Encode(&buf, dst, nil)
	default:
		err = png.Encode(&buf, dst)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %v", name, err)
	}
	return &buf, nil
}

// Fit returns the largest size with the aspect ratio of w x h that fits
// in maxW x maxH. Sizes never drop below one pixel.
func Fit(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return maxW, maxH
	}
	// Compare maxW/w and maxH/h without floats.
	if maxW*h <= maxH*w {
		h = h * maxW / w
		w = maxW
	} else {
		w = w * maxH / h
		h = maxH
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}
