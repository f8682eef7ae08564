package storage

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// MaxImageDimension bounds the longer side of stored photos.
const MaxImageDimension = 1600

// Shrink downsizes a JPEG or PNG photo so its longer side is at most maxDim
// pixels. Data that is already small enough, or that is not a decodable
// JPEG/PNG, is returned unchanged.
func Shrink(data []byte, contentType string, maxDim int) ([]byte, error) {
	format, ok := imageFormat(contentType)
	if !ok {
		return data, nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width <= maxDim && cfg.Height <= maxDim {
		return data, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	resized := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, format, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func imageFormat(contentType string) (imaging.Format, bool) {
	switch normalizeType(contentType) {
	case "image/jpeg":
		return imaging.JPEG, true
	case "image/png":
		return imaging.PNG, true
	}
	return 0, false
}
