package photo

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/chai2010/webp"
)

// Encoder serializes an image in one output format.
type Encoder interface {
	Encode(w io.Writer, img image.Image, quality int) error
	Ext() string
}

// EncoderFor returns the encoder for a format name: webp, jpeg (jpg) or png.
func EncoderFor(format string) (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "webp":
		return webpEncoder{}, nil
	case "jpeg", "jpg":
		return jpegEncoder{}, nil
	case "png":
		return pngEncoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported rendition format %q", format)
	}
}

type webpEncoder struct{}

func (webpEncoder) Ext() string { return "webp" }

func (webpEncoder) Encode(w io.Writer, img image.Image, quality int) error {
	return webp.Encode(w, img, &webp.Options{Quality: float32(clampQuality(quality))})
}

type jpegEncoder struct{}

func (jpegEncoder) Ext() string { return "jpg" }

func (jpegEncoder) Encode(w io.Writer, img image.Image, quality int) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: clampQuality(quality)})
}

// pngEncoder is lossless; quality is ignored.
type pngEncoder struct{}

func (pngEncoder) Ext() string { return "png" }

func (pngEncoder) Encode(w io.Writer, img image.Image, _ int) error {
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	return enc.Encode(w, img)
}

func clampQuality(q int) int {
	switch {
	case q <= 0:
		return 85
	case q > 100:
		return 100
	}
	return q
}
