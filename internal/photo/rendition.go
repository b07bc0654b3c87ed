package photo

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

const (
	thumbSuffix = "_thumb"
	fullSuffix  = "_full"
	ThumbDir    = "thumbs"
	FullDir     = "full"
)

// RenditionOptions controls output sizes, quality and format.
type RenditionOptions struct {
	ThumbWidth   int
	FullWidth    int
	ThumbQuality int
	FullQuality  int
	Format       string
}

// Renditions describes the files written for one source image.
type Renditions struct {
	ThumbPath string
	FullPath  string
	Width     int // full rendition width
	Height    int // full rendition height
}

// RenditionError wraps a decode, encode or write failure for one photo.
type RenditionError struct {
	Stem string
	Op   string
	Err  error
}

func (e *RenditionError) Error() string {
	return fmt.Sprintf("rendition %s for %s: %v", e.Op, e.Stem, e.Err)
}

func (e *RenditionError) Unwrap() error { return e.Err }

// Renderer writes thumbnail and full-size renditions under an output root.
type Renderer struct {
	outDir  string
	opts    RenditionOptions
	encoder Encoder
}

// NewRenderer returns a Renderer writing to outDir/thumbs and outDir/full.
func NewRenderer(outDir string, opts RenditionOptions) (*Renderer, error) {
	if opts.ThumbWidth <= 0 || opts.FullWidth <= 0 {
		return nil, errors.New("rendition widths must be positive")
	}
	enc, err := EncoderFor(opts.Format)
	if err != nil {
		return nil, err
	}
	return &Renderer{outDir: outDir, opts: opts, encoder: enc}, nil
}

// Ext returns the file extension of the renditions, without the dot.
func (r *Renderer) Ext() string {
	return r.encoder.Ext()
}

// ThumbPath returns where the thumbnail for stem is written.
func (r *Renderer) ThumbPath(stem string) string {
	return filepath.Join(r.outDir, ThumbDir, stem+thumbSuffix+"."+r.encoder.Ext())
}

// FullPath returns where the full-size rendition for stem is written.
func (r *Renderer) FullPath(stem string) string {
	return filepath.Join(r.outDir, FullDir, stem+fullSuffix+"."+r.encoder.Ext())
}

// Render decodes src once, applies the EXIF orientation and writes both
// renditions scaled to their target widths.
func (r *Renderer) Render(ctx context.Context, src Source, orientation int) (Renditions, error) {
	if err := ctx.Err(); err != nil {
		return Renditions{}, &RenditionError{Stem: src.Stem, Op: "start", Err: err}
	}

	img, err := decodeFile(src.Path)
	if err != nil {
		return Renditions{}, &RenditionError{Stem: src.Stem, Op: "decode", Err: err}
	}
	img = applyOrientation(img, orientation)

	out := Renditions{ThumbPath: r.ThumbPath(src.Stem), FullPath: r.FullPath(src.Stem)}

	thumb := scaleToWidth(img, r.opts.ThumbWidth)
	if err := r.write(out.ThumbPath, thumb, r.opts.ThumbQuality); err != nil {
		return Renditions{}, &RenditionError{Stem: src.Stem, Op: "write thumbnail", Err: err}
	}

	if err := ctx.Err(); err != nil {
		return Renditions{}, &RenditionError{Stem: src.Stem, Op: "cancelled", Err: err}
	}

	full := scaleToWidth(img, r.opts.FullWidth)
	if err := r.write(out.FullPath, full, r.opts.FullQuality); err != nil {
		return Renditions{}, &RenditionError{Stem: src.Stem, Op: "write full", Err: err}
	}
	out.Width = full.Bounds().Dx()
	out.Height = full.Bounds().Dy()
	return out, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open file %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("unable to decode image %s: %w", path, err)
	}
	return img, nil
}

// scaleToWidth resizes img to the target width, preserving aspect ratio.
func scaleToWidth(img image.Image, width int) image.Image {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return img
	}
	height := int(math.Round(float64(b.Dy()) * float64(width) / float64(b.Dx())))
	if height < 1 {
		height = 1
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// write encodes img to a temp file next to path and renames it into place.
func (r *Renderer) write(path string, img image.Image, quality int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".rendition-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := r.encoder.Encode(tmp, img, quality); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", r.encoder.Ext(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// applyOrientation rotates or flips img so it displays upright for EXIF
// orientation values 2-8.
func applyOrientation(src image.Image, orientation int) image.Image {
	if orientation < 2 || orientation > 8 {
		return src
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dw, dh := w, h
	if orientation >= 5 {
		dw, dh = h, w
	}
	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch orientation {
			case 2: // mirror horizontal
				dx, dy = w-1-x, y
			case 3: // rotate 180
				dx, dy = w-1-x, h-1-y
			case 4: // mirror vertical
				dx, dy = x, h-1-y
			case 5: // transpose
				dx, dy = y, x
			case 6: // rotate 90 CW
				dx, dy = h-1-y, x
			case 7: // transverse
				dx, dy = h-1-y, w-1-x
			case 8: // rotate 90 CCW
				dx, dy = y, w-1-x
			}
			dst.Set(dx, dy, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}
