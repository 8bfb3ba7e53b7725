// Package images downloads and decodes lookup images and turns them into
// small JPEG thumbnails for embedding in the output sheet.
package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	// Decoders registered with image.Decode.
	_ "image/gif"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Thumbnail defaults.
const (
	DefaultMaxWidth  = 100
	DefaultMaxHeight = 100
	DefaultQuality   = 85
)

// MaxSourcePixels bounds the decoded size of a source image.
const MaxSourcePixels = 4096 * 4096

var (
	// ErrUnsupportedImage is returned when the bytes are not a known image format.
	ErrUnsupportedImage = errors.New("unsupported image format")
	// ErrImageTooLarge is returned for images whose declared dimensions
	// exceed MaxSourcePixels. Nothing is decoded.
	ErrImageTooLarge = errors.New("image dimensions too large")
)

// Options bounds the thumbnail size and sets the JPEG quality.
type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

func (o Options) normalized() Options {
	if o.MaxWidth <= 0 {
		o.MaxWidth = DefaultMaxWidth
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = DefaultMaxHeight
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	return o
}

// Thumbnail decodes data (PNG, JPEG, GIF or WebP), shrinks it to fit inside
// MaxWidth x MaxHeight keeping the aspect ratio, flattens any transparency
// onto white and re-encodes it as JPEG. Images already small enough keep
// their size.
func Thumbnail(data []byte, opts Options) ([]byte, error) {
	opts = opts.normalized()

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedImage
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxSourcePixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedImage
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return nil, fmt.Errorf("decoding %s image: empty bounds", format)
	}
	w, h := fit(sb.Dx(), sb.Dy(), opts.MaxWidth, opts.MaxHeight)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, xdraw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("encoding thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// fit scales w x h down to fit inside maxW x maxH. It never enlarges.
func fit(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	return max(1, int(float64(w)*scale+0.5)), max(1, int(float64(h)*scale+0.5))
}
