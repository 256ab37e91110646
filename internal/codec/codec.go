// Package codec decodes, resizes and encodes rasters for the compression
// pipeline on top of github.com/disintegration/imaging.
package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"

	"image-compressor-go/internal/compressor"

	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedFormat is returned when no encoder exists for a mime type.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// ImagingCodec implements compressor.Codec.
type ImagingCodec struct {
	filter imaging.ResampleFilter
}

// NewImagingCodec returns a codec resizing with the named filter
// ("lanczos", "catmullrom", "linear", "box" or "nearest").
func NewImagingCodec(filterName string) (*ImagingCodec, error) {
	filter, err := ParseFilter(filterName)
	if err != nil {
		return nil, err
	}
	return &ImagingCodec{filter: filter}, nil
}

// ParseFilter maps a configuration name to a resampling filter.
func ParseFilter(name string) (imaging.ResampleFilter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lanczos":
		return imaging.Lanczos, nil
	case "catmullrom":
		return imaging.CatmullRom, nil
	case "linear":
		return imaging.Linear, nil
	case "box":
		return imaging.Box, nil
	case "nearest":
		return imaging.NearestNeighbor, nil
	default:
		return imaging.ResampleFilter{}, fmt.Errorf("unknown resize filter: %s", name)
	}
}

// Decode reads an image and applies its EXIF orientation.
func (c *ImagingCodec) Decode(ctx context.Context, data []byte) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Resize scales img to exactly size.
func (c *ImagingCodec) Resize(img image.Image, size compressor.Dimensions) image.Image {
	return imaging.Resize(img, size.Width, size.Height, c.filter)
}

// Encode writes img as JPEG, PNG or lossy WebP. quality is the encoder
// quality for JPEG and WebP; PNG switches to best compression below 0.5.
func (c *ImagingCodec) Encode(ctx context.Context, img image.Image, mime string, quality float64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		buf bytes.Buffer
		err error
	)
	switch mime {
	case compressor.MimeJPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality(quality)))
	case compressor.MimePNG:
		level := png.DefaultCompression
		if quality < 0.5 {
			level = png.BestCompression
		}
		err = imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(level))
	case compressor.MimeWebP:
		var opts *encoder.Options
		opts, err = encoder.NewLossyEncoderOptions(encoder.PresetDefault, WebPQuality(quality))
		if err == nil {
			err = webp.Encode(&buf, img, opts)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime)
	}
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// JPEGQuality converts a quality fraction to the 1-100 JPEG scale.
func JPEGQuality(quality float64) int {
	q := int(math.Round(quality * 100))
	return min(max(q, 1), 100)
}

// WebPQuality converts a quality fraction to libwebp's 0-100 scale.
func WebPQuality(quality float64) float32 {
	return float32(math.Max(0, math.Min(100, quality*100)))
}
