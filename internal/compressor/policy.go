package compressor

import (
	"fmt"
	"math"
	"strings"
)

// Size bounds for compressed output.
const (
	MaxWidth  = 1920
	MaxHeight = 1080
	MaxPixels = MaxWidth * MaxHeight
)

// Mime types the pipeline knows how to name.
const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeWebP = "image/webp"
)

// pngToJPEGThreshold is the quality under which PNG sources are re-encoded as JPEG.
const pngToJPEGThreshold = 0.9

// ComputeTargetSize returns the output dimensions for a decoded image.
// Images inside both axis caps are never upscaled or touched; larger ones are
// scaled by the smallest of the width, height and total-pixel ratios.
func ComputeTargetSize(width, height int) Dimensions {
	if width <= MaxWidth && height <= MaxHeight {
		return Dimensions{Width: width, Height: height}
	}

	w, h := float64(width), float64(height)
	ratio := math.Min(
		math.Min(MaxWidth/w, MaxHeight/h),
		math.Sqrt(MaxPixels/(w*h)),
	)

	return Dimensions{
		Width:  max(int(math.Round(w*ratio)), 1),
		Height: max(int(math.Round(h*ratio)), 1),
	}
}

// ChooseOutputFormat picks the output encoding. PNG sources are transcoded
// to lossy JPEG below quality 0.9; every other source keeps its encoding.
func ChooseOutputFormat(sourceMime string, quality float64) string {
	if sourceMime == MimePNG && quality < pngToJPEGThreshold {
		return MimeJPEG
	}
	return sourceMime
}

// EncodedFormat returns the type an artifact is actually written in. JPEG,
// PNG and WebP are encoded as requested; any other format falls back to PNG.
func EncodedFormat(mime string) string {
	switch mime {
	case MimeJPEG, MimePNG, MimeWebP:
		return mime
	default:
		return MimePNG
	}
}

// ValidQuality reports whether q is a usable quality fraction.
func ValidQuality(q float64) bool {
	return q >= 0 && q <= 1 && !math.IsNaN(q)
}

// QualityFromPercent converts the user-facing 0-100 setting to a fraction.
func QualityFromPercent(percent int) (float64, error) {
	if percent < 0 || percent > 100 {
		return 0, fmt.Errorf("%w: %d%% (expected 0-100)", ErrInvalidQuality, percent)
	}
	return float64(percent) / 100, nil
}

// DeriveName strips one trailing extension from originalName and appends
// "_compressed" plus the extension of outputMime.
func DeriveName(originalName, outputMime string) string {
	base := originalName
	if dot := strings.LastIndex(base, "."); dot >= 0 && !strings.Contains(base[dot+1:], "/") && dot < len(base)-1 {
		base = base[:dot]
	}
	return base + "_compressed" + extensionFor(outputMime)
}

// DownloadName is the name an artifact is saved under.
func DownloadName(derivedName string) string {
	return "compressed_" + derivedName
}

func extensionFor(mime string) string {
	switch mime {
	case MimeJPEG:
		return ".jpg"
	case MimePNG:
		return ".png"
	case MimeWebP:
		return ".webp"
	default:
		return ".jpg"
	}
}
