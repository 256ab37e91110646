package compressor

import (
	"context"
	"fmt"
	"image"
	"time"

	"image-compressor-go/internal/statistics"
)

// SourceImage is one selected input file. The pipeline only reads it.
type SourceImage struct {
	Name     string
	MimeType string
	Data     []byte
}

// Size returns the byte length of the source content.
func (s SourceImage) Size() int64 {
	return int64(len(s.Data))
}

// Dimensions is a pixel size.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// String renders the dimensions the way they are shown to the user.
func (d Dimensions) String() string {
	return fmt.Sprintf("%d × %d", d.Width, d.Height)
}

// BatchRun is the input of one compression invocation.
type BatchRun struct {
	ID      string
	Files   []SourceImage
	Quality float64
}

// CompressionResult describes the outcome for a single source image.
// A non-nil Err marks a file that could not be compressed; it still counts
// toward the batch total.
type CompressionResult struct {
	Index          int
	Source         SourceImage
	Data           []byte
	CompressedSize int64
	OutputName     string
	OutputMime     string
	NaturalWidth   int
	NaturalHeight  int
	TargetWidth    int
	TargetHeight   int
	StartedAt      time.Time
	FinishedAt     time.Time
	Err            error
}

// Succeeded reports whether the file produced an artifact.
func (r *CompressionResult) Succeeded() bool {
	return r.Err == nil && r.Data != nil
}

// Resized reports whether the output dimensions differ from the decoded ones.
func (r *CompressionResult) Resized() bool {
	return r.NaturalWidth != r.TargetWidth || r.NaturalHeight != r.TargetHeight
}

// Converted reports whether the output encoding differs from the source one.
func (r *CompressionResult) Converted() bool {
	return r.OutputMime != "" && r.OutputMime != r.Source.MimeType
}

// DownloadName returns the file name the artifact is saved under.
func (r *CompressionResult) DownloadName() string {
	return DownloadName(r.OutputName)
}

// Display is the per-result payload shown next to the comparison.
type Display struct {
	OriginalSize       string `json:"original_size"`
	OriginalDimensions string `json:"original_dimensions"`
	CompressedSize     string `json:"compressed_size"`
	CompressionRatio   string `json:"compression_ratio"`
}

// Display builds the comparison figures for a successful result.
func (r *CompressionResult) Display() Display {
	original := r.Source.Size()
	return Display{
		OriginalSize:       statistics.FormatSize(original),
		OriginalDimensions: Dimensions{Width: r.NaturalWidth, Height: r.NaturalHeight}.String(),
		CompressedSize:     statistics.FormatSize(r.CompressedSize),
		CompressionRatio:   statistics.CompressionRatio(original, r.CompressedSize),
	}
}

// BatchSummary is delivered once, when every file of a run has a result.
type BatchSummary struct {
	RunID           string        `json:"run_id"`
	Total           int           `json:"total"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	OriginalBytes   int64         `json:"original_bytes"`
	CompressedBytes int64         `json:"compressed_bytes"`
	Duration        time.Duration `json:"duration"`
}

// Ratio is the overall size reduction of the successful files.
func (s *BatchSummary) Ratio() string {
	return statistics.CompressionRatio(s.OriginalBytes, s.CompressedBytes)
}

func (s *BatchSummary) add(r *CompressionResult) {
	if !r.Succeeded() {
		s.Failed++
		return
	}
	s.Succeeded++
	s.OriginalBytes += r.Source.Size()
	s.CompressedBytes += r.CompressedSize
}

// Codec decodes, resizes and encodes rasters for the pipeline.
type Codec interface {
	Decode(ctx context.Context, data []byte) (image.Image, error)
	Resize(img image.Image, size Dimensions) image.Image
	Encode(ctx context.Context, img image.Image, mime string, quality float64) ([]byte, error)
}

// Compressor runs a batch and reports each result as it completes.
type Compressor interface {
	Compress(ctx context.Context, run BatchRun, opts BatchOptions) ([]*CompressionResult, *BatchSummary, error)
}
