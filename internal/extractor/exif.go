package extractor

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/barasher/go-exiftool"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
)

// MetadataExtractor reads EXIF metadata with goexif and, when enabled,
// falls back to the exiftool binary for formats goexif cannot parse.
type MetadataExtractor struct {
	logger      *logrus.Logger
	useExiftool bool
}

// NewMetadataExtractor returns a new MetadataExtractor.
func NewMetadataExtractor(logger *logrus.Logger, useExiftool bool) *MetadataExtractor {
	return &MetadataExtractor{
		logger:      logger,
		useExiftool: useExiftool,
	}
}

// Extract returns the EXIF metadata of the file at filePath.
func (e *MetadataExtractor) Extract(filePath string) (*Metadata, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	meta, err := e.extractWithGoExif(file)
	if err == nil {
		e.logger.Debugf("Extracted EXIF with goexif for file %s", filePath)
		return meta, nil
	}
	e.logger.WithField("file", filePath).Debugf("goexif found nothing: %v", err)

	if !e.useExiftool {
		return nil, ErrNoMetadata
	}

	meta, err = e.extractWithExiftool(filePath)
	if err != nil {
		e.logger.WithField("file", filePath).Debugf("exiftool fallback failed: %v", err)
		return nil, ErrNoMetadata
	}
	return meta, nil
}

// ExtractFromBytes returns the EXIF metadata of an in-memory image.
func (e *MetadataExtractor) ExtractFromBytes(data []byte) (*Metadata, error) {
	meta, err := e.extractWithGoExif(bytes.NewReader(data))
	if err != nil {
		return nil, ErrNoMetadata
	}
	return meta, nil
}

// extractWithGoExif reads tags using the rwcarlsen/goexif library.
func (e *MetadataExtractor) extractWithGoExif(r io.Reader) (*Metadata, error) {
	x, err := exif.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF: %w", err)
	}

	meta := &Metadata{
		Make:     stringTag(x, exif.Make),
		Model:    stringTag(x, exif.Model),
		Software: stringTag(x, exif.Software),
		Source:   SourceGoExif,
	}

	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			meta.Orientation = v
		}
	}

	if tm, err := x.DateTime(); err == nil {
		meta.TakenAt = &tm
	} else if tag, err := x.Get(exif.DateTimeDigitized); err == nil {
		if s, err := tag.StringVal(); err == nil {
			meta.TakenAt = parseEXIFDateTime(s)
		}
	}

	if meta.IsEmpty() {
		return nil, ErrNoMetadata
	}
	return meta, nil
}

// extractWithExiftool reads tags by running the exiftool binary.
func (e *MetadataExtractor) extractWithExiftool(filePath string) (*Metadata, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("exiftool unavailable: %w", err)
	}
	defer et.Close()

	files := et.ExtractMetadata(filePath)
	if len(files) == 0 {
		return nil, ErrNoMetadata
	}
	if files[0].Err != nil {
		return nil, files[0].Err
	}

	fields := files[0].Fields
	meta := &Metadata{
		Make:     fieldString(fields, "Make"),
		Model:    fieldString(fields, "Model"),
		Software: fieldString(fields, "Software"),
		Source:   SourceExiftool,
	}
	meta.Orientation = parseOrientation(fieldString(fields, "Orientation"))
	for _, key := range []string{"DateTimeOriginal", "CreateDate", "ModifyDate"} {
		if date := parseEXIFDateTime(fieldString(fields, key)); date != nil {
			meta.TakenAt = date
			break
		}
	}

	if meta.IsEmpty() {
		return nil, ErrNoMetadata
	}
	return meta, nil
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func fieldString(fields map[string]interface{}, key string) string {
	switch v := fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// exiftoolOrientations maps exiftool's printed orientation names to EXIF values.
var exiftoolOrientations = map[string]int{
	"Horizontal (normal)":                 1,
	"Mirror horizontal":                   2,
	"Rotate 180":                          3,
	"Mirror vertical":                     4,
	"Mirror horizontal and rotate 270 CW": 5,
	"Rotate 90 CW":                        6,
	"Mirror horizontal and rotate 90 CW":  7,
	"Rotate 270 CW":                       8,
}

func parseOrientation(s string) int {
	if v, ok := exiftoolOrientations[s]; ok {
		return v
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 1 && v <= 8 {
		return v
	}
	return 0
}

// parseEXIFDateTime parses an EXIF date time string and returns a time.Time pointer.
// Returns nil if parsing fails.
func parseEXIFDateTime(dateStr string) *time.Time {
	if dateStr == "" {
		return nil
	}

	formats := []string{
		"2006:01:02 15:04:05",
		"2006:01:02 15:04:05-07:00",
		"2006-01-02 15:04:05",
		"2006:01:02",
		time.RFC3339,
	}

	for _, format := range formats {
		if date, err := time.Parse(format, dateStr); err == nil {
			return &date
		}
	}
	return nil
}
