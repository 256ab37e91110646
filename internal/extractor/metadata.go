package extractor

import (
	"errors"
	"time"
)

// ErrNoMetadata is returned when no EXIF metadata could be read.
var ErrNoMetadata = errors.New("no EXIF metadata found")

// Extractor reads camera metadata from image files.
type Extractor interface {
	Extract(filePath string) (*Metadata, error)
	ExtractFromBytes(data []byte) (*Metadata, error)
}

// MetadataSource identifies which reader produced the metadata.
type MetadataSource int

const (
	SourceUnknown MetadataSource = iota
	SourceGoExif
	SourceExiftool
)

// String returns a human-readable description of the metadata source.
func (s MetadataSource) String() string {
	switch s {
	case SourceGoExif:
		return "goexif"
	case SourceExiftool:
		return "exiftool"
	default:
		return "unknown"
	}
}

// Metadata is the subset of EXIF tags the inspect command reports.
type Metadata struct {
	Make        string
	Model       string
	Software    string
	TakenAt     *time.Time
	Orientation int
	Source      MetadataSource
}

// Camera joins make and model, dropping a make the model already repeats.
func (m *Metadata) Camera() string {
	switch {
	case m.Make == "":
		return m.Model
	case m.Model == "":
		return m.Make
	case len(m.Model) >= len(m.Make) && m.Model[:len(m.Make)] == m.Make:
		return m.Model
	default:
		return m.Make + " " + m.Model
	}
}

// IsEmpty reports whether no tag was found.
func (m *Metadata) IsEmpty() bool {
	return m.Make == "" && m.Model == "" && m.Software == "" && m.TakenAt == nil && m.Orientation == 0
}

// Rotated reports whether the orientation tag swaps width and height.
func (m *Metadata) Rotated() bool {
	return m.Orientation >= 5 && m.Orientation <= 8
}
