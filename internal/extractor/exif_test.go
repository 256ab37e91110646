package extractor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

var _ Extractor = (*MetadataExtractor)(nil)

func newTestExtractor() *MetadataExtractor {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewMetadataExtractor(log, false)
}

// tiffWithTags builds a little-endian TIFF block holding Make, Orientation
// and DateTime entries.
func tiffWithTags(maker string, orientation uint16, dateTime string) []byte {
	makeVal := append([]byte(maker), 0)
	dateVal := append([]byte(dateTime), 0)

	const entries = 3
	dataStart := uint32(8 + 2 + entries*12 + 4)

	var buf bytes.Buffer
	le := binary.LittleEndian
	buf.WriteString("II")
	binary.Write(&buf, le, uint16(42))
	binary.Write(&buf, le, uint32(8))
	binary.Write(&buf, le, uint16(entries))

	// Make, ASCII
	binary.Write(&buf, le, uint16(0x010F))
	binary.Write(&buf, le, uint16(2))
	binary.Write(&buf, le, uint32(len(makeVal)))
	binary.Write(&buf, le, dataStart)

	// Orientation, SHORT
	binary.Write(&buf, le, uint16(0x0112))
	binary.Write(&buf, le, uint16(3))
	binary.Write(&buf, le, uint32(1))
	binary.Write(&buf, le, orientation)
	binary.Write(&buf, le, uint16(0))

	// DateTime, ASCII
	binary.Write(&buf, le, uint16(0x0132))
	binary.Write(&buf, le, uint16(2))
	binary.Write(&buf, le, uint32(len(dateVal)))
	binary.Write(&buf, le, dataStart+uint32(len(makeVal)))

	binary.Write(&buf, le, uint32(0))
	buf.Write(makeVal)
	buf.Write(dateVal)
	return buf.Bytes()
}

func TestExtractFromBytes(t *testing.T) {
	meta, err := newTestExtractor().ExtractFromBytes(tiffWithTags("Canon", 6, "2021:06:15 10:30:00"))
	if err != nil {
		t.Fatalf("ExtractFromBytes() error = %v", err)
	}
	if meta.Make != "Canon" {
		t.Errorf("Make = %q, want Canon", meta.Make)
	}
	if meta.Orientation != 6 || !meta.Rotated() {
		t.Errorf("Orientation = %d, want 6 (rotated)", meta.Orientation)
	}
	if meta.TakenAt == nil || meta.TakenAt.Year() != 2021 || meta.TakenAt.Month() != time.June {
		t.Errorf("TakenAt = %v", meta.TakenAt)
	}
	if meta.Source != SourceGoExif {
		t.Errorf("Source = %s", meta.Source)
	}
}

func TestExtractWithoutMetadata(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "plain.png")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := newTestExtractor().Extract(path); !errors.Is(err, ErrNoMetadata) {
		t.Errorf("Extract() error = %v, want ErrNoMetadata", err)
	}
	if _, err := newTestExtractor().Extract(filepath.Join(t.TempDir(), "missing.jpg")); err == nil {
		t.Error("Extract() on missing file returned no error")
	}
}

func TestExtractFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.tiff")
	if err := os.WriteFile(path, tiffWithTags("NIKON", 1, "2019:01:02 03:04:05"), 0644); err != nil {
		t.Fatal(err)
	}
	meta, err := newTestExtractor().Extract(path)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if meta.Camera() != "NIKON" || meta.Rotated() {
		t.Errorf("Extract() = %+v", meta)
	}
}

func TestCamera(t *testing.T) {
	tests := []struct {
		maker, model, want string
	}{
		{"Canon", "Canon EOS 5D", "Canon EOS 5D"},
		{"FUJIFILM", "X-T3", "FUJIFILM X-T3"},
		{"", "Pixel 7", "Pixel 7"},
		{"Apple", "", "Apple"},
	}
	for _, tt := range tests {
		m := &Metadata{Make: tt.maker, Model: tt.model}
		if got := m.Camera(); got != tt.want {
			t.Errorf("Camera(%q, %q) = %q, want %q", tt.maker, tt.model, got, tt.want)
		}
	}
}

func TestParseEXIFDateTime(t *testing.T) {
	tests := []struct {
		in     string
		wantOK bool
	}{
		{"2023:12:25 14:30:00", true},
		{"2023-12-25 14:30:00", true},
		{"2023:12:25", true},
		{"2023-12-25T14:30:00Z", true},
		{"", false},
		{"yesterday", false},
	}
	for _, tt := range tests {
		if got := parseEXIFDateTime(tt.in); (got != nil) != tt.wantOK {
			t.Errorf("parseEXIFDateTime(%q) = %v, wantOK %v", tt.in, got, tt.wantOK)
		}
	}
}

func TestParseOrientation(t *testing.T) {
	tests := map[string]int{
		"Horizontal (normal)": 1,
		"Rotate 90 CW":        6,
		"8":                   8,
		"9":                   0,
		"":                    0,
	}
	for in, want := range tests {
		if got := parseOrientation(in); got != want {
			t.Errorf("parseOrientation(%q) = %d, want %d", in, got, want)
		}
	}
}
