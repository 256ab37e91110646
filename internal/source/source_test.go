package source

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/config"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.png"), pngBytes(t))
	writeFile(t, filepath.Join(dir, "nested", "b.JPG"), []byte("jpeg-ish"))
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("hello"))
	single := filepath.Join(dir, "a.png")

	cfg := config.DefaultConfig()
	cfg.Input.SupportedExtensions = []string{".png", ".jpg"}

	files, err := Collect([]string{dir, single, filepath.Join(dir, "missing.png")}, cfg.IsImageExtension)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("Collect() = %v, want 2 files", files)
	}
	if !strings.HasSuffix(files[0], "a.png") || !strings.HasSuffix(files[1], "b.JPG") {
		t.Errorf("Collect() = %v", files)
	}
}

func TestLoadDetectsMime(t *testing.T) {
	dir := t.TempDir()
	// Content wins over a misleading extension.
	path := filepath.Join(dir, "really-a-png.jpg")
	writeFile(t, path, pngBytes(t))

	src, err := Load(path, 0)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if src.Name != "really-a-png.jpg" || src.MimeType != compressor.MimePNG {
		t.Errorf("Load() = %s (%s)", src.Name, src.MimeType)
	}
	if src.Size() == 0 {
		t.Error("Load() returned empty data")
	}
}

func TestLoadRejectsLargeFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.png")
	writeFile(t, path, make([]byte, 2048))

	if _, err := Load(path, 1024); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("Load() error = %v, want ErrFileTooLarge", err)
	}
}

func TestDetectMime(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		data     []byte
		want     string
	}{
		{"sniffed png", "", pngBytes(t), "image/png"},
		{"sniffed beats header", "image/jpeg", pngBytes(t), "image/png"},
		{"declared fallback", "image/png; charset=binary", []byte("corrupt bytes"), "image/png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMime(tt.declared, tt.data); got != tt.want {
				t.Errorf("DetectMime() = %q, want %q", got, tt.want)
			}
		})
	}
	if got := DetectMime("", []byte("plain words")); IsImage(got) {
		t.Errorf("DetectMime(text) = %q, want a non-image type", got)
	}
}

func TestFilterImages(t *testing.T) {
	in := []compressor.SourceImage{
		{Name: "a.png", MimeType: "image/png"},
		{Name: "notes.txt", MimeType: "text/plain"},
		{Name: "b.webp", MimeType: "image/webp"},
	}
	got := FilterImages(in)
	if len(got) != 2 || got[0].Name != "a.png" || got[1].Name != "b.webp" {
		t.Errorf("FilterImages() = %+v", got)
	}
}

func TestFromReader(t *testing.T) {
	src, err := FromReader("up.png", "application/octet-stream", bytes.NewReader(pngBytes(t)), 0)
	if err != nil {
		t.Fatalf("FromReader() error = %v", err)
	}
	if src.MimeType != "image/png" {
		t.Errorf("MimeType = %q", src.MimeType)
	}
}
