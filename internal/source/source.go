// Package source turns files on disk or uploaded parts into the
// SourceImage values a batch is built from.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"image-compressor-go/internal/compressor"

	"github.com/gabriel-vasile/mimetype"
)

// ErrFileTooLarge is returned when a file exceeds the configured size limit.
var ErrFileTooLarge = errors.New("file too large")

// Collect returns every file under inputPaths whose extension is accepted
// by supported. Directories are walked recursively; missing paths are skipped.
// The result is sorted and free of duplicates.
func Collect(inputPaths []string, supported func(ext string) bool) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string

	add := func(path string) {
		if !supported(filepath.Ext(path)) {
			return
		}
		if _, dup := seen[path]; dup {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	for _, in := range inputPaths {
		info, err := os.Stat(in)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			add(filepath.Clean(in))
			continue
		}
		err = filepath.WalkDir(in, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			add(path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", in, err)
		}
	}

	sort.Strings(files)
	return files, nil
}

// Load reads a file from disk. maxBytes of zero disables the size check.
func Load(path string, maxBytes int64) (compressor.SourceImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return compressor.SourceImage{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	data, err := readLimited(f, maxBytes)
	if err != nil {
		return compressor.SourceImage{}, fmt.Errorf("read %s: %w", path, err)
	}
	return FromBytes(filepath.Base(path), "", data), nil
}

// FromBytes builds a SourceImage, preferring the sniffed content type over
// the declared one when the content is recognisably an image.
func FromBytes(name, declaredMime string, data []byte) compressor.SourceImage {
	return compressor.SourceImage{
		Name:     name,
		MimeType: DetectMime(declaredMime, data),
		Data:     data,
	}
}

// FromReader reads an uploaded part into a SourceImage.
func FromReader(name, declaredMime string, r io.Reader, maxBytes int64) (compressor.SourceImage, error) {
	data, err := readLimited(r, maxBytes)
	if err != nil {
		return compressor.SourceImage{}, fmt.Errorf("read %s: %w", name, err)
	}
	return FromBytes(name, declaredMime, data), nil
}

// DetectMime returns the image type of data, falling back to the declared
// type (without parameters) when sniffing does not find an image.
func DetectMime(declaredMime string, data []byte) string {
	detected := mimetype.Detect(data).String()
	if IsImage(detected) {
		return detected
	}
	declared := strings.ToLower(strings.TrimSpace(strings.SplitN(declaredMime, ";", 2)[0]))
	if declared != "" {
		return declared
	}
	return detected
}

// IsImage reports whether mime names an image type.
func IsImage(mime string) bool {
	return strings.HasPrefix(mime, "image/")
}

// FilterImages keeps only sources with an image mime type.
func FilterImages(sources []compressor.SourceImage) []compressor.SourceImage {
	images := make([]compressor.SourceImage, 0, len(sources))
	for _, s := range sources {
		if IsImage(s.MimeType) {
			images = append(images, s)
		}
	}
	return images
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, maxBytes)
	}
	return data, nil
}
