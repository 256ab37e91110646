package download

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"image-compressor-go/internal/compressor"
)

// WriteArchive packs every successful result into a zip stream under its
// download name. Colliding names get a numeric suffix. It returns the number
// of entries written.
func WriteArchive(w io.Writer, results []*compressor.CompressionResult) (int, error) {
	zw := zip.NewWriter(w)
	used := make(map[string]struct{})
	written := 0

	for _, r := range results {
		if !r.Succeeded() {
			continue
		}

		name := uniqueEntryName(safeName(r.DownloadName()), used)
		modified := r.FinishedAt
		if modified.IsZero() {
			modified = time.Now()
		}

		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Store,
			Modified: modified,
		})
		if err != nil {
			return written, fmt.Errorf("add %s to archive: %w", name, err)
		}
		if _, err := entry.Write(r.Data); err != nil {
			return written, fmt.Errorf("write %s to archive: %w", name, err)
		}
		written++
	}

	if err := zw.Close(); err != nil {
		return written, fmt.Errorf("close archive: %w", err)
	}
	return written, nil
}

func uniqueEntryName(name string, used map[string]struct{}) string {
	candidate := name
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		if _, taken := used[candidate]; !taken {
			used[candidate] = struct{}{}
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
	}
}
