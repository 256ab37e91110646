package statistics

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics contains counters for one compression run.
type Statistics struct {
	TotalFilesFound int64
	FilesCompressed int64
	FilesFailed     int64
	FilesResized    int64
	FilesConverted  int64
	FilesGrown      int64

	BytesOriginal   int64
	BytesCompressed int64

	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	FilesPerSecond float64

	Errors []StatError

	mutex sync.RWMutex

	FormatStats map[string]int64
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:   time.Now(),
		FormatStats: make(map[string]int64),
		Errors:      make([]StatError, 0),
	}
}

// SetFilesFound sets the number of files selected for the run.
func (s *Statistics) SetFilesFound(n int64) {
	atomic.StoreInt64(&s.TotalFilesFound, n)
}

// RecordCompressed records a successfully compressed file.
func (s *Statistics) RecordCompressed(originalSize, compressedSize int64, outputMime string, resized, converted bool) {
	atomic.AddInt64(&s.FilesCompressed, 1)
	atomic.AddInt64(&s.BytesOriginal, originalSize)
	atomic.AddInt64(&s.BytesCompressed, compressedSize)
	if resized {
		atomic.AddInt64(&s.FilesResized, 1)
	}
	if converted {
		atomic.AddInt64(&s.FilesConverted, 1)
	}
	if compressedSize > originalSize {
		atomic.AddInt64(&s.FilesGrown, 1)
	}

	s.mutex.Lock()
	s.FormatStats[outputMime]++
	s.mutex.Unlock()
}

// RecordFailure records a file that produced no artifact.
func (s *Statistics) RecordFailure(filePath, operation, errorMsg string) {
	atomic.AddInt64(&s.FilesFailed, 1)
	s.AddError(filePath, operation, errorMsg)
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// Finalize calculates duration and throughput.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	processed := atomic.LoadInt64(&s.FilesCompressed) + atomic.LoadInt64(&s.FilesFailed)
	if s.Duration.Seconds() > 0 {
		s.FilesPerSecond = float64(processed) / s.Duration.Seconds()
	}
}

// SpaceSaved returns the bytes saved across all compressed files.
func (s *Statistics) SpaceSaved() int64 {
	return atomic.LoadInt64(&s.BytesOriginal) - atomic.LoadInt64(&s.BytesCompressed)
}

// GetSummary returns a formatted summary of the run.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	duration := s.Duration
	fps := s.FilesPerSecond
	s.mutex.RUnlock()

	original := atomic.LoadInt64(&s.BytesOriginal)
	compressed := atomic.LoadInt64(&s.BytesCompressed)

	return fmt.Sprintf(`Image Compressor Statistics Summary:

Files:
		Selected: %d
		Compressed: %d
		Failed: %d
		Resized: %d
		Converted to another format: %d
		Larger than original: %d

Size:
		Original: %s
		Compressed: %s
		Saved: %s (%s%%)

Performance:
		Duration: %v
		Files/Second: %.2f`,
		atomic.LoadInt64(&s.TotalFilesFound),
		atomic.LoadInt64(&s.FilesCompressed),
		atomic.LoadInt64(&s.FilesFailed),
		atomic.LoadInt64(&s.FilesResized),
		atomic.LoadInt64(&s.FilesConverted),
		atomic.LoadInt64(&s.FilesGrown),
		FormatSize(original),
		FormatSize(compressed),
		FormatSize(original-compressed),
		CompressionRatio(original, compressed),
		duration,
		fps)
}

// GetFormatBreakdown returns the number of artifacts per output format.
func (s *Statistics) GetFormatBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.FormatStats) == 0 {
		return "No format statistics available"
	}

	formats := make([]string, 0, len(s.FormatStats))
	for f := range s.FormatStats {
		formats = append(formats, f)
	}
	sort.Strings(formats)

	result := "Output Formats:\n"
	for _, f := range formats {
		result += fmt.Sprintf("  %s: %d\n", f, s.FormatStats[f])
	}
	return result
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return result
}

// GetFilesCompressed returns the number of compressed files.
func (s *Statistics) GetFilesCompressed() int64 {
	return atomic.LoadInt64(&s.FilesCompressed)
}

// GetFilesFailed returns the number of failed files.
func (s *Statistics) GetFilesFailed() int64 {
	return atomic.LoadInt64(&s.FilesFailed)
}
