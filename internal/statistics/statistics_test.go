package statistics

import (
	"strings"
	"sync"
	"testing"
)

func TestStatisticsRecord(t *testing.T) {
	s := NewStatistics()
	s.SetFilesFound(4)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordCompressed(1000, 400, "image/jpeg", true, false)
		}()
	}
	wg.Wait()
	s.RecordFailure("broken.png", "decode", "unexpected EOF")
	s.Finalize()

	if got := s.GetFilesCompressed(); got != 3 {
		t.Errorf("FilesCompressed = %d, want 3", got)
	}
	if got := s.GetFilesFailed(); got != 1 {
		t.Errorf("FilesFailed = %d, want 1", got)
	}
	if got := s.SpaceSaved(); got != 1800 {
		t.Errorf("SpaceSaved = %d, want 1800", got)
	}
	if s.FormatStats["image/jpeg"] != 3 {
		t.Errorf("FormatStats[image/jpeg] = %d, want 3", s.FormatStats["image/jpeg"])
	}

	summary := s.GetSummary()
	for _, want := range []string{"Selected: 4", "Compressed: 3", "Failed: 1", "Resized: 3", "(60.0%)"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
	if !strings.Contains(s.GetErrorSummary(), "decode: broken.png - unexpected EOF") {
		t.Errorf("unexpected error summary: %s", s.GetErrorSummary())
	}
}

func TestStatisticsGrownFiles(t *testing.T) {
	s := NewStatistics()
	s.RecordCompressed(100, 150, "image/png", false, false)

	if s.FilesGrown != 1 {
		t.Errorf("FilesGrown = %d, want 1", s.FilesGrown)
	}
	if got := s.GetFormatBreakdown(); !strings.Contains(got, "image/png: 1") {
		t.Errorf("unexpected breakdown: %s", got)
	}
}

func TestEmptyStatistics(t *testing.T) {
	s := NewStatistics()
	if got := s.GetErrorSummary(); got != "No errors occurred during processing" {
		t.Errorf("GetErrorSummary() = %q", got)
	}
	if got := s.GetFormatBreakdown(); got != "No format statistics available" {
		t.Errorf("GetFormatBreakdown() = %q", got)
	}
}
