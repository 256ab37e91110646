package compressor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"image-compressor-go/internal/statistics"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

// fakeCodec decodes payloads of the form "WxH" into blank rasters.
type fakeCodec struct {
	resized   atomic.Int64
	inFlight  atomic.Int64
	maxFlight atomic.Int64
	delay     time.Duration
	failWidth int
	panicOn   int
}

func (f *fakeCodec) Decode(_ context.Context, data []byte) (image.Image, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxFlight.Load()
		if n <= cur || f.maxFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	var w, h int
	if _, err := fmt.Sscanf(string(data), "%dx%d", &w, &h); err != nil {
		return nil, fmt.Errorf("not an image: %w", err)
	}
	if f.panicOn != 0 && w == f.panicOn {
		panic("decoder crashed")
	}
	return image.NewRGBA(image.Rect(0, 0, w, h)), nil
}

func (f *fakeCodec) Resize(_ image.Image, size Dimensions) image.Image {
	f.resized.Add(1)
	return image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
}

func (f *fakeCodec) Encode(_ context.Context, img image.Image, mime string, quality float64) ([]byte, error) {
	if f.failWidth != 0 && img.Bounds().Dx() == f.failWidth {
		return nil, errors.New("encoder refused")
	}
	return []byte(fmt.Sprintf("%s:%d:%.2f", mime, img.Bounds().Dx(), quality)), nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func source(name, mime, payload string) SourceImage {
	return SourceImage{Name: name, MimeType: mime, Data: []byte(payload)}
}

func TestCompressEmitsOneResultPerFileThenCompletes(t *testing.T) {
	codec := &fakeCodec{}
	c := NewBatchCompressor(codec, quietLogger(), 0)

	run := BatchRun{
		ID:      "run-1",
		Quality: 0.8,
		Files: []SourceImage{
			source("a.jpg", MimeJPEG, "640x480"),
			source("b.jpg", MimeJPEG, "4000x3000"),
			source("c.webp", MimeWebP, "100x100"),
		},
	}

	var mu sync.Mutex
	var events []string
	seen := map[string]bool{}
	completions := 0

	results, summary, err := c.Compress(context.Background(), run, BatchOptions{
		OnResult: func(r *CompressionResult) {
			mu.Lock()
			defer mu.Unlock()
			if completions > 0 {
				t.Errorf("result for %s delivered after completion", r.Source.Name)
			}
			events = append(events, "result")
			seen[r.Source.Name] = true
		},
		OnComplete: func(s *BatchSummary) {
			mu.Lock()
			defer mu.Unlock()
			completions++
			events = append(events, "complete")
			if len(seen) != 3 {
				t.Errorf("completion fired with %d results", len(seen))
			}
		},
	})
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}

	if completions != 1 {
		t.Fatalf("completion fired %d times, want 1", completions)
	}
	if len(events) != 4 || events[3] != "complete" {
		t.Fatalf("events = %v", events)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if summary.Total != 3 || summary.Succeeded != 3 || summary.Failed != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if got := codec.resized.Load(); got != 1 {
		t.Errorf("Resize called %d times, want 1", got)
	}

	for _, r := range results {
		if r.Source.Name != run.Files[r.Index].Name {
			t.Errorf("result index %d references %s", r.Index, r.Source.Name)
		}
		if r.Source.Name == "b.jpg" {
			if r.TargetWidth != 1440 || r.TargetHeight != 1080 {
				t.Errorf("b.jpg target = %dx%d, want 1440x1080", r.TargetWidth, r.TargetHeight)
			}
			if r.NaturalWidth != 4000 || r.NaturalHeight != 3000 {
				t.Errorf("b.jpg natural = %dx%d", r.NaturalWidth, r.NaturalHeight)
			}
		}
		if r.Source.Name == "c.webp" && r.OutputName != "c_compressed.webp" {
			t.Errorf("c.webp output name = %q", r.OutputName)
		}
	}
}

func TestCompressPNGBelowThresholdBecomesJPEG(t *testing.T) {
	c := NewBatchCompressor(&fakeCodec{}, quietLogger(), 0)
	results, _, err := c.Compress(context.Background(), BatchRun{
		Quality: 0.5,
		Files:   []SourceImage{source("logo.png", MimePNG, "200x100")},
	}, BatchOptions{})
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}

	r := results[0]
	if r.OutputMime != MimeJPEG {
		t.Errorf("OutputMime = %q, want image/jpeg", r.OutputMime)
	}
	if r.OutputName != "logo_compressed.jpg" {
		t.Errorf("OutputName = %q", r.OutputName)
	}
	if !r.Converted() {
		t.Error("expected result to be marked as converted")
	}
	if r.DownloadName() != "compressed_logo_compressed.jpg" {
		t.Errorf("DownloadName() = %q", r.DownloadName())
	}
}

func TestCompressUnencodableFormatsBecomePNG(t *testing.T) {
	c := NewBatchCompressor(&fakeCodec{}, quietLogger(), 0)
	results, _, err := c.Compress(context.Background(), BatchRun{
		Quality: 0.8,
		Files: []SourceImage{
			source("anim.gif", "image/gif", "40x30"),
			source("scan.bmp", "image/bmp", "40x30"),
			source("photo.webp", MimeWebP, "40x30"),
		},
	}, BatchOptions{})
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}

	want := map[string]string{
		"anim.gif":   "anim_compressed.png",
		"scan.bmp":   "scan_compressed.png",
		"photo.webp": "photo_compressed.webp",
	}
	for _, r := range results {
		if r.OutputName != want[r.Source.Name] {
			t.Errorf("%s: OutputName = %q, want %q", r.Source.Name, r.OutputName, want[r.Source.Name])
		}
		if !strings.HasPrefix(string(r.Data), r.OutputMime+":") {
			t.Errorf("%s: encoded as %q, labelled %s", r.Source.Name, r.Data, r.OutputMime)
		}
	}
}

func TestCompressFailedFilesStillComplete(t *testing.T) {
	stats := statistics.NewStatistics()
	c := NewBatchCompressor(&fakeCodec{failWidth: 13, panicOn: 77}, quietLogger(), 2)

	run := BatchRun{
		Quality: 0.7,
		Files: []SourceImage{
			source("ok.jpg", MimeJPEG, "10x10"),
			source("garbage.jpg", MimeJPEG, "not an image"),
			source("refused.jpg", MimeJPEG, "13x13"),
			source("crash.jpg", MimeJPEG, "77x77"),
		},
	}

	var completed *BatchSummary
	results, summary, err := c.Compress(context.Background(), run, BatchOptions{
		Stats:      stats,
		OnComplete: func(s *BatchSummary) { completed = s },
	})
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if completed == nil || completed != summary {
		t.Fatal("completion callback did not receive the returned summary")
	}
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	if summary.Succeeded != 1 || summary.Failed != 3 {
		t.Errorf("summary = %+v", summary)
	}

	byName := map[string]*CompressionResult{}
	for _, r := range results {
		byName[r.Source.Name] = r
	}

	var decErr *DecodeError
	if !errors.As(byName["garbage.jpg"].Err, &decErr) {
		t.Errorf("garbage.jpg error = %v, want DecodeError", byName["garbage.jpg"].Err)
	}
	var encErr *EncodeError
	if !errors.As(byName["refused.jpg"].Err, &encErr) || encErr.Mime != MimeJPEG {
		t.Errorf("refused.jpg error = %v, want EncodeError", byName["refused.jpg"].Err)
	}
	if byName["crash.jpg"].Err == nil || byName["crash.jpg"].Succeeded() {
		t.Error("crash.jpg should carry the recovered panic")
	}
	if stats.GetFilesFailed() != 3 || stats.GetFilesCompressed() != 1 {
		t.Errorf("stats compressed=%d failed=%d", stats.GetFilesCompressed(), stats.GetFilesFailed())
	}
}

func TestCompressLogsBatchAndFile(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	c := NewBatchCompressor(&fakeCodec{}, log, 1)

	run := BatchRun{ID: "b-1", Quality: 0.8, Files: []SourceImage{source("garbage.jpg", MimeJPEG, "nope")}}
	if _, _, err := c.Compress(context.Background(), run, BatchOptions{}); err != nil {
		t.Fatalf("Compress() error = %v", err)
	}

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Data["batch"] != "b-1" {
			t.Errorf("entry %q has batch %v", e.Message, e.Data["batch"])
		}
		if e.Level == logrus.WarnLevel {
			warned = true
			if e.Data["file"] != "garbage.jpg" {
				t.Errorf("warning has file %v", e.Data["file"])
			}
		}
	}
	if !warned {
		t.Error("no warning logged for the undecodable file")
	}
}

func TestCompressBoundsConcurrency(t *testing.T) {
	codec := &fakeCodec{delay: 10 * time.Millisecond}
	c := NewBatchCompressor(codec, quietLogger(), 2)

	files := make([]SourceImage, 8)
	for i := range files {
		files[i] = source(fmt.Sprintf("%d.jpg", i), MimeJPEG, "10x10")
	}

	results, _, err := c.Compress(context.Background(), BatchRun{Quality: 0.8, Files: files}, BatchOptions{})
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if len(results) != len(files) {
		t.Fatalf("got %d results", len(results))
	}
	if got := codec.maxFlight.Load(); got > 2 {
		t.Errorf("observed %d concurrent decodes, want at most 2", got)
	}
}

func TestCompressRejectsEmptyAndInvalidRuns(t *testing.T) {
	c := NewBatchCompressor(&fakeCodec{}, quietLogger(), 0)

	called := false
	opts := BatchOptions{OnComplete: func(*BatchSummary) { called = true }}

	if _, _, err := c.Compress(context.Background(), BatchRun{Quality: 0.8}, opts); !errors.Is(err, ErrNoSelection) {
		t.Errorf("empty run error = %v, want ErrNoSelection", err)
	}
	run := BatchRun{Quality: 1.5, Files: []SourceImage{source("a.jpg", MimeJPEG, "1x1")}}
	if _, _, err := c.Compress(context.Background(), run, opts); !errors.Is(err, ErrInvalidQuality) {
		t.Errorf("invalid quality error = %v, want ErrInvalidQuality", err)
	}
	if called {
		t.Error("completion must not fire for rejected runs")
	}
}

func TestCompressCanceledContextStillAccountsForEveryFile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewBatchCompressor(&fakeCodec{}, quietLogger(), 1)
	results, summary, err := c.Compress(ctx, BatchRun{
		Quality: 0.8,
		Files:   []SourceImage{source("a.jpg", MimeJPEG, "1x1"), source("b.jpg", MimeJPEG, "1x1")},
	}, BatchOptions{})
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if len(results) != 2 || summary.Failed != 2 {
		t.Fatalf("results=%d summary=%+v", len(results), summary)
	}
	if !errors.Is(results[0].Err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", results[0].Err)
	}
}

func TestDisplay(t *testing.T) {
	r := &CompressionResult{
		Source:         SourceImage{Data: make([]byte, 2048)},
		CompressedSize: 512,
		NaturalWidth:   800,
		NaturalHeight:  600,
	}
	d := r.Display()
	want := Display{
		OriginalSize:       "2 KB",
		OriginalDimensions: "800 × 600",
		CompressedSize:     "512 Bytes",
		CompressionRatio:   "75.0",
	}
	if d != want {
		t.Errorf("Display() = %+v, want %+v", d, want)
	}
}
