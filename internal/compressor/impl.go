package compressor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"image-compressor-go/internal/logger"
	"image-compressor-go/internal/statistics"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
)

// BatchOptions receives results while a batch runs.
// OnResult is called once per file in completion order; OnComplete is called
// exactly once, after the last OnResult. Both run on the goroutine that
// called Compress, never concurrently.
type BatchOptions struct {
	OnResult   func(*CompressionResult)
	OnComplete func(*BatchSummary)
	Stats      *statistics.Statistics
}

// BatchCompressor is the default implementation of the Compressor interface.
type BatchCompressor struct {
	codec   Codec
	logger  *logrus.Logger
	workers int
}

// NewBatchCompressor creates a BatchCompressor. workers bounds the number of
// files decoded at once; zero or less starts one task per file.
func NewBatchCompressor(codec Codec, logger *logrus.Logger, workers int) *BatchCompressor {
	return &BatchCompressor{
		codec:   codec,
		logger:  logger,
		workers: workers,
	}
}

// Compress decodes, resizes and re-encodes every file of the run concurrently.
// A file that fails still yields a result with Err set, so the batch always
// completes with exactly one result per file.
func (c *BatchCompressor) Compress(ctx context.Context, run BatchRun, opts BatchOptions) ([]*CompressionResult, *BatchSummary, error) {
	if len(run.Files) == 0 {
		return nil, nil, ErrNoSelection
	}
	if !ValidQuality(run.Quality) {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidQuality, run.Quality)
	}

	start := time.Now()
	total := len(run.Files)
	log := logger.WithBatch(c.logger, run.ID).WithFields(logrus.Fields{
		"files":   total,
		"quality": run.Quality,
	})
	log.Info("Starting batch compression")

	if opts.Stats != nil {
		opts.Stats.SetFilesFound(int64(total))
	}

	results := make(chan *CompressionResult, total)
	p := pool.New()
	if c.workers > 0 {
		p = p.WithMaxGoroutines(c.workers)
	}

	go func() {
		for i := range run.Files {
			i := i
			p.Go(func() {
				results <- c.compressOne(ctx, run, i)
			})
		}
		p.Wait()
		close(results)
	}()

	collected := make([]*CompressionResult, 0, total)
	summary := &BatchSummary{RunID: run.ID, Total: total}
	for r := range results {
		collected = append(collected, r)
		summary.add(r)
		c.record(opts.Stats, r)

		if opts.OnResult != nil {
			opts.OnResult(r)
		}

		if len(collected) == total {
			summary.Duration = time.Since(start)
			if opts.Stats != nil {
				opts.Stats.Finalize()
			}
			if opts.OnComplete != nil {
				opts.OnComplete(summary)
			}
		}
	}

	log.WithFields(logrus.Fields{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"duration":  summary.Duration,
	}).Info("Batch compression completed")

	return collected, summary, nil
}

// compressOne runs decode, resize and encode for one file.
func (c *BatchCompressor) compressOne(ctx context.Context, run BatchRun, index int) (res *CompressionResult) {
	src := run.Files[index]
	res = &CompressionResult{
		Index:     index,
		Source:    src,
		StartedAt: time.Now(),
	}
	log := logger.WithFile(logger.WithBatch(c.logger, run.ID), src.Name)

	defer func() {
		if rvr := recover(); rvr != nil {
			res.Data = nil
			res.CompressedSize = 0
			res.Err = fmt.Errorf("compress %s: panic: %v", src.Name, rvr)
			log.WithField("stack", string(debug.Stack())).Error("Panic while compressing file")
		}
		res.FinishedAt = time.Now()
	}()

	if err := ctx.Err(); err != nil {
		res.Err = fmt.Errorf("compress %s: %w", src.Name, err)
		return res
	}

	img, err := c.codec.Decode(ctx, src.Data)
	if err == nil && (img.Bounds().Dx() <= 0 || img.Bounds().Dy() <= 0) {
		err = errors.New("image has no pixels")
	}
	if err != nil {
		res.Err = &DecodeError{Name: src.Name, Err: err}
		log.WithError(err).Warn("Could not decode image")
		return res
	}

	bounds := img.Bounds()
	res.NaturalWidth, res.NaturalHeight = bounds.Dx(), bounds.Dy()

	target := ComputeTargetSize(res.NaturalWidth, res.NaturalHeight)
	res.TargetWidth, res.TargetHeight = target.Width, target.Height
	if res.Resized() {
		img = c.codec.Resize(img, target)
	}

	res.OutputMime = EncodedFormat(ChooseOutputFormat(src.MimeType, run.Quality))
	res.OutputName = DeriveName(src.Name, res.OutputMime)

	data, err := c.codec.Encode(ctx, img, res.OutputMime, run.Quality)
	if err != nil {
		res.Err = &EncodeError{Name: src.Name, Mime: res.OutputMime, Err: err}
		log.WithError(err).Warn("Could not encode image")
		return res
	}

	res.Data = data
	res.CompressedSize = int64(len(data))

	log.WithFields(logrus.Fields{
		"original_size":   src.Size(),
		"compressed_size": res.CompressedSize,
		"output":          res.OutputName,
		"target":          target.String(),
	}).Debug("Image compressed")

	return res
}

func (c *BatchCompressor) record(stats *statistics.Statistics, r *CompressionResult) {
	if stats == nil {
		return
	}
	if !r.Succeeded() {
		err := r.Err
		if err == nil {
			err = errors.New("no output produced")
		}
		stats.RecordFailure(r.Source.Name, failureOperation(err), err.Error())
		return
	}
	stats.RecordCompressed(r.Source.Size(), r.CompressedSize, r.OutputMime, r.Resized(), r.Converted())
}
