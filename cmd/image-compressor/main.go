package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"image-compressor-go/internal/codec"
	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/config"
	"image-compressor-go/internal/download"
	"image-compressor-go/internal/extractor"
	"image-compressor-go/internal/logger"
	"image-compressor-go/internal/source"
	"image-compressor-go/internal/statistics"
	"image-compressor-go/internal/web"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	targetDir   string
	quality     int
	zipPath     string
	workers     int
	dryRun      bool
	verbose     bool
	quiet       bool
	useExiftool bool
	version     = "dev"
	port        int
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "image-compressor",
	Short: "Downscale and re-encode images in batches",
	Long: `Image Compressor shrinks a selection of images in one batch.

Each image is scaled down to fit 1920x1080 (and never more than that many
pixels), re-encoded at the chosen quality and saved as
compressed_<name>_compressed.<ext>. PNG files are converted to JPEG when the
quality is below 90%.

Features:
- Concurrent batch compression with per-file results
- Original vs compressed size, dimensions and ratio for every file
- Zip archive of the whole batch
- Web interface with live progress over WebSocket
- Dry-run mode for safe testing`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// compressCmd compresses files and directories given on the command line.
var compressCmd = &cobra.Command{
	Use:   "compress <file|dir>...",
	Short: "Compress images and save the results",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd, args)
	},
}

// inspectCmd shows what compression would do to a single file.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show dimensions, output format and EXIF metadata for an image",
	Long: `Inspect decodes one image, reports its natural and target dimensions,
the output format chosen for the given quality, the size it would compress to
and any EXIF metadata it carries. Nothing is written.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(cmd, args[0])
	},
}

// serveCmd starts the web interface server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start web interface server",
	Long: `Starts a web server that accepts image uploads, compresses them and
streams progress to the browser over a WebSocket.

Access the API at http://localhost:<port> (default: 8080)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	compressCmd.Flags().IntVarP(&quality, "quality", "q", 80, "quality percentage (0-100)")
	compressCmd.Flags().StringVarP(&targetDir, "target", "o", "", "directory for compressed files")
	compressCmd.Flags().StringVar(&zipPath, "zip", "", "also write all results into this zip archive")
	compressCmd.Flags().IntVar(&workers, "workers", 0, "number of images processed at once")
	compressCmd.Flags().BoolVar(&dryRun, "dry-run", false, "compress without writing any files")

	inspectCmd.Flags().IntVarP(&quality, "quality", "q", 80, "quality percentage (0-100)")
	inspectCmd.Flags().BoolVar(&useExiftool, "exiftool", false, "fall back to the exiftool binary for metadata")

	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run web server on")

	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
}

// runCompress executes one batch over the selected files.
func runCompress(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	stats := statistics.NewStatistics()

	files, skipped, err := loadSources(cfg, args, log, stats)
	if err != nil {
		return err
	}

	q, err := compressor.QualityFromPercent(cfg.Compression.Quality)
	if err != nil {
		return err
	}

	bc, err := newBatchCompressor(cfg, log)
	if err != nil {
		return err
	}
	saver := download.NewSaver(cfg.Output, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := compressor.BatchRun{
		ID:      uuid.New().String(),
		Files:   files,
		Quality: q,
	}

	var saveFailures int
	results, summary, err := bc.Compress(ctx, run, compressor.BatchOptions{
		Stats: stats,
		OnResult: func(r *compressor.CompressionResult) {
			printResult(r)
			if !r.Succeeded() {
				return
			}
			if _, err := saver.Save(r); err != nil {
				saveFailures++
				logger.WithFile(log, r.Source.Name).Errorf("Failed to save: %v", err)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("compression failed: %w", err)
	}

	if zipPath != "" {
		if len(run.Files) > 1 {
			n, err := saver.SaveArchive(zipPath, results)
			if err != nil {
				return fmt.Errorf("failed to write archive: %w", err)
			}
			if !quiet {
				fmt.Printf("Archive %s: %d files\n", zipPath, n)
			}
		} else {
			log.Warn("Archive skipped: only one file was selected")
		}
	}

	if !quiet {
		fmt.Println("\n" + stats.GetSummary())
		fmt.Println("\n" + stats.GetFormatBreakdown())
		if len(stats.Errors) > 0 {
			fmt.Println(stats.GetErrorSummary())
		}
	}

	return batchError(summary, skipped, saveFailures)
}

// batchError reports a non-zero exit when any selected file was skipped,
// failed to compress or could not be saved.
func batchError(summary *compressor.BatchSummary, skipped, saveFailures int) error {
	if failed := summary.Failed + skipped; failed > 0 {
		return fmt.Errorf("%d of %d files could not be compressed", failed, summary.Total+skipped)
	}
	if saveFailures > 0 {
		return fmt.Errorf("%d compressed files could not be saved", saveFailures)
	}
	return nil
}

// loadSources collects and reads the selected image files. Files that
// cannot be read are logged, recorded in stats and counted in skipped.
func loadSources(cfg *config.Config, args []string, log *logrus.Logger, stats *statistics.Statistics) (files []compressor.SourceImage, skipped int, err error) {
	paths, err := source.Collect(args, cfg.IsImageExtension)
	if err != nil {
		return nil, 0, err
	}
	if limit := cfg.Input.MaxFilesPerRun; limit > 0 && len(paths) > limit {
		return nil, 0, fmt.Errorf("too many files selected: %d (limit %d)", len(paths), limit)
	}

	files = make([]compressor.SourceImage, 0, len(paths))
	for _, path := range paths {
		src, err := source.Load(path, cfg.MaxFileSizeBytes())
		if err != nil {
			logger.WithFile(log, path).Warnf("Skipping file: %v", err)
			stats.AddError(path, "read", err.Error())
			skipped++
			continue
		}
		files = append(files, src)
	}

	files = source.FilterImages(files)
	if len(files) == 0 {
		return nil, skipped, compressor.ErrNoSelection
	}
	return files, skipped, nil
}

// printResult writes the comparison line for one file.
func printResult(r *compressor.CompressionResult) {
	if quiet {
		return
	}
	if !r.Succeeded() {
		fmt.Printf("✗ %s: %v\n", r.Source.Name, r.Err)
		return
	}
	d := r.Display()
	fmt.Printf("✓ %s → %s  %s → %s (%s%% smaller)  %s",
		r.Source.Name, r.DownloadName(), d.OriginalSize, d.CompressedSize, d.CompressionRatio, d.OriginalDimensions)
	if r.Resized() {
		fmt.Printf(" → %d × %d", r.TargetWidth, r.TargetHeight)
	}
	fmt.Println()
}

// runInspect prints what a compression at the given quality would produce.
func runInspect(cmd *cobra.Command, filePath string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := setupLogger(cfg)

	src, err := source.Load(filePath, 0)
	if err != nil {
		return err
	}
	q, err := compressor.QualityFromPercent(cfg.Compression.Quality)
	if err != nil {
		return err
	}

	bc, err := newBatchCompressor(cfg, log)
	if err != nil {
		return err
	}
	results, _, err := bc.Compress(context.Background(), compressor.BatchRun{
		ID:      "inspect",
		Files:   []compressor.SourceImage{src},
		Quality: q,
	}, compressor.BatchOptions{})
	if err != nil {
		return err
	}
	r := results[0]

	fmt.Printf("File:        %s\n", src.Name)
	fmt.Printf("Type:        %s\n", src.MimeType)
	fmt.Printf("Size:        %s\n", statistics.FormatSize(src.Size()))
	if r.Err != nil {
		fmt.Printf("Compression: failed: %v\n", r.Err)
	} else {
		d := r.Display()
		fmt.Printf("Dimensions:  %s\n", d.OriginalDimensions)
		fmt.Printf("Target:      %s\n", compressor.Dimensions{Width: r.TargetWidth, Height: r.TargetHeight})
		fmt.Printf("Output:      %s (%s)\n", r.DownloadName(), r.OutputMime)
		fmt.Printf("Compressed:  %s (%s%% smaller) at quality %d%%\n",
			d.CompressedSize, d.CompressionRatio, cfg.Compression.Quality)
	}

	meta, err := readMetadata(extractor.NewMetadataExtractor(log, useExiftool), src, filePath, useExiftool)
	if errors.Is(err, extractor.ErrNoMetadata) {
		fmt.Println("EXIF:        none")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("EXIF source: %s\n", meta.Source)
	if camera := meta.Camera(); camera != "" {
		fmt.Printf("Camera:      %s\n", camera)
	}
	if meta.TakenAt != nil {
		fmt.Printf("Taken:       %s\n", meta.TakenAt.Format("2006-01-02 15:04:05"))
	}
	if meta.Orientation != 0 {
		fmt.Printf("Orientation: %d (rotated: %t)\n", meta.Orientation, meta.Rotated())
	}
	if meta.Software != "" {
		fmt.Printf("Software:    %s\n", meta.Software)
	}
	return nil
}

// readMetadata parses EXIF from the bytes already loaded. The exiftool
// fallback reads from disk, so it goes through the file path.
func readMetadata(ex extractor.Extractor, src compressor.SourceImage, filePath string, exiftool bool) (*extractor.Metadata, error) {
	meta, err := ex.ExtractFromBytes(src.Data)
	if errors.Is(err, extractor.ErrNoMetadata) && exiftool {
		return ex.Extract(filePath)
	}
	return meta, err
}

// runServe starts the web server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CONFIG LOAD ERROR: %v\n", err)
		cfg = config.DefaultConfig()
	}
	if cmd.Flags().Changed("port") {
		cfg.Web.Port = port
	}

	log := setupLogger(cfg)
	bc, err := newBatchCompressor(cfg, log)
	if err != nil {
		return err
	}
	server := web.NewServer(cfg, log, bc)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(cfg.Web.Port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	fmt.Printf("Image Compressor web service started on http://localhost:%d\n", cfg.Web.Port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	<-sigChan
	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped gracefully")
	return nil
}

// loadConfig loads configuration and applies CLI overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Lookup("quality") != nil && flags.Changed("quality") {
		cfg.Compression.Quality = quality
	}
	if targetDir != "" {
		cfg.Output.TargetDirectory = targetDir
	}
	if dryRun {
		cfg.Output.DryRun = true
	}
	if workers > 0 {
		cfg.Performance.WorkerThreads = workers
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newBatchCompressor wires the imaging codec into a batch compressor.
func newBatchCompressor(cfg *config.Config, log *logrus.Logger) (*compressor.BatchCompressor, error) {
	c, err := codec.NewImagingCodec(cfg.Compression.ResizeFilter)
	if err != nil {
		return nil, err
	}
	return compressor.NewBatchCompressor(c, log, cfg.Performance.WorkerThreads), nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    !quiet,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
