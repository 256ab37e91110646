package download

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/config"
	"image-compressor-go/internal/logger"

	"github.com/sirupsen/logrus"
)

// ErrNoArtifact is returned when saving a result that failed to compress.
var ErrNoArtifact = errors.New("result has no compressed data")

// Action describes what Save did with an artifact.
type Action string

const (
	ActionWritten     Action = "written"
	ActionRenamed     Action = "renamed"
	ActionOverwritten Action = "overwritten"
	ActionSkipped     Action = "skipped"
	ActionDryRun      Action = "dry-run"
)

// SavedFile is the outcome of saving one artifact.
type SavedFile struct {
	Path   string
	Action Action
}

// Saver writes compressed artifacts to a target directory.
type Saver struct {
	targetDir         string
	duplicateHandling string
	dryRun            bool
	logger            *logrus.Logger
}

// NewSaver returns a Saver configured from the output settings.
func NewSaver(cfg config.OutputConfig, logger *logrus.Logger) *Saver {
	return &Saver{
		targetDir:         cfg.TargetDirectory,
		duplicateHandling: cfg.DuplicateHandling,
		dryRun:            cfg.DryRun,
		logger:            logger,
	}
}

// Save writes r under its download name ("compressed_<name>").
func (s *Saver) Save(r *compressor.CompressionResult) (SavedFile, error) {
	if !r.Succeeded() {
		return SavedFile{}, fmt.Errorf("save %s: %w", r.Source.Name, ErrNoArtifact)
	}

	targetPath := filepath.Join(s.targetDir, safeName(r.DownloadName()))
	log := logger.WithOperation(logger.WithFile(s.logger, r.Source.Name), "save").
		WithField("target", targetPath)

	action := ActionWritten
	if fileExists(targetPath) {
		switch s.duplicateHandling {
		case "skip":
			log.Info("Skipping existing artifact")
			return SavedFile{Path: targetPath, Action: ActionSkipped}, nil
		case "overwrite":
			action = ActionOverwritten
		case "rename":
			targetPath = generateUniqueFilename(targetPath)
			action = ActionRenamed
		default:
			return SavedFile{}, fmt.Errorf("unknown duplicate handling strategy: %s", s.duplicateHandling)
		}
	}

	if s.dryRun {
		log.Infof("DRY-RUN: Would write %d bytes to %s", r.CompressedSize, targetPath)
		return SavedFile{Path: targetPath, Action: ActionDryRun}, nil
	}

	if err := os.MkdirAll(s.targetDir, 0755); err != nil {
		return SavedFile{}, fmt.Errorf("create target dir: %w", err)
	}
	if err := writeFileAtomic(targetPath, r.Data); err != nil {
		return SavedFile{}, fmt.Errorf("write %s: %w", targetPath, err)
	}

	log.WithField("action", action).Debug("Artifact saved")
	return SavedFile{Path: targetPath, Action: action}, nil
}

// SaveArchive writes every successful result into a zip file at path.
func (s *Saver) SaveArchive(path string, results []*compressor.CompressionResult) (int, error) {
	if s.dryRun {
		n := 0
		for _, r := range results {
			if r.Succeeded() {
				n++
			}
		}
		logger.WithOperation(s.logger, "archive").Infof("DRY-RUN: Would write archive %s with %d entries", path, n)
		return n, nil
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 0, fmt.Errorf("create archive dir: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}

	n, err := WriteArchive(f, results)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("rename archive: %w", err)
	}

	logger.WithOperation(s.logger, "archive").
		WithFields(logrus.Fields{"archive": path, "entries": n}).
		Info("Archive written")
	return n, nil
}

// writeFileAtomic writes data to a temporary file and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// generateUniqueFilename returns a unique filename by adding a counter.
func generateUniqueFilename(basePath string) string {
	dir := filepath.Dir(basePath)
	name := filepath.Base(basePath)
	ext := filepath.Ext(name)
	nameWithoutExt := strings.TrimSuffix(name, ext)

	counter := 1
	for {
		newName := fmt.Sprintf("%s_%d%s", nameWithoutExt, counter, ext)
		newPath := filepath.Join(dir, newName)
		if _, err := os.Stat(newPath); os.IsNotExist(err) {
			return newPath
		}
		counter++
	}
}

// safeName drops any directory part an uploaded name may carry.
func safeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." {
		return "compressed_image"
	}
	return name
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
