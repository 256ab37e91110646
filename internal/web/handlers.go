package web

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"sync/atomic"

	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/download"
	"image-compressor-go/internal/source"
	"image-compressor-go/internal/statistics"

	"github.com/gorilla/mux"
)

// multipartMemory is how much of an upload is kept in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	batch := s.currentBatch
	stats := s.currentStats
	s.operationMutex.RUnlock()

	data := map[string]interface{}{
		"running":    running,
		"statistics": statisticsData(stats),
	}
	if batch != nil {
		data["batch_id"] = batch.ID
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    data,
	})
}

func statisticsData(stats *statistics.Statistics) interface{} {
	if stats == nil {
		return nil
	}
	return map[string]interface{}{
		"summary": stats.GetSummary(),
		"files": map[string]interface{}{
			"total_found": atomic.LoadInt64(&stats.TotalFilesFound),
			"compressed":  stats.GetFilesCompressed(),
			"failed":      stats.GetFilesFailed(),
			"resized":     atomic.LoadInt64(&stats.FilesResized),
			"converted":   atomic.LoadInt64(&stats.FilesConverted),
		},
		"bytes": map[string]interface{}{
			"original":   atomic.LoadInt64(&stats.BytesOriginal),
			"compressed": atomic.LoadInt64(&stats.BytesCompressed),
		},
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"default_quality":      s.cfg.Compression.Quality,
			"min_quality":          0,
			"max_quality":          100,
			"max_width":            compressor.MaxWidth,
			"max_height":           compressor.MaxHeight,
			"max_upload_mb":        s.cfg.Web.MaxUploadMB,
			"max_files_per_run":    s.cfg.Input.MaxFilesPerRun,
			"supported_extensions": s.cfg.Input.SupportedExtensions,
		},
	})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	if s.running() {
		s.writeError(w, ErrBatchInProgress.Error(), http.StatusConflict)
		return
	}

	if s.cfg.Web.MaxUploadMB > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.Web.MaxUploadMB)*1024*1024)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.writeError(w, fmt.Sprintf("Invalid upload: %v", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	percent := s.cfg.Compression.Quality
	if v := r.FormValue("quality"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, "Quality must be an integer percentage", http.StatusBadRequest)
			return
		}
		percent = p
	}
	quality, err := compressor.QualityFromPercent(percent)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var files []compressor.SourceImage
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			s.writeError(w, fmt.Sprintf("Failed to read %s: %v", fh.Filename, err), http.StatusBadRequest)
			return
		}
		src, err := source.FromReader(fh.Filename, fh.Header.Get("Content-Type"), f, s.cfg.MaxFileSizeBytes())
		f.Close()
		if errors.Is(err, source.ErrFileTooLarge) {
			s.writeError(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		if err != nil {
			s.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		files = append(files, src)
	}

	files = source.FilterImages(files)
	if len(files) == 0 {
		s.writeError(w, compressor.ErrNoSelection.Error(), http.StatusBadRequest)
		return
	}
	if limit := s.cfg.Input.MaxFilesPerRun; limit > 0 && len(files) > limit {
		s.writeError(w, fmt.Sprintf("Too many files: %d (limit %d)", len(files), limit), http.StatusBadRequest)
		return
	}

	batch := newBatch(newBatchID(), len(files), quality)
	stats := statistics.NewStatistics()
	if err := s.beginBatch(batch, stats); err != nil {
		s.writeError(w, err.Error(), http.StatusConflict)
		return
	}

	run := compressor.BatchRun{ID: batch.ID, Files: files, Quality: quality}
	go s.runBatchAsync(batch, run, stats)

	s.log.WithField("batch", batch.ID).Infof("Accepted %d files at quality %d%%", len(files), percent)
	s.writeJSONStatus(w, http.StatusAccepted, APIResponse{
		Success: true,
		Message: "Compression started",
		Data: map[string]interface{}{
			"batch_id": batch.ID,
			"files":    len(files),
			"quality":  percent,
		},
	})
}

func (s *Server) lookupBatch(w http.ResponseWriter, r *http.Request) (*Batch, bool) {
	batch, ok := s.batches.get(mux.Vars(r)["id"])
	if !ok {
		s.writeError(w, "Batch not found", http.StatusNotFound)
		return nil, false
	}
	return batch, true
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.lookupBatch(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    batch.view(),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.lookupBatch(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		s.writeError(w, "Invalid result index", http.StatusBadRequest)
		return
	}

	res, ok := batch.Result(index)
	if !ok {
		s.writeError(w, "Result not available", http.StatusNotFound)
		return
	}
	if !res.Succeeded() {
		s.writeError(w, fmt.Sprintf("%s was not compressed", res.Source.Name), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", res.OutputMime)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": res.DownloadName(),
	}))
	w.Header().Set("Content-Length", strconv.FormatInt(res.CompressedSize, 10))
	if _, err := w.Write(res.Data); err != nil {
		s.log.WithField("batch", batch.ID).Warnf("Download interrupted: %v", err)
	}
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.lookupBatch(w, r)
	if !ok {
		return
	}
	if batch.Total() < 2 {
		s.writeError(w, "Archive is only available for batches with more than one file", http.StatusBadRequest)
		return
	}
	if !batch.Done() {
		s.writeError(w, "Batch is still running", http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": s.cfg.Output.ArchiveName,
	}))
	n, err := download.WriteArchive(w, batch.Results())
	if err != nil {
		s.log.WithField("batch", batch.ID).Errorf("Failed to stream archive: %v", err)
		return
	}
	s.log.WithField("batch", batch.ID).Debugf("Streamed archive with %d entries", n)
}
