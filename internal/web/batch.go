package web

import (
	"fmt"
	"sync"
	"time"

	"image-compressor-go/internal/compressor"
)

// Batch holds the results of one uploaded run while it is in memory.
type Batch struct {
	ID        string
	Quality   float64
	CreatedAt time.Time

	mu       sync.RWMutex
	total    int
	received int
	results  []*compressor.CompressionResult
	summary  *compressor.BatchSummary
	err      error
}

func newBatch(id string, files int, quality float64) *Batch {
	return &Batch{
		ID:        id,
		Quality:   quality,
		CreatedAt: time.Now(),
		total:     files,
		results:   make([]*compressor.CompressionResult, files),
	}
}

func (b *Batch) addResult(r *compressor.CompressionResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r.Index < 0 || r.Index >= b.total || b.results[r.Index] != nil {
		return
	}
	b.results[r.Index] = r
	b.received++
}

func (b *Batch) complete(summary *compressor.BatchSummary) {
	b.mu.Lock()
	b.summary = summary
	b.mu.Unlock()
}

func (b *Batch) fail(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

// Done reports whether the batch finished, successfully or not.
func (b *Batch) Done() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.summary != nil || b.err != nil
}

// Total returns the number of files in the batch.
func (b *Batch) Total() int {
	return b.total
}

// Result returns the result for the file at index, if it arrived.
func (b *Batch) Result(index int) (*compressor.CompressionResult, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if index < 0 || index >= b.total || b.results[index] == nil {
		return nil, false
	}
	return b.results[index], true
}

// Results returns the results received so far, in file order.
func (b *Batch) Results() []*compressor.CompressionResult {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*compressor.CompressionResult, 0, b.received)
	for _, r := range b.results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// BatchView is the JSON shape of a batch.
type BatchView struct {
	ID        string                   `json:"id"`
	Quality   int                      `json:"quality"`
	CreatedAt time.Time                `json:"created_at"`
	Total     int                      `json:"total"`
	Received  int                      `json:"received"`
	Done      bool                     `json:"done"`
	Archive   bool                     `json:"archive_available"`
	Results   []ResultView             `json:"results"`
	Summary   *compressor.BatchSummary `json:"summary,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

// ResultView is the JSON shape of one file's outcome.
type ResultView struct {
	Index        int                   `json:"index"`
	Name         string                `json:"name"`
	SourceMime   string                `json:"source_mime"`
	OutputName   string                `json:"output_name,omitempty"`
	OutputMime   string                `json:"output_mime,omitempty"`
	DownloadName string                `json:"download_name,omitempty"`
	DownloadURL  string                `json:"download_url,omitempty"`
	Natural      compressor.Dimensions `json:"natural"`
	Target       compressor.Dimensions `json:"target"`
	Display      *compressor.Display   `json:"display,omitempty"`
	Error        string                `json:"error,omitempty"`
}

func newResultView(batchID string, r *compressor.CompressionResult) ResultView {
	v := ResultView{
		Index:      r.Index,
		Name:       r.Source.Name,
		SourceMime: r.Source.MimeType,
		Natural:    compressor.Dimensions{Width: r.NaturalWidth, Height: r.NaturalHeight},
		Target:     compressor.Dimensions{Width: r.TargetWidth, Height: r.TargetHeight},
	}
	if !r.Succeeded() {
		if r.Err != nil {
			v.Error = r.Err.Error()
		}
		return v
	}
	display := r.Display()
	v.OutputName = r.OutputName
	v.OutputMime = r.OutputMime
	v.DownloadName = r.DownloadName()
	v.DownloadURL = fmt.Sprintf("/api/batches/%s/results/%d/download", batchID, r.Index)
	v.Display = &display
	return v
}

func (b *Batch) view() BatchView {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v := BatchView{
		ID:        b.ID,
		Quality:   int(b.Quality*100 + 0.5),
		CreatedAt: b.CreatedAt,
		Total:     b.total,
		Received:  b.received,
		Done:      b.summary != nil || b.err != nil,
		Archive:   b.total > 1,
		Results:   make([]ResultView, 0, b.received),
		Summary:   b.summary,
	}
	for _, r := range b.results {
		if r != nil {
			v.Results = append(v.Results, newResultView(b.ID, r))
		}
	}
	if b.err != nil {
		v.Error = b.err.Error()
	}
	return v
}

// batchStore keeps the most recent batches, evicting the oldest.
type batchStore struct {
	mu    sync.RWMutex
	max   int
	byID  map[string]*Batch
	order []string
}

func newBatchStore(limit int) *batchStore {
	if limit <= 0 {
		limit = 1
	}
	return &batchStore{
		max:  limit,
		byID: make(map[string]*Batch),
	}
}

func (s *batchStore) add(b *Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[b.ID] = b
	s.order = append(s.order, b.ID)
	for len(s.order) > s.max {
		delete(s.byID, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *batchStore) get(id string) (*Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byID[id]
	return b, ok
}

func (s *batchStore) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
