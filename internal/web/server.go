package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/config"
	"image-compressor-go/internal/statistics"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// ErrBatchInProgress is returned when a batch is submitted while another runs.
var ErrBatchInProgress = errors.New("a batch is already in progress")

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	compressor compressor.Compressor
	router     *mux.Router
	handler    http.Handler
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	// Current operation state
	operationMutex sync.RWMutex
	isRunning      bool
	currentBatch   *Batch
	currentStats   *statistics.Statistics
	batches        *batchStore
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(cfg *config.Config, log *logrus.Logger, comp compressor.Compressor) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		log:        log,
		compressor: comp,
		router:     mux.NewRouter(),
		wsClients:  make(map[*websocket.Conn]bool),
		ctx:        ctx,
		cancel:     cancel,
		batches:    newBatchStore(cfg.Web.MaxBatches),
	}
	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	s.setupRoutes()
	s.handler = cors.New(cors.Options{
		AllowedOrigins: cfg.Web.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Disposition"},
	}).Handler(s.router)
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/config", s.handleConfig).Methods("GET")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/batches/{id}", s.handleGetBatch).Methods("GET")
	api.HandleFunc("/batches/{id}/results/{index:[0-9]+}/download", s.handleDownload).Methods("GET")
	api.HandleFunc("/batches/{id}/archive", s.handleArchive).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	if s.cfg.Web.StaticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.cfg.Web.StaticDir)))
	}
}

// Handler returns the HTTP handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.cancel()

	s.wsMutex.Lock()
	for conn := range s.wsClients {
		conn.Close()
		delete(s.wsClients, conn)
	}
	s.wsMutex.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.Web.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// beginBatch claims the running slot for batch.
func (s *Server) beginBatch(batch *Batch, stats *statistics.Statistics) error {
	s.operationMutex.Lock()
	defer s.operationMutex.Unlock()
	if s.isRunning {
		return ErrBatchInProgress
	}
	s.isRunning = true
	s.currentBatch = batch
	s.currentStats = stats
	s.batches.add(batch)
	return nil
}

// finishBatch releases the running slot if batch still holds it. It is safe
// to call more than once.
func (s *Server) finishBatch(batch *Batch) {
	s.operationMutex.Lock()
	if s.currentBatch == batch {
		s.isRunning = false
	}
	s.operationMutex.Unlock()
}

func (s *Server) running() bool {
	s.operationMutex.RLock()
	defer s.operationMutex.RUnlock()
	return s.isRunning
}

func (s *Server) runBatchAsync(batch *Batch, run compressor.BatchRun, stats *statistics.Statistics) {
	defer s.finishBatch(batch)

	log := s.log.WithField("batch", batch.ID)
	s.broadcastWSMessage("batch_started", map[string]interface{}{
		"batch_id": batch.ID,
		"files":    len(run.Files),
		"quality":  run.Quality,
	})

	_, _, err := s.compressor.Compress(s.ctx, run, compressor.BatchOptions{
		Stats: stats,
		OnResult: func(r *compressor.CompressionResult) {
			batch.addResult(r)
			view := newResultView(batch.ID, r)
			if r.Succeeded() {
				s.broadcastWSMessage("file_compressed", map[string]interface{}{
					"batch_id": batch.ID,
					"result":   view,
				})
			} else {
				s.broadcastWSMessage("file_failed", map[string]interface{}{
					"batch_id": batch.ID,
					"result":   view,
				})
			}
		},
		OnComplete: func(summary *compressor.BatchSummary) {
			batch.complete(summary)
			s.finishBatch(batch)
			s.broadcastWSMessage("batch_completed", map[string]interface{}{
				"batch_id":   batch.ID,
				"summary":    summary,
				"ratio":      summary.Ratio(),
				"statistics": stats.GetSummary(),
			})
		},
	})
	if err != nil {
		log.WithError(err).Error("Batch failed")
		batch.fail(err)
		s.finishBatch(batch)
		s.broadcastWSMessage("batch_completed", map[string]interface{}{
			"batch_id": batch.ID,
			"error":    err.Error(),
		})
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	// Remove client on disconnect
	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (s *Server) clientCount() int {
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()
	return len(s.wsClients)
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	// gorilla connections support one concurrent writer
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	s.writeJSONStatus(w, http.StatusOK, data)
}

func (s *Server) writeJSONStatus(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSONStatus(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

func newBatchID() string {
	return uuid.New().String()
}
