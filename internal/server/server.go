package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ppiankov/casefile/internal/investigate"
)

// Config controls the HTTP transport
type Config struct {
	Addr string

	// DocsDir keeps uploaded files so they can be re-extracted by name
	DocsDir string

	// MaxUpload bounds a multipart upload in bytes
	MaxUpload int64

	PingInterval time.Duration
	PongWait     time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the transport defaults
func DefaultConfig() Config {
	return Config{
		Addr:         ":8000",
		DocsDir:      "data/docs",
		MaxUpload:    64 << 20,
		PingInterval: 20 * time.Second,
		PongWait:     60 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server exposes the investigation service over HTTP and a websocket
// question loop
type Server struct {
	svc      *investigate.Service
	config   Config
	logger   *zap.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// New builds the server and registers its routes
func New(svc *investigate.Service, config Config, logger *zap.Logger) *Server {
	d := DefaultConfig()
	if config.Addr == "" {
		config.Addr = d.Addr
	}
	if config.DocsDir == "" {
		config.DocsDir = d.DocsDir
	}
	if config.MaxUpload <= 0 {
		config.MaxUpload = d.MaxUpload
	}
	if config.PingInterval <= 0 {
		config.PingInterval = d.PingInterval
	}
	if config.PongWait <= 0 {
		config.PongWait = d.PongWait
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = d.WriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		svc:    svc,
		config: config,
		logger: logger.Named("server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// local tool; the UI may be served from another port
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/corpus", s.handleCreateCorpus)
	s.mux.HandleFunc("GET /api/documents", s.handleListDocuments)
	s.mux.HandleFunc("POST /api/documents", s.handleUpload)
	s.mux.HandleFunc("DELETE /api/documents/{name}", s.handleRemoveDocument)
	s.mux.HandleFunc("POST /api/ask", s.handleAsk)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)

	s.mux.HandleFunc("GET /api/extraction/status", s.handleExtractionStatus)
	s.mux.HandleFunc("GET /api/extraction/conflicts", s.handleConflicts)
	s.mux.HandleFunc("GET /api/extraction/entities", s.handleEntities)
	s.mux.HandleFunc("POST /api/extraction/deduplicate", s.handleDeduplicate)
	s.mux.HandleFunc("POST /api/extraction/reextract", s.handleReextract)

	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening", zap.String("addr", s.config.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}
