package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/config"
	"github.com/Nephrolytics-ai/radiosafe/pkg/logging"
	"github.com/Nephrolytics-ai/radiosafe/pkg/metrics"
	"github.com/Nephrolytics-ai/radiosafe/pkg/session"
	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	httpServer *http.Server
	upgrader   websocket.Upgrader
	manager    *session.Manager
	config     *config.Config
	metrics    *metrics.Metrics
	handler    http.Handler
}

func NewServer(cfg *config.Config, manager *session.Manager, m *metrics.Metrics) *Server {
	s := &Server{
		manager: manager,
		config:  cfg,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    4 * 1024,
			WriteBufferSize:   64 * 1024, // 64KB for audio frames
			EnableCompression: true,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(cfg.AllowedOrigins, r.Header.Get("Origin"))
			},
		},
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)
	s.handler = s.withCORS(mux)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.withMetrics("/health", s.handleHealth))

	mux.HandleFunc("POST /api/sessions", s.withMetrics("/api/sessions", s.handleCreateSession))
	mux.HandleFunc("GET /api/sessions/{id}", s.withMetrics("/api/sessions/{id}", s.handleGetSession))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.withMetrics("/api/sessions/{id}", s.handleDeleteSession))
	mux.HandleFunc("POST /api/sessions/{id}/analyze", s.withMetrics("/api/sessions/{id}/analyze", s.handleAnalyze))
	mux.HandleFunc("POST /api/sessions/{id}/reset", s.withMetrics("/api/sessions/{id}/reset", s.handleReset))
	mux.HandleFunc("POST /api/sessions/{id}/chat", s.withMetrics("/api/sessions/{id}/chat", s.handleChat))
	mux.HandleFunc("POST /api/sessions/{id}/chat/reset", s.withMetrics("/api/sessions/{id}/chat/reset", s.handleChatReset))
	mux.HandleFunc("POST /api/sessions/{id}/speech", s.withMetrics("/api/sessions/{id}/speech", s.handleToggleSpeech))
	mux.HandleFunc("DELETE /api/sessions/{id}/speech", s.withMetrics("/api/sessions/{id}/speech", s.handleStopSpeech))

	// no metrics wrapper: the websocket upgrade needs the raw ResponseWriter
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}
}

// Handler exposes the routed handler, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	log := logging.NewLogger(ctx)
	log.Infof("server starting on port %d", s.config.Port)
	log.Infof("websocket endpoint: ws://localhost:%d/ws?session=<id>", s.config.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, then closes all sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.NewLogger(ctx).Infof("shutting down server")
	err := s.httpServer.Shutdown(ctx)
	s.manager.Shutdown(ctx)
	return err
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, candidate := range allowed {
		if candidate == "*" || candidate == origin {
			return true
		}
	}
	return false
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(s.config.AllowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withMetrics wraps an HTTP handler with metrics collection
func (s *Server) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		s.metrics.RecordHTTPRequest(r.Method, endpoint, ww.statusCode, time.Since(startTime))
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	body, err := sonic.Marshal(value)
	if err != nil {
		http.Error(w, `{"error":{"code":"INTERNAL","message":"encoding failed"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, errorResponse{Error: errorPayload{Code: code, Message: message}})
}
