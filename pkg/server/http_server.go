package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luongdev/fsmeasure/pkg/calculator"
	"github.com/luongdev/fsmeasure/pkg/connection"
	"github.com/luongdev/fsmeasure/pkg/exporter"
	"github.com/luongdev/fsmeasure/pkg/logger"
)

const wsWriteTimeout = 10 * time.Second

// Options wires the HTTP server to the rest of the agent
type Options struct {
	Port         int
	ConnManager  connection.ConnectionManager
	Source       exporter.ViewSource
	Calculator   calculator.QoSCalculator
	Gatherer     prometheus.Gatherer
	PushInterval time.Duration
}

// HTTPServer serves health, Prometheus metrics and live call statistics
type HTTPServer struct {
	server       *http.Server
	opts         Options
	upgrader     websocket.Upgrader
	mu           sync.RWMutex
	shutdownChan chan struct{}
	stopped      bool
}

// NewHTTPServer creates a new HTTP server instance
func NewHTTPServer(opts Options) *HTTPServer {
	if opts.PushInterval <= 0 {
		opts.PushInterval = 10 * time.Second
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &HTTPServer{
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(_ *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		shutdownChan: make(chan struct{}),
	}
}

// Handler returns the router with every endpoint registered
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/ws/stats", s.handleStatsStream)
	return mux
}

// Start starts the HTTP server
func (s *HTTPServer) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("HTTP server starting on port %d", s.opts.Port)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop gracefully stops the HTTP server and closes live stats streams
func (s *HTTPServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("Shutting down HTTP server...")
	close(s.shutdownChan)
	s.stopped = true
	if err := s.server.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error: %v", err)
		return err
	}

	logger.Info("HTTP server stopped")
	return nil
}

// HealthResponse represents the response structure for /health endpoint
type HealthResponse struct {
	Status      string                    `json:"status"`
	Connections map[string]ConnectionInfo `json:"connections"`
}

// ConnectionInfo represents connection information for a FreeSWITCH instance
type ConnectionInfo struct {
	Connected bool   `json:"connected"`
	LastEvent string `json:"last_event,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

func (s *HTTPServer) connections() (map[string]ConnectionInfo, bool) {
	infos := make(map[string]ConnectionInfo)
	anyConnected := false
	if s.opts.ConnManager == nil {
		return infos, false
	}

	for name, status := range s.opts.ConnManager.GetStatus() {
		info := ConnectionInfo{Connected: status.Connected}
		if !status.LastEventAt.IsZero() {
			info.LastEvent = status.LastEventAt.Format(time.RFC3339)
		}
		if status.LastError != nil {
			info.LastError = status.LastError.Error()
		}
		infos[name] = info
		anyConnected = anyConnected || status.Connected
	}
	return infos, anyConnected
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response: %v", err)
	}
}

// handleHealth reports per-instance connection state; unhealthy when no instance is connected
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conns, ok := s.connections()
	response := HealthResponse{Status: "healthy", Connections: conns}
	statusCode := http.StatusOK
	if !ok {
		response.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, response)
	logger.Debug("Health check request processed: status=%s", response.Status)
}

// handleReady returns 200 if at least one connection is active, 503 otherwise
func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if _, ok := s.connections(); ok {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte("not ready"))
}

func (s *HTTPServer) summarize() (*calculator.QoSMetrics, error) {
	if s.opts.Source == nil || s.opts.Calculator == nil {
		return nil, fmt.Errorf("no call metrics source configured")
	}
	return s.opts.Calculator.Summarize(s.opts.Source.View())
}

// handleStats returns the quality summary of the current buffer view
func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q, err := s.summarize()
	if err != nil {
		logger.Warn("Failed to summarize call metrics: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// handleStatsStream pushes a quality summary immediately and then every push interval
func (s *HTTPServer) handleStatsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// The read loop only drains control frames and notices the client leaving.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger.DebugWithFields(map[string]interface{}{
		"remote": r.RemoteAddr,
	}, "Stats stream opened")

	ticker := time.NewTicker(s.opts.PushInterval)
	defer ticker.Stop()

	for {
		if err := s.pushStats(conn); err != nil {
			logger.DebugWithFields(map[string]interface{}{
				"remote": r.RemoteAddr,
				"error":  err.Error(),
			}, "Stats stream closed")
			return
		}

		select {
		case <-ticker.C:
		case <-gone:
			return
		case <-s.shutdownChan:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *HTTPServer) pushStats(conn *websocket.Conn) error {
	q, err := s.summarize()
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(q)
}
