package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"vodrive/internal/config"
	"vodrive/internal/engine"
	"vodrive/internal/logging"
)

type httpServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

type healthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
}

type poseResponse struct {
	Available   bool         `json:"available"`
	FrameID     int          `json:"frame_id"`
	Pose        *engine.Pose `json:"pose,omitempty"`
	Translation []float64    `json:"translation,omitempty"`
}

type keyFramesResponse struct {
	Count     int               `json:"count"`
	KeyFrames []engine.KeyFrame `json:"keyframes"`
}

func newHTTPServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *httpServer {
	return &httpServer{
		bind:   cfg.HTTP.Bind,
		token:  cfg.HTTP.Token,
		logger: logging.NewComponentLogger(logger, "http-server"),
		daemon: d,
	}
}

func (s *httpServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.daemon.metrics.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/api/status", authMiddleware(s.token, http.HandlerFunc(s.handleStatus)))
	mux.Handle("/api/pose", authMiddleware(s.token, http.HandlerFunc(s.handlePose)))
	mux.Handle("/api/keyframes", authMiddleware(s.token, http.HandlerFunc(s.handleKeyFrames)))
	mux.Handle("/api/reset", authMiddleware(s.token, http.HandlerFunc(s.handleReset)))
	if s.daemon.hub != nil {
		mux.Handle("/stream", authMiddleware(s.token, s.daemon.hub))
	}
	return mux
}

func (s *httpServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "http server error", "http_serve",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that "+s.bind+" is free"),
			)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *httpServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *httpServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *httpServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status, err := s.daemon.controller.Status()
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", State: status.State})
}

func (s *httpServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *httpServer) handlePose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	pose, frameID, ok, err := s.daemon.controller.CurrentPose()
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	resp := poseResponse{Available: ok}
	if ok {
		t := pose.Translation()
		resp.FrameID = frameID
		resp.Pose = &pose
		resp.Translation = []float64{t.X, t.Y, t.Z}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *httpServer) handleKeyFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	keyFrames, err := s.daemon.controller.KeyFrames()
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if keyFrames == nil {
		keyFrames = []engine.KeyFrame{}
	}
	s.writeJSON(w, http.StatusOK, keyFramesResponse{Count: len(keyFrames), KeyFrames: keyFrames})
}

func (s *httpServer) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.daemon.RequestReset(); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *httpServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *httpServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
