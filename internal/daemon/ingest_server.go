package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"xtap/internal/config"
	"xtap/internal/logging"
	"xtap/internal/pipeline"
)

// maxPayloadBytes bounds a single capture payload. Feed responses run to a
// few megabytes; anything larger is malformed or hostile.
const maxPayloadBytes = 32 << 20

// ingestServer is the localhost HTTP listener that receives capture events
// from the browser side and hands them to the pipeline.
type ingestServer struct {
	bind   string
	token  string
	logger *slog.Logger
	driver *pipeline.Driver

	listener net.Listener
	server   *http.Server
}

func newIngestServer(cfg *config.Config, driver *pipeline.Driver, logger *slog.Logger) *ingestServer {
	srv := &ingestServer{
		bind:   strings.TrimSpace(cfg.Ingest.Bind),
		token:  cfg.Ingest.Token,
		logger: logging.WithComponent(logger, "ingest"),
		driver: driver,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealthz)
	mux.HandleFunc("/ingest", authMiddleware(srv.token, srv.handleIngest))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *ingestServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("ingest listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ingest server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("ingest server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *ingestServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

type ingestPayload struct {
	Endpoint string          `json:"endpoint"`
	Payload  json.RawMessage `json:"payload"`
}

func (s *ingestServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *ingestServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read body")
		return
	}
	if len(body) > maxPayloadBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	var payload ingestPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if payload.Endpoint == "" || len(payload.Payload) == 0 {
		s.writeError(w, http.StatusBadRequest, "endpoint and payload are required")
		return
	}

	if err := s.driver.Ingest(r.Context(), payload.Endpoint, payload.Payload); err != nil {
		if errors.Is(err, pipeline.ErrStopped) {
			s.writeError(w, http.StatusServiceUnavailable, "pipeline stopped")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *ingestServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *ingestServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{"ok": false, "error": message})
}
