package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/adt-framework/adt-console/internal/metrics"
)

// Server serves a Backend over HTTP on a unix domain socket.
type Server struct {
	backend  Backend
	socket   string
	server   *http.Server
	log      *slog.Logger
	shutdown sync.Once
}

// NewServer creates a daemon server for b listening at socket.
func NewServer(b Backend, socket string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{backend: b, socket: socket, log: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.route("health", s.handleHealth))
	mux.HandleFunc("GET /v1/sessions", s.route("list", s.handleList))
	mux.HandleFunc("POST /v1/sessions", s.route("spawn", s.handleSpawn))
	mux.HandleFunc("POST /v1/sessions/{id}/input", s.route("input", s.handleInput))
	mux.HandleFunc("POST /v1/sessions/{id}/resize", s.route("resize", s.handleResize))
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.route("close", s.handleClose))
	mux.HandleFunc("GET /v1/sessions/{id}/stream", s.route("stream", s.handleStream))
	mux.Handle("GET /metrics", metrics.Handler())

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Socket returns the socket path.
func (s *Server) Socket() string {
	return s.socket
}

// Start listens on the socket and serves until ctx is cancelled or the
// server fails. A leftover socket file from a dead daemon is removed first.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socket), 0o755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if st, err := os.Lstat(s.socket); err == nil {
		if st.Mode()&os.ModeSocket == 0 {
			return fmt.Errorf("socket path exists and is not a unix socket: %s", s.socket)
		}
		if conn, dialErr := net.DialTimeout("unix", s.socket, 200*time.Millisecond); dialErr == nil {
			conn.Close()
			return fmt.Errorf("backend daemon already listening on %s", s.socket)
		}
		if err := os.Remove(s.socket); err != nil {
			return fmt.Errorf("remove stale socket: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat socket path: %w", err)
	}

	ln, err := net.Listen("unix", s.socket)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socket, err)
	}
	if err := os.Chmod(s.socket, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.log.Info("backend daemon listening", "socket", s.socket)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		_ = s.Shutdown(context.Background())
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}
}

// Shutdown stops serving and removes the socket. Sessions owned by the
// backend are left to the caller.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdown.Do(func() {
		err = s.server.Shutdown(ctx)
		if rmErr := os.Remove(s.socket); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	})
	return err
}

// --- Handlers ---

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

type listResponse struct {
	Sessions []Descriptor `json:"sessions"`
}

type inputRequest struct {
	Data []byte `json:"data"`
}

type resizeRequest struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	descs, err := s.backend.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Sessions: len(descs)})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	descs, err := s.backend.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Sessions: descs})
}

func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	var spec SpawnSpec
	if !readJSON(w, r, &spec) {
		return
	}
	desc, err := s.backend.Spawn(r.Context(), spec)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusCreated, desc)
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := s.backend.Write(r.Context(), r.PathValue("id"), req.Data); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := s.backend.Resize(r.Context(), r.PathValue("id"), req.Cols, req.Rows); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Close(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStream writes the session's events as a CBOR sequence, flushing
// after each one, until the process exits or the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var from uint64
	if v := r.URL.Query().Get("from"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid from offset %q", v))
			return
		}
		from = n
	}

	events, err := s.backend.Subscribe(r.Context(), r.PathValue("id"), from)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", streamContentType)
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	enc := newEventEncoder(w)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			s.log.Debug("stream write failed", "id", r.PathValue("id"), "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// --- Helpers ---

// route wraps h with request metrics.
func (s *Server) route(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		metrics.RecordDaemonRequest(name, rec.status, time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func statusFor(err error) int {
	if errors.Is(err, ErrUnknownSession) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	defer r.Body.Close()
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	if errors.Is(err, ErrUnknownSession) {
		resp.Code = "unknown_session"
	}
	writeJSON(w, status, resp)
}
