// Package server exposes the recording session over HTTP.
//
//	POST /api/start_recording          begin capture
//	POST /api/stop_recording           end capture and predict
//	GET  /api/status                   is_recording, models_loaded
//	GET  /api/health                   liveness
//	GET  /api/recordings?limit=n       recent recordings, newest first
//	GET  /api/recordings/{id}/audio    saved WAV of a recording
//	GET  /api/stream?rate=&format=     websocket PCM intake for the stream source
//
// All responses are JSON except the WAV download, and every route allows
// cross-origin requests.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/voicemood/pkg/capture"
	"github.com/haivivi/voicemood/pkg/history"
	"github.com/haivivi/voicemood/pkg/recorder"
)

// ModelStatus reports whether model artifacts are loaded.
type ModelStatus interface {
	Loaded() bool
}

// Server serves the HTTP API.
type Server struct {
	session *recorder.Session
	models  ModelStatus
	history *history.History
	pipe    *capture.Pipe
	logger  *slog.Logger

	upgrader  websocket.Upgrader
	streaming atomic.Bool
}

// Option configures a Server.
type Option func(*Server)

// WithHistory enables the recordings routes.
func WithHistory(h *history.History) Option {
	return func(s *Server) { s.history = h }
}

// WithPipe enables the websocket intake feeding pipe.
func WithPipe(p *capture.Pipe) Option {
	return func(s *Server) { s.pipe = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Server for session.
func New(session *recorder.Session, models ModelStatus, opts ...Option) *Server {
	s := &Server{
		session: session,
		models:  models,
		logger:  slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 << 10,
			WriteBufferSize: 1 << 10,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/start_recording", s.handleStart)
	mux.HandleFunc("POST /api/stop_recording", s.handleStop)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/recordings", s.handleRecordings)
	mux.HandleFunc("GET /api/recordings/{id}/audio", s.handleRecordingAudio)
	mux.HandleFunc("GET /api/stream", s.handleStream)
	return cors(mux)
}

// ServeOptions controls Serve.
type ServeOptions struct {
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully and stops an active recording.
func (s *Server) Serve(ctx context.Context, ln net.Listener, opts ServeOptions) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("server listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(sctx)
	if s.session.IsRecording() {
		res := s.session.Stop(sctx)
		s.logger.Info("stopped active recording", "status", res.Status)
	}
	if serr := <-errc; serr != nil && !errors.Is(serr, http.ErrServerClosed) {
		return serr
	}
	return err
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
