package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"time"

	"ruwave_bot/internal/core"
	"ruwave_bot/internal/logger"
	"ruwave_bot/internal/metrics"
	"ruwave_bot/pkg"

	"github.com/bytedance/sonic"
)

const (
	maxBodyBytes      = 64 << 10
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 90 * time.Second
	idleTimeout       = 120 * time.Second

	errServer     = "Ошибка сервера"
	errEmpty      = "Пустое сообщение"
	errBadRequest = "Некорректный запрос"
)

// ChatProcessor turns one user message into one reply
type ChatProcessor interface {
	Execute(ctx context.Context, input core.ProcessorInput) (*core.ProcessorOutput, error)
}

// SnapshotProvider exposes the published playlist snapshot for health reporting
type SnapshotProvider interface {
	Snapshot() *pkg.PlaylistSnapshot
}

type chatRequest struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

type healthResponse struct {
	Status            string     `json:"status"`
	PlaylistRecords   int        `json:"playlist_records"`
	PlaylistFetchedAt *time.Time `json:"playlist_fetched_at"`
}

// Server is the chatbot HTTP front end
type Server struct {
	processor ChatProcessor
	playlist  SnapshotProvider
	metrics   *metrics.Metrics
	server    *http.Server
}

// New creates a server listening on addr. playlist and m may be nil.
func New(addr string, processor ChatProcessor, playlist SnapshotProvider, m *metrics.Metrics) *Server {
	s := &Server{
		processor: processor,
		playlist:  playlist,
		metrics:   m,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

// Handler returns the routed handler wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return recoverMiddleware(corsMiddleware(logMiddleware(mux)))
}

// ListenAndServe blocks until the server stops. A graceful shutdown is not an error.
func (s *Server) ListenAndServe() error {
	logger.Info().Str("addr", s.server.Addr).Msg("✅ RuWave server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.metrics.ObserveChat("none", "bad_request", time.Since(start))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errBadRequest, Detail: err.Error()})
		return
	}

	var req chatRequest
	if len(body) > 0 {
		if err := sonic.Unmarshal(body, &req); err != nil {
			s.metrics.ObserveChat("none", "bad_request", time.Since(start))
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: errBadRequest, Detail: "invalid JSON body"})
			return
		}
	}

	out, err := s.processor.Execute(r.Context(), core.ProcessorInput{
		UserMessage: req.Message,
		ReceivedAt:  start,
	})
	if err != nil {
		// the processor returns no partial output, so the intent is unknown here
		const intent = "none"

		if errors.Is(err, pkg.ErrEmptyInput) {
			s.metrics.ObserveChat(intent, "bad_request", time.Since(start))
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: errEmpty, Detail: "message is required"})
			return
		}

		logger.Error().Err(err).
			Int("message_length", len(req.Message)).
			Msg("❌ Error in /chat")
		s.metrics.ObserveChat(intent, "error", time.Since(start))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errServer, Detail: err.Error()})
		return
	}

	logger.Info().
		Str("intent", string(out.Intent)).
		Strs("path", out.ExecutionPath).
		Int64("processing_time_ms", out.ProcessingTime).
		Msg("➡️ Chat reply sent")
	s.metrics.ObserveChat(string(out.Intent), "ok", time.Since(start))
	writeJSON(w, http.StatusOK, pkg.ChatReply{Text: out.Reply, Intent: out.Intent})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.playlist != nil {
		if snap := s.playlist.Snapshot(); snap != nil {
			resp.PlaylistRecords = snap.Len()
			fetched := snap.FetchedAt
			resp.PlaylistFetchedAt = &fetched
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		logger.Error().Err(err).Msg("❌ Error encoding response")
		http.Error(w, errServer, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("🌐 HTTP request")
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rv := recover(); rv != nil {
				if rv == http.ErrAbortHandler {
					panic(rv)
				}
				logger.Error().
					Str("panic", fmt.Sprint(rv)).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("💥 Panic while serving request")
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errServer, Detail: fmt.Sprint(rv)})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
