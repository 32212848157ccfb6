// Package api implements the Helion HTTP API: streamed chat turns,
// thread history, semantic memories and a live event feed.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/helion/internal/agent"
	"github.com/nugget/helion/internal/buildinfo"
	"github.com/nugget/helion/internal/checkpoint"
	"github.com/nugget/helion/internal/connwatch"
	"github.com/nugget/helion/internal/events"
	"github.com/nugget/helion/internal/memory"
)

// DefaultUserID is used when a request carries no X-User-ID header.
const DefaultUserID = "anonymous"

// UserHeader names the request header that scopes threads and
// memories to a user.
const UserHeader = "X-User-ID"

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// TurnRunner runs one conversation turn, writing answer text to out.
type TurnRunner interface {
	Run(ctx context.Context, turn agent.Turn, out chan<- string) (*agent.Result, error)
}

// ThreadStore is the read side of the checkpoint store.
type ThreadStore interface {
	LoadLatest(ctx context.Context, threadID string) (*checkpoint.Checkpoint, bool, error)
	ListRecent(ctx context.Context, threadID string, limit int) ([]checkpoint.Row, error)
	Threads(ctx context.Context, userID string) ([]checkpoint.Thread, error)
	Get(ctx context.Context, id uuid.UUID) (*checkpoint.Checkpoint, error)
}

// HealthReporter reports the reachability of backend services.
type HealthReporter interface {
	Status() []connwatch.Status
}

// Server is the HTTP API server.
type Server struct {
	address  string
	port     int
	runner   TurnRunner
	threads  ThreadStore
	memories *memory.Store
	embedder memory.Embedder
	bus      *events.Bus
	health   HealthReporter
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates a new API server.
func NewServer(address string, port int, runner TurnRunner, threads ThreadStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		port:    port,
		runner:  runner,
		threads: threads,
		logger:  logger,
	}
}

// SetMemoryStore enables the memory endpoints.
func (s *Server) SetMemoryStore(ms *memory.Store, embedder memory.Embedder) {
	s.memories = ms
	s.embedder = embedder
}

// SetEventBus enables the /v1/events feed.
func (s *Server) SetEventBus(bus *events.Bus) {
	s.bus = bus
}

// SetHealthReporter adds backend status to /health.
func (s *Server) SetHealthReporter(h HealthReporter) {
	s.health = h
}

// Handler returns the routed handler, wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Chat
	mux.HandleFunc("POST /v1/chat/send", s.handleChatSend)
	mux.HandleFunc("GET /v1/chat/ws", s.handleChatWebSocket)

	// Threads
	mux.HandleFunc("GET /v1/threads", s.handleThreadList)
	mux.HandleFunc("GET /v1/threads/{id}/history", s.handleThreadHistory)
	mux.HandleFunc("GET /v1/threads/{id}/messages", s.handleThreadMessages)
	mux.HandleFunc("GET /v1/threads/{id}/transcript", s.handleThreadTranscript)
	mux.HandleFunc("GET /v1/checkpoints/{id}", s.handleCheckpoint)

	// Memories
	mux.HandleFunc("POST /v1/memories", s.handleMemoryCreate)
	mux.HandleFunc("GET /v1/memories", s.handleMemoryList)
	mux.HandleFunc("POST /v1/memories/search", s.handleMemorySearch)
	mux.HandleFunc("GET /v1/memories/count", s.handleMemoryCount)

	mux.HandleFunc("GET /v1/events", s.handleEvents)

	// Health endpoints
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: chat streams and websockets are long lived.
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"user", userID(r),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"name":    "Helion",
		"version": buildinfo.Version,
		"status":  "ok",
		"endpoints": []string{
			"POST /v1/chat/send",
			"GET /v1/chat/ws",
			"GET /v1/threads",
			"GET /v1/checkpoints/{id}",
			"GET /v1/memories",
			"GET /v1/events",
			"GET /health",
		},
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.RuntimeInfo(), s.logger)
}

// handleHealth reports "healthy", or "degraded" when a watched backend
// is unreachable. The status code stays 200 either way: the server
// itself is up.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "healthy",
		"uptime": buildinfo.Uptime().String(),
	}
	if s.health != nil {
		services := s.health.Status()
		for _, svc := range services {
			if !svc.Ready {
				resp["status"] = "degraded"
			}
		}
		resp["services"] = services
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

// userID returns the caller's user from the X-User-ID header.
func userID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(UserHeader)); id != "" {
		return id
	}
	return DefaultUserID
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}

func parseBoolParam(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
