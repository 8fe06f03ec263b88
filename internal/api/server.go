// Package api serves replay verification over HTTP: clients post recorded
// runs and get back the authoritative score, and the local run history can
// be browsed and re-checked.
package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/krigga/flappy-ton/internal/store"
	"github.com/krigga/flappy-ton/internal/verify"
)

// Server handles HTTP requests. db may be nil, in which case the run history
// routes answer 503.
type Server struct {
	db           store.DB
	verifier     *verify.Verifier
	errorHandler *ErrorHandler
	logger       *log.Logger
	startTime    time.Time
}

// NewServer creates a new API server logging to stdout.
func NewServer(db store.DB, verifier *verify.Verifier) *Server {
	return NewServerWithLogger(db, verifier, log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lshortfile))
}

// NewServerWithLogger creates a server that writes its logs to logger.
func NewServerWithLogger(db store.DB, verifier *verify.Verifier, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		db:           db,
		verifier:     verifier,
		errorHandler: NewErrorHandler(logger),
		logger:       logger,
		startTime:    time.Now(),
	}
	logger.Printf("server_started engine_version=%s db=%t", EngineVersion, db != nil)
	return s
}

// Routes sets up the HTTP routes with middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.LoggingMiddleware)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.CORSMiddleware)

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/version", s.handleVersion)
		r.Get("/tuning", s.handleTuning)
		r.Post("/verify", s.handleVerify)
		r.Post("/verify/batch", s.handleVerifyBatch)
		r.Post("/seed/hash", s.handleSeedHash)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("response_encode_failed err=%v", err)
	}
}
