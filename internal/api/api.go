// Package api provides the HTTP server of StudyPipe.
//
// It exposes the study setup chat, interview guide, setup session and study
// endpoints, and wires the store, LLM, flow and session modules together.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/StudyPipe/internal/flow"
	"github.com/BTreeMap/StudyPipe/internal/genai"
	"github.com/BTreeMap/StudyPipe/internal/session"
	"github.com/BTreeMap/StudyPipe/internal/store"
)

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8080"
	// DefaultLockTimeout bounds how long a turn waits for the study lock.
	DefaultLockTimeout = 30 * time.Second
	// maxBodyBytes caps request bodies.
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 15 * time.Second
)

// Opts holds configuration for the API server.
type Opts struct {
	Addr        string
	LockTimeout time.Duration
	LLMTimeout  time.Duration
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithLockTimeout sets how long a turn waits for another turn on the same study.
func WithLockTimeout(d time.Duration) Option {
	return func(o *Opts) { o.LockTimeout = d }
}

// WithLLMTimeout sets the per-attempt timeout of LLM calls.
func WithLLMTimeout(d time.Duration) Option {
	return func(o *Opts) { o.LLMTimeout = d }
}

// Server serves the StudyPipe HTTP API.
type Server struct {
	st          store.StudyStore
	setup       *flow.StudySetupFlow
	sessions    session.Store
	locker      session.Locker
	addr        string
	lockTimeout time.Duration
}

// NewServer creates a Server over its collaborators.
func NewServer(st store.StudyStore, setup *flow.StudySetupFlow, sessions session.Store, locker session.Locker, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, LockTimeout: DefaultLockTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	return &Server{
		st:          st,
		setup:       setup,
		sessions:    sessions,
		locker:      locker,
		addr:        cfg.Addr,
		lockTimeout: cfg.LockTimeout,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/study-setup/chat", s.studySetupChatHandler)
	mux.HandleFunc("POST /api/study-setup/interview-guide", s.interviewGuideHandler)
	mux.HandleFunc("POST /api/study-setup/sessions", s.createSessionHandler)
	mux.HandleFunc("GET /api/study-setup/sessions/{id}", s.getSessionHandler)
	mux.HandleFunc("DELETE /api/study-setup/sessions/{id}", s.deleteSessionHandler)
	mux.HandleFunc("POST /api/studies", s.createStudyHandler)
	mux.HandleFunc("GET /api/studies", s.listStudiesHandler)
	mux.HandleFunc("GET /api/studies/{id}", s.getStudyHandler)
	return logRequests(mux)
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		r.Body = http.MaxBytesReader(rec, r.Body, maxBodyBytes)
		next.ServeHTTP(rec, r)
		slog.Info("Server.logRequests: request handled", "method", r.Method, "path", r.URL.Path, "status", rec.status, "elapsed", time.Since(start))
	})
}

// Run builds every module from its options, serves until SIGINT or SIGTERM,
// then drains in-flight requests and background status writes.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, sessionOpts []session.Option, flowOpts []flow.Option, apiOpts []Option) error {
	cfg := Opts{}
	for _, opt := range apiOpts {
		opt(&cfg)
	}

	st, err := store.New(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	var completer genai.Completer
	client, err := genai.NewClient(genaiOpts...)
	switch {
	case err == nil:
		completer = client
	case errors.Is(err, genai.ErrNotConfigured):
		slog.Warn("api.Run: OpenAI API key not set, conversational turns will fail until configured")
		completer = genai.Unconfigured{}
	default:
		return fmt.Errorf("failed to initialize genai client: %w", err)
	}
	policy := genai.DefaultRetryPolicy()
	if cfg.LLMTimeout > 0 {
		policy.AttemptTimeout = cfg.LLMTimeout
	}
	llm := genai.NewResilientClient(completer, policy)

	backends, err := session.New(sessionOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize session backends: %w", err)
	}
	defer backends.Close()

	setup := flow.NewStudySetupFlow(st, llm, flowOpts...)
	server := NewServer(st, setup, backends.Store, backends.Locker, apiOpts...)

	httpServer := &http.Server{
		Addr:              server.addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("api.Run: StudyPipe API listening", "addr", server.addr, "attemptTimeout", policy.AttemptTimeout)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("api.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("api.Run: graceful shutdown failed", "error", err)
		}
		return nil
	})
	runErr := g.Wait()

	setup.Wait()
	slog.Info("api.Run: background work drained")
	return runErr
}
