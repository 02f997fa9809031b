// Package server hosts the scoring HTTP/WebSocket process.
//
// All mutations go through the scoring service; this layer only decodes
// request envelopes, resolves caller identity, and maps domain errors to
// HTTP statuses.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/crease/internal/audit"
	"github.com/louisbranch/crease/internal/platform/requestctx"
	"github.com/louisbranch/crease/internal/platform/timeouts"
	"github.com/louisbranch/crease/internal/realtime"
	"github.com/louisbranch/crease/internal/scoring"
	"github.com/louisbranch/crease/internal/storage/sqlite"
)

// Config defines the inputs for the scoring server process.
type Config struct {
	HTTPAddr          string
	DBPath            string
	JWTSecret         string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the scoring HTTP process and owns its storage handle.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	store           *sqlite.Store
	hub             *realtime.Hub
	scoring         *scoring.Service
}

// NewServer builds a configured scoring server.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http addr is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	store, err := sqlite.Open(config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	svc := scoring.NewService(store, audit.NewEmitter(store), nil)
	hub := realtime.NewHub(svc)
	svc.SetPublisher(hub)

	verifier := newTokenVerifier(config.JWTSecret, nil)
	server := &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		store:           store,
		hub:             hub,
		scoring:         svc,
	}
	server.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           server.handler(verifier),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	return server, nil
}

func (s *Server) handler(verifier *tokenVerifier) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/up", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("POST /matches", s.handleCreateMatch)
	mux.HandleFunc("GET /matches/{id}", s.handleGetMatch)
	mux.HandleFunc("GET /matches/{id}/innings/{innings}", s.handleGetInnings)
	mux.HandleFunc("GET /matches/{id}/events", s.handleListEvents)

	mux.HandleFunc("POST /matches/{id}/innings", s.handleStartInnings)
	mux.HandleFunc("POST /matches/{id}/balls", s.handleRecordBall)
	mux.HandleFunc("POST /matches/{id}/extras", s.handleRecordExtra)
	mux.HandleFunc("POST /matches/{id}/wickets", s.handleRecordWicket)
	mux.HandleFunc("POST /matches/{id}/bowler", s.handleSelectBowler)
	mux.HandleFunc("POST /matches/{id}/batter", s.handleSelectBatter)
	mux.HandleFunc("POST /matches/{id}/innings-two-approval", s.handleApproveInningsTwo)
	mux.HandleFunc("POST /matches/{id}/end-innings", s.handleEndInnings)
	mux.HandleFunc("POST /matches/{id}/end-match", s.handleEndMatch)
	mux.HandleFunc("POST /matches/{id}/lock", s.handleLockMatch)
	mux.HandleFunc("POST /matches/{id}/unlock", s.handleUnlockMatch)
	mux.HandleFunc("POST /matches/{id}/undo", s.handleUndo)
	mux.HandleFunc("POST /matches/{id}/edit", s.handleEdit)

	mux.HandleFunc("POST /matches/{id}/roles", s.handleAssignRole)
	mux.HandleFunc("DELETE /matches/{id}/roles/{userID}", s.handleRevokeRole)

	wsHandler := s.hub.Handler()
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		if userID := requestctx.UserIDFromContext(r.Context()); userID != "" {
			r = r.WithContext(realtime.ContextWithUserID(r.Context(), userID))
		}
		wsHandler.ServeHTTP(w, r)
	})

	return withIdentity(verifier, mux)
}

// Run creates and serves a scoring server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("scoring server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.hub != nil {
		s.hub.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}
}
