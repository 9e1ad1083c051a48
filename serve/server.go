package serve

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/forgeworks/teamhub"
)

// Config holds the HTTP server's own configuration; everything it
// wires (stores, driver, chat) is constructed by the caller and handed
// in, per spec.md's design note that LifecycleManager owns the
// concrete instances and hands a read-only view to this layer.
type Config struct {
	Addr string
}

// Server is the HTTP+WS transport over a LifecycleManager: the REST
// surface from spec.md §6 plus the /ws SubscriptionMux. Grounded on
// the teacher's serve/server.go Config/Start(ctx)/corsMiddleware
// shape, with the dashboard/SSE/population/telegram machinery dropped
// (no agent-intelligence surface exists here to serve).
type Server struct {
	cfg       Config
	lifecycle *teamhub.LifecycleManager
	router    *teamhub.Router
	sidecar   teamhub.SidecarControl
	auth      TokenAuthenticator
	sub       *SubscriptionMux

	log       *slog.Logger
	startedAt time.Time
}

// NewServer constructs a Server. broadcaster and console are handed
// straight to the SubscriptionMux; router is also used directly by the
// REST channel-message endpoints, so both this Server and
// SubscriptionMux hold the same *teamhub.Router instance the caller
// constructed alongside the LifecycleManager.
func NewServer(cfg Config, lifecycle *teamhub.LifecycleManager, broadcaster *teamhub.Broadcaster, router *teamhub.Router, console *teamhub.ConsoleHub, sidecar teamhub.SidecarControl, auth TokenAuthenticator) *Server {
	return &Server{
		cfg:       cfg,
		lifecycle: lifecycle,
		router:    router,
		sidecar:   sidecar,
		auth:      auth,
		sub:       NewSubscriptionMux(auth, lifecycle, broadcaster, router, console),
		log:       slog.Default().With("component", "server"),
	}
}

// Start runs the HTTP server until ctx is canceled, then shuts it down
// gracefully with a 5s deadline, matching the teacher's Start(ctx)
// shape.
func (s *Server) Start(ctx context.Context) error {
	s.startedAt = time.Now()

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: corsMiddleware(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("teamhub serve started", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// registerRoutes wires the spec.md §6 REST table plus /ws onto mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /teams", s.requireAuth(s.handleCreateTeam))
	mux.HandleFunc("GET /teams", s.requireAuth(s.handleListTeams))
	mux.HandleFunc("GET /teams/{id}", s.requireAuth(s.handleGetTeam))
	mux.HandleFunc("PATCH /teams/{id}", s.requireAuth(s.handleUpdateTeam))
	mux.HandleFunc("DELETE /teams/{id}", s.requireAuth(s.handleDeleteTeam))
	mux.HandleFunc("POST /teams/{id}/start", s.requireAuth(s.handleStartTeam))
	mux.HandleFunc("POST /teams/{id}/stop", s.requireAuth(s.handleStopTeam))

	mux.HandleFunc("POST /teams/{id}/agents", s.requireAuth(s.handleAddAgent))
	mux.HandleFunc("DELETE /teams/{id}/agents/{aid}", s.requireAuth(s.handleRemoveAgent))
	mux.HandleFunc("POST /teams/{id}/agents/{aid}/nudge", s.requireAuth(s.handleSidecar("nudge")))
	mux.HandleFunc("POST /teams/{id}/agents/{aid}/interrupt", s.requireAuth(s.handleSidecar("interrupt")))
	mux.HandleFunc("POST /teams/{id}/agents/{aid}/directive", s.requireAuth(s.handleSidecar("directive")))
	mux.HandleFunc("POST /teams/{id}/agents/{aid}/exec", s.requireAuth(s.handleSidecar("exec")))

	mux.HandleFunc("GET /teams/{id}/channels/{name}/messages", s.requireAuth(s.handleGetMessages))
	mux.HandleFunc("POST /teams/{id}/channels/{name}/messages", s.requireAuth(s.handlePostMessage))

	// Auth-exempt: the agent container cannot hold a tenant bearer
	// token, per spec.md §4.5.
	mux.HandleFunc("POST /heartbeat/{teamId}/{agentId}", s.handleHeartbeat)

	mux.HandleFunc("POST /templates", s.requireAuth(s.handleCreateTemplate))
	mux.HandleFunc("GET /templates", s.requireAuth(s.handleListTemplates))
	mux.HandleFunc("GET /templates/{id}", s.requireAuth(s.handleGetTemplate))
	mux.HandleFunc("PUT /templates/{id}", s.requireAuth(s.handleUpdateTemplate))
	mux.HandleFunc("DELETE /templates/{id}", s.requireAuth(s.handleDeleteTemplate))

	mux.HandleFunc("GET /ws", s.sub.ServeHTTP)
}

// corsMiddleware adds permissive CORS headers, matching the teacher's
// development-friendly default.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
