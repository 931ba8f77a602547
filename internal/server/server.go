// package server contains the routes, middleware and session handling for the Spotify stats service
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotstats/internal/metrics"
	"github.com/desertthunder/spotstats/internal/repositories"
	"github.com/desertthunder/spotstats/internal/services"
	"github.com/desertthunder/spotstats/internal/shared"
	"github.com/prometheus/client_golang/prometheus"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that owns a set of routes.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

const (
	shutdownTimeout = 5 * time.Second
	limiterIdle     = 10 * time.Minute
)

// Deps collects what [New] needs to assemble the service.
type Deps struct {
	Config   *shared.Config
	Service  services.Service
	Store    repositories.TokenStore
	Gatherer prometheus.Gatherer // serves /metrics when set
	Logger   *log.Logger
}

// Server is the HTTP front of the service: a configured [BasicRouter] plus the background pruner.
type Server struct {
	config  *shared.Config
	store   repositories.TokenStore
	limiter *ClientLimiter
	router  *BasicRouter
	logger  *log.Logger
}

// New wires the middleware stack and every route.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = shared.NewLogger(nil)
	}
	cfg := deps.Config

	limiter := NewClientLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	router := NewBasicRouter()
	router.Use(
		Recoverer(deps.Logger),
		RequestLogger(deps.Logger),
		CORS(cfg.Server.AllowedOrigins),
		limiter.Middleware(),
	)

	sessions := NewSessionManager(cfg.Session)
	router.Handler(NewSpotifyHandler(deps.Service, deps.Store, sessions, cfg.Server.Landing, deps.Logger))
	router.Handle(http.MethodGet, "/healthz", http.HandlerFunc(Healthz))
	if deps.Gatherer != nil {
		router.Handle(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	return &Server{config: cfg, store: deps.Store, limiter: limiter, router: router, logger: deps.Logger}
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on the configured address until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.config.Server.Addr(),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.prune(ctx, pruneInterval(s.config.Session.TTL()))

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func pruneInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > time.Hour {
		return time.Hour
	}
	if ttl < time.Minute {
		return time.Minute
	}
	return ttl
}

// prune sweeps on every tick until ctx is done.
func (s *Server) prune(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep drops stale token records and forgets rate-limit buckets of idle clients.
func (s *Server) sweep(ctx context.Context) {
	if n := s.limiter.Sweep(limiterIdle); n > 0 {
		s.logger.Debug("forgot idle clients", "count", n)
	}

	n, err := s.store.Prune(ctx)
	if err != nil {
		s.logger.Warn("failed to prune sessions", "error", err)
		return
	}
	if n > 0 {
		metrics.SessionsPruned.Add(float64(n))
		s.logger.Debug("pruned sessions", "count", n)
	}
}
