// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It is the one place that knows every
// concrete type; everything below it only sees interfaces.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config
//	  → docstore.Store (sqlite | postgres | memory), wrapped by metrics
//	  → repository.Accounts → auth.Provider
//	  → router.Router ← session.Store (navigator) ← auth.Provider (notifications)
//	  → repository.Members / HistoryRegistries → service.* → handler.*
//
// STARTUP ORDER MATTERS:
// The session store must subscribe to the provider before the cached token
// is resumed: a token that expired while the process was down makes Resume
// emit nil, and the store has to hear it to clear the cache and send
// navigation to the login page.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/sakif/time-estimator/internal/apperror"
	"github.com/sakif/time-estimator/internal/auth"
	"github.com/sakif/time-estimator/internal/config"
	"github.com/sakif/time-estimator/internal/docstore"
	"github.com/sakif/time-estimator/internal/docstore/postgres"
	"github.com/sakif/time-estimator/internal/docstore/sqlite"
	"github.com/sakif/time-estimator/internal/feed"
	"github.com/sakif/time-estimator/internal/handler"
	"github.com/sakif/time-estimator/internal/metrics"
	"github.com/sakif/time-estimator/internal/middleware"
	"github.com/sakif/time-estimator/internal/repository"
	"github.com/sakif/time-estimator/internal/router"
	"github.com/sakif/time-estimator/internal/service"
	"github.com/sakif/time-estimator/internal/session"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store connection, the provider's expiry timer, the
// session subscription, the rate limiter's cleanup goroutine and the feed
// hub. Close releases all of them.
type Server struct {
	mux    *chi.Mux
	config *config.Config
	logger *slog.Logger

	store    docstore.Store
	provider *auth.Provider
	session  *session.Store
	nav      *router.Router
	limiter  *middleware.LoginLimiter
	hub      *feed.Hub
	registry *prometheus.Registry

	stopHub context.CancelFunc
	hubDone chan struct{}
	cancels []func()

	closeOnce sync.Once
	closeErr  error
}

// New assembles the whole application from cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// === DOCUMENT STORE ===
	rawStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := metrics.InstrumentStore(rawStore, collector)

	s := &Server{
		mux:      chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		store:    store,
		registry: registry,
	}

	// === AUTHENTICATION ===
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("server: %w", err)
	}
	var github *auth.GitHubOAuth
	if cfg.GitHubEnabled() {
		github = auth.NewGitHubOAuth(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
	}
	s.provider = auth.NewProvider(auth.ProviderConfig{
		Accounts:  repository.NewAccounts(store),
		Passwords: auth.NewPasswordService(auth.DefaultPasswordCost),
		Tokens:    tokens,
		GitHub:    github,
		Logger:    logger,
	})
	s.cancels = append(s.cancels, s.provider.Subscribe(collector.ObserveSession))

	// === NAVIGATION AND SESSION ===
	s.nav = router.New(router.To(router.Login), router.WithLogger(logger))
	s.cancels = append(s.cancels, s.nav.OnNavigate(collector.ObserveNavigation))
	s.session = session.Open(ctx, session.Options{
		Cache:     session.NewFileCache(cfg.SessionCachePath),
		Provider:  s.provider,
		Navigator: s.nav,
		Logger:    logger,
	})
	s.nav.BeforeEach(router.RequireSession(s.session))

	// === FEED ===
	hubCtx, stopHub := context.WithCancel(context.Background())
	s.hub = feed.NewHub(logger, collector.SetFeedClients)
	s.stopHub = stopHub
	s.hubDone = make(chan struct{})
	go func() {
		s.hub.Run(hubCtx)
		close(s.hubDone)
	}()
	s.cancels = append(s.cancels, s.nav.OnNavigate(s.hub.PublishNavigation))

	s.limiter = middleware.NewLoginLimiter(cfg.LoginRatePerMinute, 5*time.Minute, logger)

	s.resume(ctx)
	s.setupRoutes()
	return s, nil
}

// openStore picks the backend named by STORE_DRIVER.
func openStore(ctx context.Context, cfg *config.Config) (docstore.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return docstore.NewMemory(), nil

	case config.DriverPostgres:
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("server: opening postgres store: %w", err)
		}
		return db, nil

	default:
		// os.MkdirAll is `mkdir -p`; a fresh checkout has no data/ yet
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("server: creating database directory: %w", err)
			}
		}
		db, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("server: opening sqlite store: %w", err)
		}
		return db, nil
	}
}

// resume hands a session restored from the cache back to the provider so
// its expiry is tracked again. A token that is no longer valid ends the
// session through the provider's notification.
func (s *Server) resume(ctx context.Context) {
	cached := s.session.User()
	if cached == nil {
		return
	}

	user, err := s.provider.Resume(ctx, cached.Token)
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "session resumed", slog.String("user_id", user.ID))
		if _, err := s.nav.Push(router.To(router.MyTeam)); err != nil {
			s.logger.WarnContext(ctx, "navigating to my-team", slog.String("error", err.Error()))
		}
	case errors.Is(err, apperror.ErrUnauthenticated):
		s.logger.InfoContext(ctx, "cached session is no longer valid")
	default:
		// the cached user stays; its expiry is not tracked until the next sign-in
		s.logger.WarnContext(ctx, "resuming cached session", slog.String("error", err.Error()))
	}
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /login                                     → login state
//	POST   /login                                     → password sign-in (rate limited)
//	POST   /login/signup                              → create account (rate limited)
//	GET    /login/github, /login/github/callback      → GitHub OAuth
//	POST   /logout                                    → sign out
//	GET    /                                          → redirect to /mi-equipo
//	GET    /mi-equipo                                 → team overview
//	POST   /mi-equipo/members                         → create member
//	DELETE /mi-equipo/members/{id}                    → delete member
//	GET    /detalle-de-miembro/{id}                   → member detail
//	POST   /detalle-de-miembro/{id}/history           → add registry
//	DELETE /detalle-de-miembro/{id}/history/{rid}     → delete registry
//	GET    /detalle-de-miembro/{id}/estimate          → estimate
//	GET    /ws, /metrics, /healthz
//
// MIDDLEWARE ORDER MATTERS:
// RequestID and RealIP come first so the logger and the rate limiter see
// them. Navigation runs after logging so redirects are logged too.
// SessionUser runs last: the user it puts in the context is the one that
// passed the guard.
func (s *Server) setupRoutes() {
	s.mux.Use(chimiddleware.RequestID)
	s.mux.Use(middleware.PeerAddr)
	s.mux.Use(chimiddleware.RealIP)
	s.mux.Use(middleware.Logger(s.logger))
	s.mux.Use(chimiddleware.Recoverer)
	if len(s.config.CORSAllowedOrigins) > 0 {
		s.mux.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	s.mux.Use(middleware.Navigation(s.nav, s.logger))
	s.mux.Use(auth.SessionUser(s.session))

	members := repository.NewMembers(s.store, s.session)
	history := repository.NewHistoryRegistries(s.store)

	authHandler := handler.NewAuthHandler(s.provider, s.session, s.nav, s.logger)
	teamHandler := handler.NewTeamHandler(service.NewTeamService(members, history, s.session, s.logger), s.logger)
	memberHandler := handler.NewMemberHandler(service.NewMemberService(members, history, s.session, s.logger), s.logger)
	feedHandler := handler.NewFeedHandler(s.hub, s.session, s.config.CORSAllowedOrigins, s.logger)

	s.mux.Route("/login", func(r chi.Router) {
		r.Get("/", authHandler.HandleLoginState)
		r.With(s.limiter.Middleware).Post("/", authHandler.HandleLogin)
		r.With(s.limiter.Middleware).Post("/signup", authHandler.HandleSignUp)
		r.Get("/github", authHandler.HandleGitHubLogin)
		r.Get("/github/callback", authHandler.HandleGitHubCallback)
	})
	s.mux.Post("/logout", authHandler.HandleLogout)

	s.mux.Get("/", teamHandler.HandleHome)
	s.mux.Route("/mi-equipo", func(r chi.Router) {
		r.Get("/", teamHandler.HandleOverview)
		r.Post("/members", teamHandler.HandleCreateMember)
		r.Delete("/members/{id}", teamHandler.HandleDeleteMember)
	})
	s.mux.Route("/detalle-de-miembro/{id}", func(r chi.Router) {
		r.Get("/", memberHandler.HandleDetail)
		r.Post("/history", memberHandler.HandleAddRegistry)
		r.Delete("/history/{registryID}", memberHandler.HandleDeleteRegistry)
		r.Get("/estimate", memberHandler.HandleEstimate)
	})

	s.mux.Get("/ws", feedHandler.Serve)
	s.mux.Handle("/metrics", metrics.Handler(s.registry))
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
}

// Handler exposes the routes, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves HTTP until SIGINT/SIGTERM, then shuts down gracefully and
// releases every resource.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the session, provider, limiter, feed and store
func (s *Server) Start() (err error) {
	defer func() { err = multierr.Append(err, s.Close()) }()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("store", s.config.StoreDriver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}

// Close releases everything New acquired. The session cache is left on disk
// so the next start comes back signed in. Only the first call does work.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		for _, cancel := range s.cancels {
			cancel()
		}
		s.session.Close()
		s.provider.Close()
		s.limiter.Stop()
		s.stopHub()
		<-s.hubDone

		if err := s.store.Close(); err != nil {
			s.closeErr = fmt.Errorf("closing store: %w", err)
		}
	})
	return s.closeErr
}
