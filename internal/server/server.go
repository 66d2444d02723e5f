// ABOUTME: HTTP server wiring stores, the gateway relay, and the registration pipeline
// ABOUTME: Owns startup, routing, and graceful shutdown with a final store flush

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/2389/showcase-backend/internal/blobcache"
	"github.com/2389/showcase-backend/internal/catalog"
	"github.com/2389/showcase-backend/internal/config"
	"github.com/2389/showcase-backend/internal/relay"
	"github.com/2389/showcase-backend/internal/store"
)

// Server is the showcase HTTP backend.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	persister store.Persister
	products  *store.ProductStore
	personas  *store.PersonaStore
	catalog   *catalog.Service
	relay     *relay.Client
	cache     *blobcache.Cache
	metrics   *metrics
	limiter   *rateLimiter

	router     chi.Router
	httpServer *http.Server
	now        func() time.Time
}

// New opens the configured storage backend, loads both tables and builds
// the router. The caller must call Shutdown (or Run) to release storage.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		logger:  logger.With("component", "server"),
		metrics: newMetrics(),
		now:     time.Now,
	}

	persister, err := openPersister(ctx, cfg.Storage, s.logger)
	if err != nil {
		return nil, err
	}
	s.persister = persister

	s.products, err = store.NewProductStore(ctx, persister)
	if err != nil {
		persister.Close()
		return nil, fmt.Errorf("loading products: %w", err)
	}
	s.personas = store.NewPersonaStore(ctx, persister)
	s.logger.Info("stores loaded",
		"backend", cfg.Storage.Backend,
		"products", s.products.Count(),
		"personas", s.personas.Count(),
	)

	s.relay, err = relay.New(relay.Config{
		Endpoint:  cfg.Gateway.FileEndpoint(),
		Account:   cfg.Gateway.Account,
		Message:   cfg.Gateway.Message,
		Signature: cfg.Gateway.Signature,
		Territory: cfg.Gateway.Territory,
		Timeout:   cfg.Gateway.Timeout,
	}, relay.WithLogger(logger), relay.WithObserver(s.metrics))
	if err != nil {
		persister.Close()
		return nil, fmt.Errorf("creating relay: %w", err)
	}

	s.catalog = catalog.New(s.products, s.personas, s.relay, logger)
	s.cache = blobcache.New(cfg.Cache.MetadataTTL, cfg.Cache.MetadataMaxEntries)
	if cfg.RateLimit.Enabled {
		s.limiter = newRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, s.logger)
	}

	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
	return s, nil
}

// openPersister opens the backend named in cfg. For SQLite, legacy JSON
// files found in the data directory are imported into empty tables.
func openPersister(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (store.Persister, error) {
	switch cfg.Backend {
	case config.BackendJSON:
		p, err := store.NewJSONFilePersister(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening json store: %w", err)
		}
		return p, nil
	case config.BackendSQLite:
		p, err := store.NewSQLitePersister(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		if cfg.ImportLegacy {
			res, err := store.ImportLegacy(ctx, p, cfg.DataDir)
			if err != nil {
				p.Close()
				return nil, fmt.Errorf("importing legacy data: %w", err)
			}
			if res.Products > 0 || res.Personas > 0 {
				logger.Info("legacy data imported", "products", res.Products, "personas", res.Personas)
			}
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// routes builds the chi router with every endpoint.
func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	if s.cfg.Metrics.Enabled {
		r.Handle(s.cfg.Metrics.Path, s.metrics.handler())
	}

	r.With(s.rateLimit).Post("/upload", s.handleUpload)

	r.Route("/products", func(r chi.Router) {
		r.Get("/", s.handleListProducts)
		r.With(s.rateLimit).Post("/register-full", s.handleRegisterFull)
		r.With(s.rateLimit).Post("/register", s.handleRegisterLegacy)
		r.Get("/metadata/{blobID}", s.handleProductMetadata)
		r.Get("/{id}", s.handleGetProduct)
		r.Put("/{id}/chain-status", s.handleChainStatus)
	})

	r.Route("/personas", func(r chi.Router) {
		r.Get("/", s.handleListPersonas)
		r.Post("/", s.handleCreatePersona)
		r.Get("/{wallet}", s.handleGetPersona)
		r.Put("/{wallet}", s.handleUpdatePersona)
		r.Delete("/{wallet}", s.handleDeletePersona)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/products/cleanup", s.handleCleanup)
	})

	r.Route("/utils", func(r chi.Router) {
		r.Get("/eth-to-wei/{amount}", s.handleEthToWei)
		r.Get("/wei-to-eth/{amount}", s.handleWeiToEth)
		r.Get("/validate-fid/{fid}", s.handleValidateFID)
	})

	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Routes exposes the route tree for chi.Walk.
func (s *Server) Routes() chi.Routes {
	return s.router
}

// startServer starts the HTTP server in a goroutine, returning its error channel.
func (s *Server) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		return err
	}
}

// Run serves until ctx is canceled or the listener fails, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.closeStorage()
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	errCh := s.startServer(ln)
	serverErr := s.waitForShutdownSignal(ctx, errCh)

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown runs Shutdown with a fresh context, since the one
// passed to Run is already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops accepting requests, flushes both tables and closes storage.
// The flush is best effort and can race with a mutation still in flight.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "products flush", s.products.Flush(ctx))
	errs = appendCloseError(errs, "personas flush", s.personas.Flush(ctx))
	errs = appendCloseError(errs, "store close", s.persister.Close())

	s.closeOptionalComponents()

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// closeStorage releases storage when the server never started.
func (s *Server) closeStorage() {
	if err := s.persister.Close(); err != nil {
		s.logger.Error("closing store", "error", err)
	}
	s.closeOptionalComponents()
}

// closeOptionalComponents stops background goroutines.
func (s *Server) closeOptionalComponents() {
	if s.cache != nil {
		s.cache.Close()
	}
	if s.limiter != nil {
		s.limiter.Close()
	}
}
