package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dgellow/checkin-front/internal/auth"
	"github.com/dgellow/checkin-front/internal/config"
	"github.com/dgellow/checkin-front/internal/idp"
	"github.com/dgellow/checkin-front/internal/log"
	"github.com/dgellow/checkin-front/internal/proxy"
	"github.com/dgellow/checkin-front/internal/server"
	"github.com/dgellow/checkin-front/internal/storage"
)

const shutdownTimeout = 30 * time.Second

// CheckinFront is the complete application: auth endpoints, the routing
// table and the session store behind both.
type CheckinFront struct {
	config     config.Config
	storage    storage.Storage
	handler    http.Handler
	httpServer *server.HTTPServer
}

// NewCheckinFront builds the application and all of its dependencies
func NewCheckinFront(ctx context.Context, cfg config.Config) (*CheckinFront, error) {
	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	app, err := newCheckinFront(cfg, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return app, nil
}

func newCheckinFront(cfg config.Config, store storage.Storage) (*CheckinFront, error) {
	log.LogInfoWithFields("checkinfront", "Building application", map[string]any{
		"baseURL":  cfg.Server.BaseURL,
		"api":      cfg.APIOrigin(),
		"noSSL":    cfg.Server.NoSSL,
		"provider": string(cfg.OAuth.Provider),
		"storage":  string(cfg.Storage.Kind),
	})

	provider, err := idp.NewProvider(cfg.OAuth, cfg.RedirectURI(), &http.Client{Timeout: cfg.Backend.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	bridge, err := auth.NewSessionBridge(cfg, provider, store)
	if err != nil {
		return nil, fmt.Errorf("failed to create session bridge: %w", err)
	}

	handler, err := buildHTTPHandler(cfg, bridge, store)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}

	return &CheckinFront{
		config:     cfg,
		storage:    store,
		handler:    handler,
		httpServer: server.NewHTTPServer(handler, cfg.Server.Addr),
	}, nil
}

// Handler returns the root HTTP handler
func (c *CheckinFront) Handler() http.Handler {
	return c.handler
}

// Run serves until ctx is cancelled, SIGINT/SIGTERM arrives or the server
// fails, then shuts down gracefully.
func (c *CheckinFront) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.LogInfoWithFields("checkinfront", "Starting application", map[string]any{
		"addr": c.config.Server.Addr,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := c.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.LogInfoWithFields("checkinfront", "Starting graceful shutdown", map[string]any{
			"timeout": shutdownTimeout.String(),
		})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return c.httpServer.Stop(shutdownCtx)
	})

	if sweeper, ok := c.storage.(storage.Sweeper); ok {
		cleanup := storage.NewCleanupManager(sweeper, c.config.Session.CleanupInterval)
		g.Go(func() error {
			return cleanup.Run(gctx)
		})
	}

	err := g.Wait()
	if closeErr := c.storage.Close(); closeErr != nil {
		log.LogWarnWithFields("checkinfront", "Failed to close storage", map[string]any{
			"error": closeErr.Error(),
		})
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.LogErrorWithFields("checkinfront", "Application stopped with error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	log.LogInfoWithFields("checkinfront", "Application shutdown complete", nil)
	return nil
}

// setupStorage creates the session store selected by configuration
func setupStorage(ctx context.Context, cfg config.Config) (storage.Storage, error) {
	switch cfg.Storage.Kind {
	case config.StorageKindRedis:
		return storage.NewRedisStorage(ctx, storage.RedisOptions{
			URL:       string(cfg.Storage.RedisURL),
			KeyPrefix: cfg.Storage.KeyPrefix,
			PoolSize:  cfg.Storage.PoolSize,
		})

	case config.StorageKindFirestore:
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    cfg.Storage.FirestoreProject,
			"database":   cfg.Storage.FirestoreDatabase,
			"collection": cfg.Storage.FirestoreCollection,
		})
		return storage.NewFirestoreStorage(ctx,
			cfg.Storage.FirestoreProject,
			cfg.Storage.FirestoreDatabase,
			cfg.Storage.FirestoreCollection,
		)

	case config.StorageKindMemory:
		log.LogWarnWithFields("storage", "Using in-memory storage; sessions are lost on restart and not shared between instances", nil)
		return storage.NewMemoryStorage(), nil

	default:
		return nil, fmt.Errorf("unknown storage kind %q", cfg.Storage.Kind)
	}
}

// buildHTTPHandler wires the fixed endpoints in front of the routing table
func buildHTTPHandler(cfg config.Config, bridge *auth.SessionBridge, store storage.Storage) (http.Handler, error) {
	authHandlers := server.NewAuthHandlers(cfg, bridge)

	routes, err := proxy.DefaultRoutes(cfg, http.HandlerFunc(authHandlers.CallbackHandler))
	if err != nil {
		return nil, err
	}
	router, err := proxy.NewRouter(routes, bridge,
		proxy.WithTimeout(cfg.Backend.Timeout),
		proxy.WithLoginURI(server.LoginPath),
	)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc(server.LoginPath, authHandlers.BeginHandler)
	mux.HandleFunc(server.LogoutPath, authHandlers.LogoutHandler)
	mux.HandleFunc(server.SessionPath, authHandlers.SessionHandler)
	mux.Handle(server.HealthPath, server.NewHealthHandler(store))
	mux.Handle(server.MetricsPath, promhttp.Handler())
	mux.Handle("/", router)

	for _, route := range router.Routes() {
		log.LogDebugWithFields("checkinfront", "Route registered", map[string]any{
			"name":           route.Name,
			"pattern":        route.Pattern,
			"upgrade":        route.Upgrade,
			"requireSession": route.RequireSession,
		})
	}

	return server.ChainMiddleware(mux,
		server.NewCORSMiddleware(cfg.Server.AllowedOrigins),
		server.NewRecoverMiddleware("http"),
		server.NewLoggerMiddleware("http"),
		server.NewRequestIDMiddleware(),
	), nil
}
