// Package app wires the panel together: configuration, logging,
// observability, the identity provider client, the session store and
// the loopback HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"rshieldcli/internal/auth"
	"rshieldcli/internal/backend"
	"rshieldcli/internal/config"
	"rshieldcli/internal/identity"
	"rshieldcli/internal/infrastructure"
	"rshieldcli/internal/license"
	"rshieldcli/internal/link"
	custommiddleware "rshieldcli/internal/middleware"
	"rshieldcli/internal/notify"
	"rshieldcli/internal/panel"
	"rshieldcli/internal/session"
	handlers "rshieldcli/internal/transport/http"
	ws "rshieldcli/internal/websocket"
)

const (
	Version = "v1.0.0"
	AppName = "RShield Panel"
)

// Application is the panel's dependency container
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders

	Provider     *identity.Client
	SessionStore *session.Store
	Panel        *panel.Panel
	Hub          *ws.Hub

	Router *chi.Mux
	Server *http.Server
}

// NewApplication creates the panel application with all dependencies wired
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("name", AppName),
		slog.String("version", Version),
		slog.String("addr", cfg.Server.Addr()))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.Server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      app.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

// initializeServices builds the service graph, leaves first
func (app *Application) initializeServices() error {
	app.Provider = identity.NewClient(app.Config.Identity, app.Logger)

	app.SessionStore = session.NewStore(app.Logger)
	app.SessionStore.Start(app.Provider)

	app.Hub = ws.NewHub(app.Logger)

	notifier := notify.NewLogNotifier(func(n notify.Notification) {
		app.Hub.Broadcast(ws.Event{Type: ws.TypeNotification, Payload: n})
	})

	backendClient := backend.NewClient(app.Config.Backend, app.Logger)

	licenseClient, err := license.NewClient(backendClient, app.SessionStore, app.Logger, app.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create license client: %w", err)
	}

	linkClient, err := link.NewClient(backendClient, app.SessionStore, app.Logger, app.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create link client: %w", err)
	}

	authController := auth.NewController(app.Provider, app.Logger)

	app.Panel = panel.New(app.SessionStore, authController, licenseClient, linkClient, app.Provider, notifier, app.Logger)
	return nil
}

// setupRouter assembles the chi router with the middleware chain
func (app *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(custommiddleware.RequestID)
	r.Use(custommiddleware.StructuredLogger(app.Logger))
	r.Use(custommiddleware.Recoverer(app.Logger))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	if app.Config.Security.RateLimit.Enabled {
		limiter := custommiddleware.NewRateLimiter(
			app.Config.Security.RateLimit.RPS,
			app.Config.Security.RateLimit.Burst,
			app.Logger,
		)
		r.Use(limiter.Handler)
	}

	healthHandler := handlers.NewHealthHandler(Version)
	r.Get("/healthz", healthHandler.Healthz)

	if app.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", app.OTelProviders.PrometheusHTTP)
	}

	panelHandler := handlers.NewPanelHandler(app.Panel, app.Logger)
	r.Mount("/api/panel", panelHandler.Routes())

	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		ws.ServeWS(app.Hub, app.Logger, w, req)
	})

	app.Router = r
}

// Run starts the panel and blocks until shutdown
func (app *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Lifecycle log lines share one trace ID per process run.
	ctx = infrastructure.EnsureTraceID(ctx)

	// Mirror session changes onto the event stream so connected views
	// re-gate their affordances live.
	sessionChanges, cancelWatch := app.SessionStore.Watch()
	defer cancelWatch()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.Hub.Run()
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case s := <-sessionChanges:
				if s != nil {
					app.Hub.BroadcastSession(true, s.Email)
				} else {
					app.Hub.BroadcastSession(false, "")
				}
			case <-gctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		app.Logger.InfoContext(gctx, "panel listening", slog.String("addr", app.Server.Addr))
		if err := app.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return app.shutdown()
	})

	return g.Wait()
}

// shutdown tears the panel down in reverse dependency order
func (app *Application) shutdown() error {
	app.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := app.Server.Shutdown(shutdownCtx); err != nil {
		firstErr = fmt.Errorf("server shutdown: %w", err)
	}

	app.SessionStore.Close()
	app.Hub.Stop()

	if err := app.OTelProviders.Shutdown(shutdownCtx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := infrastructure.CloseLogFile(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("log file close: %w", err)
	}

	return firstErr
}
