// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/warroomhq/warroom/api"
	"github.com/warroomhq/warroom/internal/agents"
	"github.com/warroomhq/warroom/internal/broadcast"
	"github.com/warroomhq/warroom/internal/config"
	"github.com/warroomhq/warroom/internal/knowledge"
	"github.com/warroomhq/warroom/internal/messaging"
	"github.com/warroomhq/warroom/internal/pipeline"
	"github.com/warroomhq/warroom/internal/pkg/httputil"
	"github.com/warroomhq/warroom/internal/scenario"
	"github.com/warroomhq/warroom/internal/version"
)

// App represents the application instance.
type App struct {
	config      *config.Config
	logger      *slog.Logger
	broker      *broadcast.Broker
	registry    *knowledge.Registry
	exchange    *messaging.Exchange
	coordinator *pipeline.Coordinator
	validator   *validator.Validate
	upgrader    websocket.Upgrader

	server        *http.Server
	metricsServer *http.Server

	startedAt time.Time
	draining  atomic.Bool
}

// New creates a new application instance with all stores and the pipeline
// coordinator wired together.
func New(cfg *config.Config) *App {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	broker := broadcast.NewBroker(cfg.Realtime.SendBuffer, logger)
	registry := knowledge.NewRegistry(cfg.Knowledge.RelevanceThreshold, broker, logger)
	exchange := messaging.NewExchange(cfg.Messaging.HistoryLimit, broker, logger)

	rng := agents.NewLockedRand(time.Now().UnixNano())
	pacer := agents.NewJitterPacer(rng)
	roster := agents.Roster(pacer, rng)

	coordinator := pipeline.NewCoordinator(pipeline.Config{
		StageTimeout:          cfg.Pipeline.StageTimeout,
		PacingMin:             cfg.Pipeline.PacingMin,
		PacingMax:             cfg.Pipeline.PacingMax,
		FailFast:              cfg.Pipeline.FailFast,
		HistoryLimit:          cfg.Pipeline.HistoryLimit,
		ExecutionHistoryLimit: cfg.Pipeline.ExecutionHistoryLimit,
	}, registry, exchange, scenario.NewSource(time.Now().UnixNano()), roster, pacer, broker, logger)

	app := &App{
		config:      cfg,
		logger:      logger,
		broker:      broker,
		registry:    registry,
		exchange:    exchange,
		coordinator: coordinator,
		validator:   validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.CORS.AllowedOrigins),
		},
		startedAt: time.Now().UTC(),
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           app.setupRouter(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app
}

// Run starts both HTTP servers and blocks until the context is canceled or
// a server fails. On cancellation it drains in-flight workflows before
// returning.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.logger.Info("starting server",
			"host", a.config.Server.Host,
			"port", a.config.Server.Port,
		)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown gracefully shuts down the application: both servers stop taking
// requests, then the coordinator waits for running workflows.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")
	a.draining.Store(true)

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	if err := a.coordinator.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown pipeline: %w", err))
	}

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Coordinator returns the pipeline coordinator. Used in tests to drive and
// observe workflows directly.
func (a *App) Coordinator() *pipeline.Coordinator {
	return a.coordinator
}

func (a *App) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		_, _ = w.Write(api.OpenAPISpec)
	})

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>WarRoom API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// The realtime connection stays open for the lifetime of the
		// subscriber, so it lives outside the request timeout group.
		r.Get("/realtime", a.realtimeHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.With(httputil.RateLimitMiddleware(a.config.API.TriggerRateRPS, a.config.API.TriggerRateBurst)).
				Post("/incidents", a.triggerIncidentHandler)
			r.Get("/incidents", a.listIncidentsHandler)
			r.Get("/incidents/{id}", a.getIncidentHandler)

			r.Get("/agents", a.listAgentsHandler)
			r.Get("/agents/{agent_id}/history", a.agentHistoryHandler)

			r.Get("/contexts", a.listContextsHandler)
			r.Get("/messages", a.listMessagesHandler)
			r.Get("/collaborations", a.listCollaborationsHandler)
			r.Get("/stats", a.statsHandler)
		})
	})

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, _ *http.Request) {
	if a.draining.Load() {
		httputil.Text(w, http.StatusServiceUnavailable, "Shutting down")
		return
	}
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func originChecker(allowedOrigins []string) func(*http.Request) bool {
	originsSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originsSet[o] = true
	}
	return func(r *http.Request) bool {
		if originsSet["*"] {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return originsSet[origin]
	}
}
