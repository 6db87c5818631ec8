package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tender-admin/internal/authclient"
	"tender-admin/internal/config"
	"tender-admin/internal/handler"
	"tender-admin/internal/messaging"
	"tender-admin/internal/middleware"
	"tender-admin/internal/observability"
	"tender-admin/internal/security"
	"tender-admin/internal/service"
	"tender-admin/internal/session"
	"tender-admin/internal/websocket"
)

func main() {
	cfg := config.Load()
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	if !handler.ServesPath(cfg.LandingPath) {
		slog.Error("LANDING_PATH does not name a panel section", slog.String("landing_path", cfg.LandingPath))
		os.Exit(1)
	}

	slog.Info("starting admin server",
		slog.String("instance_id", cfg.InstanceID),
		slog.String("store", cfg.StoreDriver),
		slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
	store, closeStore, err := config.OpenStore(connCtx, cfg)
	connCancel()
	if err != nil {
		slog.Error("failed to open session store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()
	slog.Info("session store ready", slog.String("driver", cfg.StoreDriver))

	var (
		rmq    *messaging.RabbitMQ
		events session.EventSink
	)
	if cfg.EventsEnabled() {
		rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
		rmq, err = messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
		rmqCancel()
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()
		events = rmq
	} else {
		slog.Info("RABBITMQ_URL not set, session events disabled")
	}

	backend := authclient.NewClient(cfg.BackendURL, cfg.BackendTimeout, nil)

	hub := websocket.NewHub()
	go func() {
		if err := hub.Run(ctx); err != nil && err != context.Canceled {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("websocket hub started")

	authService := service.NewAuthService(store, backend, events, hub, service.Config{
		InstanceID:      cfg.InstanceID,
		MaxTokenAge:     cfg.MaxTokenAge,
		RecheckInterval: cfg.GuardRecheckInterval,
		IdleTTL:         cfg.ClientIdleTTL,
		LoginPath:       cfg.LoginPath,
		LandingPath:     cfg.LandingPath,
	})

	go authService.StartCleanup(ctx, time.Minute)
	slog.Info("client cleanup task started")

	if rmq != nil {
		consumer := messaging.NewSessionEventConsumer(rmq, authService)
		if err := consumer.Start(ctx); err != nil {
			slog.Error("failed to start session event consumer", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	loginLimiter := middleware.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateBurst)
	defer loginLimiter.Stop()

	readiness := handler.ReadinessChecks{Store: store, Backend: backend}
	if rmq != nil {
		readiness.Broker = rmq
	}

	authHandler := handler.NewAuthHandler(authService)
	panelHandler := handler.NewPanelHandler(authService)
	allowedOrigins := middleware.ParseOrigins(cfg.AllowedOrigins)
	wsHandler := handler.NewWebSocketHandler(hub, authService, allowedOrigins)

	openapiCfg := middleware.DefaultOpenAPIValidatorConfig()
	openapiCfg.Enabled = cfg.OpenAPIValidation
	openapiCfg.SpecPath = cfg.OpenAPISpecPath

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(allowedOrigins))

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(readiness))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Client(security.NewSigner(cfg.SessionSecret), cfg.CookieSecure))
		r.Use(middleware.CSRF(authService))
		r.Use(middleware.OpenAPIValidator(openapiCfg))

		r.Get(cfg.LoginPath, authHandler.LoginPage)
		r.With(loginLimiter.Middleware()).Post(cfg.LoginPath, authHandler.LoginSubmit)
		r.Post("/logout", authHandler.Logout)

		r.Route("/api/v1/session", func(r chi.Router) {
			r.Get("/", authHandler.Session)
			r.With(loginLimiter.Middleware()).Post("/login", authHandler.LoginJSON)
			r.Post("/logout", authHandler.LogoutJSON)
		})

		r.Get("/ws/session", wsHandler.HandleConnection)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(authService, cfg.LoginPath))
			r.Get("/", panelHandler.Root)
			r.Get(config.PanelPath, panelHandler.Panel)
			r.Get(config.PanelPath+"/{section}", panelHandler.Panel)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("admin server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	cancel()

	time.Sleep(100 * time.Millisecond)

	slog.Info("server stopped gracefully")
}
