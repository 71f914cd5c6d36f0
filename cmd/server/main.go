package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"medvoice/internal/agent"
	"medvoice/internal/auth"
	"medvoice/internal/call"
	"medvoice/internal/config"
	"medvoice/internal/consultation"
	"medvoice/internal/entitlement"
	"medvoice/internal/health"
	"medvoice/internal/persona"
	"medvoice/internal/platform/cache"
	"medvoice/internal/platform/database"
	"medvoice/internal/platform/logging"
	"medvoice/internal/platform/telegram"
	"medvoice/internal/platform/telemetry"
	"medvoice/internal/platform/vapi"
	"medvoice/internal/report"
	"medvoice/internal/user"
)

const serviceName = "medvoice"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(serviceName, cfg.Version, logger)

	// 1. Infrastructure
	db, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.ConnectRetries, logger)
	if err != nil {
		logger.WithError(err).Fatal("could not connect to database")
	}
	defer db.Close()
	logger.Info("connected to database")

	if cfg.Database.MigrateOnStart {
		if err := database.Migrate(cfg.Database.URL); err != nil {
			logger.WithError(err).Fatal("migrations failed")
		}
		logger.Info("migrations applied")
	}

	profileCache := cache.New(ctx, cache.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.Redis.TTL,
	}, logger)
	defer profileCache.Close()

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTPublicKey, cfg.Auth.Issuer)
	if err != nil {
		logger.WithError(err).Fatal("token verifier")
	}

	// 2. Clients
	llm := agent.NewOpenRouterClient(agent.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	})
	if !llm.Configured() {
		logger.Warn("llm api key not set: report generation will answer 500")
	}

	voice := vapi.NewClient(vapi.Config{
		BaseURL:     cfg.Voice.BaseURL,
		PublicKey:   cfg.Voice.PublicKey,
		APIKey:      cfg.Voice.APIKey,
		AssistantID: cfg.Voice.AssistantID,
		Timeout:     cfg.Voice.Timeout,
	}, logger)
	if !cfg.Voice.Configured() {
		logger.Warn("voice public key or assistant id not set: calls cannot be started")
	}
	if cfg.Voice.WebhookSecret == "" {
		logger.Warn("voice webhook secret not set: voice events are rejected")
	}

	reportOpts := []report.Option{report.WithRenderer(report.NewRenderer(nil))}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.CareChatID != 0 {
		tg := telegram.NewClient(cfg.Telegram.BotToken, logger)
		reportOpts = append(reportOpts, report.WithNotifier(telegram.NewChatNotifier(tg, cfg.Telegram.CareChatID)))
	} else {
		logger.Info("telegram care chat not configured: severe reports are not forwarded")
	}

	// 3. Services
	userSvc := user.NewService(user.NewRepository(db), profileCache, logger)
	sessionRepo := consultation.NewRepository(db)
	gate := entitlement.NewGate(sessionRepo, logger)
	sessionSvc := consultation.NewService(sessionRepo, gate, userSvc, logger)
	reportSvc := report.NewService(llm, sessionSvc, logger, reportOpts...)
	calls := call.NewManager(call.Deps{
		Channel:     voice,
		Deriver:     reportSvc,
		Sessions:    sessionSvc,
		DrainWindow: cfg.Call.DrainWindow,
		Logger:      logger,
	})

	var cachePinger health.CachePinger
	if profileCache != nil {
		cachePinger = profileCache
	}
	callHandler := call.NewHandler(calls, cfg.Voice.WebhookSecret, logger)

	// 4. Router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(logger))
	r.Use(middleware.Recoverer)

	// CORS for frontend
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, HEAD, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
			if r.Method == http.MethodOptions {
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Route("/api", func(r chi.Router) {
		health.RegisterRoutes(r, health.NewHandler(db, cachePinger, cfg.Version, logger))
		call.RegisterWebhook(r, callHandler)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifier, logger))
			user.RegisterRoutes(r, user.NewHandler(userSvc, logger))
			entitlement.RegisterRoutes(r, entitlement.NewHandler(gate, logger))
			persona.RegisterRoutes(r, persona.NewHandler(persona.NewSuggester(llm, logger), func(id auth.Identity, p persona.Persona) bool {
				return entitlement.CanUsePersona(id, p) == nil
			}, logger))
			consultation.RegisterRoutes(r, consultation.NewHandler(sessionSvc, logger))
			report.RegisterRoutes(r, report.NewHandler(reportSvc, sessionSvc, report.NewRenderer(nil), logger))
			call.RegisterRoutes(r, callHandler)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(r, serviceName),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	calls.CloseAll(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown error")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.WithError(err).Warn("tracer shutdown")
	}
}
