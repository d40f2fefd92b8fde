package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"covault/auth"
	"covault/config"
	"covault/middleware"
	"covault/models"
	"covault/observability/logging"
	"covault/observability/otel"
	"covault/payments"
	"covault/server"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.Setup("covault", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPMetrics || cfg.OTLPTraces {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "covault",
			Environment: cfg.Environment,
			Endpoint:    cfg.OTLPEndpoint,
			Insecure:    cfg.OTLPInsecure,
			Metrics:     cfg.OTLPMetrics,
			Traces:      cfg.OTLPTraces,
		})
		if err != nil {
			log.Fatalf("telemetry init error: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("database connection error: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("auto migrate error: %v", err)
	}

	verifier := auth.NewVerifier(auth.Config{
		HS256Secret: []byte(cfg.JWTSecret),
		Issuer:      cfg.JWTIssuer,
		Audience:    cfg.JWTAudience,
		MaxSkew:     cfg.JWTMaxSkew,
	})

	srv := server.New(server.Config{
		DB:       db,
		Payments: payments.NewHTTPClient(cfg.PaymentsBaseURL, cfg.PaymentsAPIKey),
		Verifier: verifier,
		Log:      logger,
		RateLimit: middleware.RateLimit{
			RequestsPerMinute: cfg.SubmitRequestsPerMinute,
			Burst:             cfg.SubmitBurst,
		},
	})

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      otelhttp.NewHandler(srv.Handler(), "covault"),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("covault listening", "addr", cfg.ListenAddress)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
