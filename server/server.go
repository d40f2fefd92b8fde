package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"covault/auth"
	"covault/middleware"
	"covault/models"
	"covault/payments"
	"covault/psbt"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	DB        *gorm.DB
	Payments  payments.Client
	Verifier  *auth.Verifier
	Log       *slog.Logger
	RateLimit middleware.RateLimit
	Now       func() time.Time
}

// Server encapsulates dependencies for the HTTP API.
type Server struct {
	DB        *gorm.DB
	Payments  payments.Client
	Verifier  *auth.Verifier
	Log       *slog.Logger
	Validator *psbt.Validator
	Now       func() time.Time

	router http.Handler
}

// New constructs a configured HTTP router with authentication, idempotency
// and rate limiting support.
func New(cfg Config) *Server {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Verifier == nil {
		cfg.Verifier = auth.NewVerifier(auth.Config{})
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit = middleware.RateLimit{RequestsPerMinute: 30, Burst: 5}
	}
	srv := &Server{
		DB:        cfg.DB,
		Payments:  cfg.Payments,
		Verifier:  cfg.Verifier,
		Log:       cfg.Log,
		Validator: psbt.NewValidator(cfg.Log),
		Now:       cfg.Now,
	}
	if srv.Now == nil {
		srv.Now = time.Now
	}
	srv.router = srv.buildRouter(cfg.RateLimit)
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(limit middleware.RateLimit) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.Health)
	r.Handle("/metrics", promhttp.Handler())

	limiter := middleware.NewRateLimiter(limit)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(func(next http.Handler) http.Handler { return middleware.WithIdempotency(s.DB, next) })
		api.Use(s.Verifier.Authenticate)

		api.With(auth.RequireRole(auth.RoleProvider)).Post("/services", s.CreateService)
		api.With(auth.RequireRole(auth.RoleClient)).Post("/services/{id}/purchase", s.PurchaseService)
		api.With(auth.RequireRole(auth.RoleClient)).Post("/purchases/{id}/activate", s.ActivatePurchase)

		api.Group(func(submit chi.Router) {
			submit.Use(auth.RequireRole(auth.RoleClient))
			submit.Use(limiter.Middleware)
			submit.Post("/requests/invoice", s.RequestPayment)
			submit.Post("/requests", s.SubmitPsbt)
		})

		api.With(auth.RequireRole(auth.RoleProvider)).Post("/requests/{id}/sign", s.SignRequest)
		api.With(auth.RequireRole(auth.RoleClient)).Get("/requests/{id}/download", s.DownloadRequest)
		api.With(auth.RequireRole(auth.RoleClient, auth.RoleProvider, auth.RoleAdmin)).Get("/requests/{id}", s.GetRequest)
	})

	return r
}

// Health reports service liveness.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// lockRequest loads a signature request under a row lock for update.
func lockRequest(tx *gorm.DB, id uuid.UUID) (*models.SignatureRequest, error) {
	var request models.SignatureRequest
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&request, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &request, nil
}

// appendEvent records an audit trail entry inside the caller's transaction.
func (s *Server) appendEvent(tx *gorm.DB, requestID *uuid.UUID, actor uuid.UUID, action, details string) error {
	event := models.Event{
		ID:        uuid.New(),
		RequestID: requestID,
		ActorID:   actor,
		Action:    action,
		Details:   details,
		CreatedAt: s.Now(),
	}
	return tx.Create(&event).Error
}

// callerID parses the authenticated subject as a UUID.
func callerID(r *http.Request) (uuid.UUID, error) {
	claims, err := auth.FromContext(r.Context())
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(claims.Subject)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
