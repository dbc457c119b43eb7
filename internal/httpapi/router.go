package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"helvetia/internal/httpapi/handlers"
	"helvetia/internal/httpkit"
	"helvetia/internal/pkg/middleware"
	"helvetia/internal/ratelimit"
)

type Deps struct {
	Handlers handlers.Deps
	Limiter  *ratelimit.Limiter
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	log := d.Handlers.Log

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log))
	r.Use(middleware.Metrics("/metrics", "/health"))

	// ---- CORS (bot gateway + admin frontend) ----
	allowedOrigins := d.Handlers.Cfg.CORSOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{
			"http://localhost:8081",
			"http://localhost:5173",
		}
	}
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-User-ID"},
		AllowCredentials: false,
		MaxAgeSeconds:    600,
	}))

	h := handlers.New(d.Handlers)

	// ---- HEALTH / METRICS ----
	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	// ---- MEDIA ----
	// Submission routes sit behind the per-user rate limit. Artifact
	// delivery streams large bodies, so no request timeout here.
	r.Group(func(r chi.Router) {
		r.Use(d.Limiter.Middleware)
		r.Post("/uniqueize", h.Uniqueize)
		r.Post("/jobs", h.PostJob)
	})
	r.Get("/jobs/{jobId}", h.GetJob)
	r.Get("/jobs/{jobId}/artifact", h.GetJobArtifact)
	r.Delete("/jobs/{jobId}", h.CancelJob)

	// ---- USERS / BILLING ----
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Post("/users", h.PostUser)
		r.Get("/users/{userId}", h.GetUser)
		r.Get("/users/{userId}/payments", h.ListUserPayments)

		r.Get("/billing/plans", h.ListPlans)
		r.Post("/billing/invoices", h.PostInvoice)
		r.Post("/payments/cryptomus", h.CryptomusWebhook)
	})

	return r
}
