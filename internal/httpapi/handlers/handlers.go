// Package handlers implements the HTTP endpoints of the service. The
// bot gateway is the primary client; it identifies the end user with
// the X-User-ID header.
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"helvetia/internal/billing"
	"helvetia/internal/config"
	"helvetia/internal/httpkit"
	"helvetia/internal/jobqueue"
	"helvetia/internal/models"
	"helvetia/internal/notify"
	"helvetia/internal/pipeline"
	"helvetia/internal/pkg/logger"
	"helvetia/internal/repositories"
)

type Deps struct {
	Cfg      *config.Config
	Pool     *pgxpool.Pool
	RDB      *redis.Client
	Pipeline *pipeline.Pipeline
	Queue    *jobqueue.Queue
	Users    *repositories.UserRepository
	Payments *repositories.PaymentRepository
	Billing  *billing.Client // nil when the provider is not configured
	Notifier *notify.Notifier
	Log      *logger.Logger
}

type Handler struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	rdb      *redis.Client
	pipe     *pipeline.Pipeline
	queue    *jobqueue.Queue
	users    *repositories.UserRepository
	payments *repositories.PaymentRepository
	billing  *billing.Client
	notifier *notify.Notifier
	log      *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		cfg:      d.Cfg,
		pool:     d.Pool,
		rdb:      d.RDB,
		pipe:     d.Pipeline,
		queue:    d.Queue,
		users:    d.Users,
		payments: d.Payments,
		billing:  d.Billing,
		notifier: d.Notifier,
		log:      log.WithComponent("httpapi"),
	}
}

// requireUser resolves the X-User-ID header to a user row, creating it
// with the default free credits on first contact. A missing or
// malformed header fails the request.
func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	raw := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if raw == "" {
		httpkit.WriteErr(w, 401, "UNAUTHORIZED", "X-User-ID header is required", nil)
		return nil, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpkit.WriteErr(w, 401, "UNAUTHORIZED", "X-User-ID must be a positive integer", nil)
		return nil, false
	}

	user, err := h.users.GetOrCreate(r.Context(), id, "")
	if err != nil {
		h.log.FromContext(r.Context()).Error("user lookup failed", "user_id", id, "error", err)
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "user lookup failed", nil)
		return nil, false
	}
	return user, true
}
