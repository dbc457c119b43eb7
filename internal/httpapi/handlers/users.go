package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"helvetia/internal/httpkit"
	"helvetia/internal/models"
)

type upsertUserRequest struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// PostUser registers or refreshes a user. An empty username never
// overwrites a stored one.
func (h *Handler) PostUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req upsertUserRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid json body", nil)
		return
	}
	if req.ID <= 0 {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "id must be a positive integer", map[string]any{"field": "id"})
		return
	}

	if err := h.users.Ensure(ctx, req.ID, req.Username); err != nil {
		h.log.FromContext(ctx).Error("user upsert failed", "user_id", req.ID, "error", err)
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "user upsert failed", nil)
		return
	}

	user, err := h.users.Get(ctx, req.ID)
	if err != nil {
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "user lookup failed", nil)
		return
	}

	httpkit.WriteJSON(w, 200, map[string]any{"user": userView(user, time.Now())})
}

// GetUser returns the subscription view of a user, creating the row
// with the default free credits on first sight.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := parseUserID(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetOrCreate(ctx, id, "")
	if err != nil {
		h.log.FromContext(ctx).Error("user lookup failed", "user_id", id, "error", err)
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "user lookup failed", nil)
		return
	}

	httpkit.WriteJSON(w, 200, map[string]any{"user": userView(user, time.Now())})
}

func (h *Handler) ListUserPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := parseUserID(w, r)
	if !ok {
		return
	}

	list, err := h.payments.ListByUser(ctx, id)
	if err != nil {
		h.log.FromContext(ctx).Error("payments query failed", "user_id", id, "error", err)
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "payments query failed", nil)
		return
	}

	httpkit.WriteJSON(w, 200, map[string]any{"payments": list})
}

func parseUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "userId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "userId must be a positive integer", map[string]any{"field": "userId"})
		return 0, false
	}
	return id, true
}

func userView(u *models.User, now time.Time) map[string]any {
	return map[string]any{
		"id":              u.ID,
		"username":        u.Username,
		"free_remaining":  u.FreeRemaining,
		"plan_type":       u.PlanType,
		"plan_expires_at": u.PlanExpiresAt,
		"plan_active":     u.PlanActive(now),
		"can_process":     u.CanProcess(now),
		"created_at":      u.CreatedAt,
	}
}
