package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"helvetia/internal/billing"
	"helvetia/internal/httpkit"
	"helvetia/internal/metrics"
	"helvetia/internal/models"
	"helvetia/internal/pkg/errors"
	"helvetia/internal/pkg/middleware"
	"helvetia/internal/repositories"
)

// ListPlans serves the sellable catalog for the bot menu.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	httpkit.WriteJSON(w, 200, map[string]any{"plans": billing.Plans()})
}

type createInvoiceRequest struct {
	UserID int64  `json:"user_id"`
	Plan   string `json:"plan"`
}

// PostInvoice creates a Cryptomus invoice for a plan purchase and
// records the pending payment.
func (h *Handler) PostInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.billing == nil {
		httpkit.WriteErr(w, 503, "UNAVAILABLE", "billing is not configured", nil)
		return
	}

	var req createInvoiceRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid json body", nil)
		return
	}
	if req.UserID <= 0 {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "user_id must be a positive integer", map[string]any{"field": "user_id"})
		return
	}
	plan, ok := billing.PlanByID(req.Plan)
	if !ok {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "unknown plan", map[string]any{"field": "plan"})
		return
	}

	if err := h.users.Ensure(ctx, req.UserID, ""); err != nil {
		h.log.FromContext(ctx).Error("user upsert failed", "user_id", req.UserID, "error", err)
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "user upsert failed", nil)
		return
	}

	orderID := billing.NewOrderID(plan.ID, req.UserID, time.Now())
	inv, err := h.billing.CreateInvoice(ctx, billing.InvoiceRequest{
		Amount:      plan.PriceUSDT,
		Currency:    "USDT",
		OrderID:     orderID,
		Description: "Helvetia Meta " + plan.ID,
		CallbackURL: h.cfg.PublicBaseURL + "/payments/cryptomus",
		SuccessURL:  h.cfg.PaymentSuccessURL,
		FailURL:     h.cfg.PaymentFailURL,
		CustomerID:  req.UserID,
	})
	if err != nil {
		middleware.HandleError(w, r, h.log, err)
		return
	}

	invoiceID := inv.UUID
	if invoiceID == "" {
		invoiceID = orderID
	}
	if err := h.payments.Create(ctx, &models.Payment{
		UserID:    req.UserID,
		InvoiceID: invoiceID,
		Amount:    plan.PriceUSDT,
		Currency:  "USDT",
		Plan:      plan.ID,
		Status:    models.PaymentStatusPending,
	}); err != nil {
		h.log.FromContext(ctx).Error("payment insert failed", "invoice_id", invoiceID, "error", err)
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "payment insert failed", nil)
		return
	}

	metrics.InvoicesCreated.Inc()
	h.log.FromContext(ctx).Info("invoice created",
		"user_id", req.UserID, "plan", plan.ID, "order_id", orderID)

	httpkit.WriteJSON(w, 201, map[string]any{
		"invoice": map[string]any{
			"invoice_id": invoiceID,
			"order_id":   orderID,
			"url":        inv.URL,
			"plan":       plan.ID,
			"amount":     plan.PriceUSDT,
			"currency":   "USDT",
		},
	})
}

// CryptomusWebhook receives payment callbacks. The provider retries on
// non-2xx, so everything that is not actionable answers 200 with an
// ignored marker. Response bodies follow the provider contract shape.
func (h *Handler) CryptomusWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	if h.billing == nil {
		httpkit.WriteErr(w, 503, "UNAVAILABLE", "billing is not configured", nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "cannot read body", nil)
		return
	}

	signature := r.Header.Get("sign")
	if !h.billing.VerifyWebhook(body, signature) {
		metrics.WebhooksTotal.WithLabelValues("rejected").Inc()
		log.Warn("webhook signature mismatch")
		httpkit.WriteJSON(w, 403, map[string]any{"status": "invalid signature"})
		return
	}

	ev, err := billing.ParseWebhook(body)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues("rejected").Inc()
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "malformed webhook body", nil)
		return
	}

	plan, userID, err := billing.ParseOrderID(ev.OrderID)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues("ignored").Inc()
		log.Warn("webhook with foreign order id", "order_id", ev.OrderID)
		httpkit.WriteJSON(w, 200, map[string]any{"status": "ignored"})
		return
	}

	// The payments row references users, so the user must exist even
	// when the webhook races the registration.
	if err := h.users.Ensure(ctx, userID, ""); err != nil {
		log.Error("user upsert failed", "user_id", userID, "error", err)
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "user upsert failed", nil)
		return
	}

	paid := ev.Status == "paid"
	var paidAt *time.Time
	if paid {
		now := time.Now().UTC()
		paidAt = &now
	}

	currency := ev.Currency
	if currency == "" {
		currency = "USDT"
	}

	invoiceID := ev.InvoiceID()
	err = h.payments.Create(ctx, &models.Payment{
		UserID:    userID,
		InvoiceID: invoiceID,
		Amount:    ev.Amount,
		Currency:  currency,
		Plan:      plan,
		Status:    ev.Status,
		PaidAt:    paidAt,
	})
	if errors.Is(err, repositories.ErrInvoiceExists) {
		err = h.payments.UpdateStatus(ctx, invoiceID, ev.Status, paidAt)
	}
	if err != nil {
		log.Error("payment upsert failed", "invoice_id", invoiceID, "error", err)
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "payment upsert failed", nil)
		return
	}

	outcome := "recorded"
	if paid {
		outcome = "paid"
		h.activatePlan(ctx, userID, plan)
	}
	metrics.WebhooksTotal.WithLabelValues(outcome).Inc()

	httpkit.WriteJSON(w, 200, map[string]any{"status": "ok"})
}

// activatePlan grants the purchased plan and queues the user
// notification. Failures here are logged, never returned: the payment
// is already recorded and the provider must not retry it.
func (h *Handler) activatePlan(ctx context.Context, userID int64, planID string) {
	log := h.log.FromContext(ctx)

	plan, ok := billing.PlanByID(planID)
	if !ok {
		log.Warn("paid webhook for unknown plan, skipping activation",
			"user_id", userID, "plan", planID)
		return
	}

	planType, expiresAt := plan.Grant(time.Now())
	if err := h.users.ActivatePlan(ctx, userID, planType, expiresAt); err != nil {
		log.Error("plan activation failed", "user_id", userID, "plan", planID, "error", err)
		return
	}
	log.Info("plan activated", "user_id", userID, "plan", planType)

	if err := h.notifier.PlanActivated(ctx, userID); err != nil {
		log.Warn("activation notification failed", "user_id", userID, "error", err)
	}
}
