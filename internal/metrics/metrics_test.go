package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestCollectorsAppearOnScrape(t *testing.T) {
	// Touch one child of each vec so the series exist before gathering.
	JobsSubmitted.WithLabelValues("image").Add(0)
	JobsFinished.WithLabelValues("video", "succeeded").Add(0)
	JobDuration.WithLabelValues("video").Observe(12)
	HTTPRequestsTotal.WithLabelValues("GET", "/healthz", "200").Add(0)
	HTTPRequestDuration.WithLabelValues("GET", "/healthz").Observe(0.01)
	WebhooksTotal.WithLabelValues("paid").Add(0)
	RegisterQueue(func() int { return 2 }, func() int { return 1 })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	promhttp.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("scrape status = %d", rec.Code)
	}

	body := rec.Body.String()
	for _, name := range []string{
		"helvetia_jobs_submitted_total",
		"helvetia_jobs_rejected_total",
		"helvetia_jobs_finished_total",
		"helvetia_job_duration_seconds",
		"helvetia_artifacts_reaped_total",
		"helvetia_staged_bytes_total",
		"helvetia_sweep_removals_total",
		"helvetia_http_requests_total",
		"helvetia_http_request_duration_seconds",
		"helvetia_http_requests_in_flight",
		"helvetia_billing_invoices_created_total",
		"helvetia_billing_webhooks_total",
		"helvetia_queue_in_flight",
		"helvetia_queue_depth",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("scrape output missing %s", name)
		}
	}

	if !strings.Contains(body, "helvetia_queue_in_flight 2") {
		t.Errorf("queue gauge did not read live value")
	}
}
