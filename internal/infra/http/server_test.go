package http

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Spok95/temny-shop/internal/infra/metrics"
)

func TestEngineHealthAndObserve(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.Nop()
	r := NewEngine(slog.New(slog.NewTextHandler(io.Discard, nil)), m, false)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "OK" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("/metrics must be hidden when disabled, got %d", rec.Code)
	}

	if n := testutil.CollectAndCount(m.HTTPDuration); n != 2 {
		t.Fatalf("observed series = %d, want 2 (health + unmatched)", n)
	}
}
