package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("org_id", "123"),
		attribute.String("worker_id", "456"),
		attribute.String("order_status", "completed"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "org_id" && attrs[1].Key != "org_id" {
		t.Fatalf("expected org_id to be retained")
	}
	if attrs[0].Key != "order_status" && attrs[1].Key != "order_status" {
		t.Fatalf("expected order_status to be retained")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordTimerStart(context.Background(), "1")
	m.RecordTimerStop(context.Background(), "1", "completed")
	m.RecordStockDeduction(context.Background(), "1", 2)
}

func TestGinMiddlewareWithNoopProvider(t *testing.T) {
	gin.SetMode(gin.TestMode)
	httpMetrics, err := NewHTTPMetrics(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new http metrics: %v", err)
	}
	domain, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	router := gin.New()
	router.Use(GinMiddleware(httpMetrics))
	router.GET("/ping", func(c *gin.Context) {
		domain.RecordTimerStart(c.Request.Context(), "1")
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}
