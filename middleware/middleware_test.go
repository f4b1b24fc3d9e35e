package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/Buypolar-Capital/buypolarcapital/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(NewLocalRateLimitMiddleware(1, 2))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := range 2 {
		if rec := serve(r, "GET", "/x", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}
	if rec := serve(r, "GET", "/x", ""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(slog.New(slog.NewTextHandler(io.Discard, nil))))
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	if rec := serve(r, "GET", "/panic", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/x", func(c *gin.Context) { seen = RequestIDFrom(c.Request.Context()) })

	rec := serve(r, "GET", "/x", "")
	if seen == "" || rec.Header().Get(HeaderXRequestID) != seen {
		t.Errorf("request id %q, header %q", seen, rec.Header().Get(HeaderXRequestID))
	}

	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set(HeaderXRequestID, "given")
	r.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "given" {
		t.Errorf("incoming id not propagated: %q", seen)
	}
}

func TestMaxBodyBytes(t *testing.T) {
	r := gin.New()
	r.Use(MaxBodyBytes(4))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	if rec := serve(r, "POST", "/x", "0123456789"); rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestHTTPMetrics(t *testing.T) {
	m := metrics.NewMetrics("test")
	r := gin.New()
	r.Use(HTTPMetricsMiddleware(m, "/healthz"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, "GET", "/x", "")
	serve(r, "GET", "/healthz", "")

	if got := testutil.ToFloat64(m.HttpRequestsTotal.WithLabelValues("GET", "/x", "200")); got != 1 {
		t.Errorf("/x count = %v", got)
	}
	if got := testutil.CollectAndCount(m.HttpRequestsTotal); got != 1 {
		t.Errorf("skipped path was recorded, series = %d", got)
	}
}

func TestTracingMiddlewareStartsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	r := gin.New()
	r.Use(TracingMiddleware("quantlab-test", otelgin.WithTracerProvider(tp)))
	var sawSpan bool
	r.GET("/traced", func(c *gin.Context) {
		sawSpan = trace.SpanContextFromContext(c.Request.Context()).IsValid()
		c.Status(http.StatusOK)
	})

	serve(r, "GET", "/traced", "")
	if !sawSpan {
		t.Error("handler context carries no span")
	}
	if len(recorder.Ended()) != 1 {
		t.Errorf("expected 1 ended span, got %d", len(recorder.Ended()))
	}
}
