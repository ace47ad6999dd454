package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/irfndi/coinsight-go/internal/logging"
	"github.com/irfndi/coinsight-go/internal/metrics"
)

func newTracedRouter(t *testing.T, registry *metrics.Registry) (*gin.Engine, *tracetest.SpanRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	router := gin.New()
	router.Use(otelgin.Middleware("coinsight-test", otelgin.WithTracerProvider(tp)))
	router.Use(func(c *gin.Context) {
		c.Set(ContextUserID, "user-1")
		c.Next()
	})
	router.Use(RequestTelemetry(logging.NewStandardLogger("error", "test"), registry))
	return router, recorder
}

func TestRequestTelemetry(t *testing.T) {
	registry := metrics.NewRegistry()
	router, recorder := newTracedRouter(t, registry)
	router.GET("/api/v1/items/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})
	router.GET("/boom", func(c *gin.Context) {
		RecordError(c, errors.New("kaput"), "handler failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "boom"})
	})

	for _, path := range []string{"/api/v1/items/1", "/api/v1/items/2", "/boom", "/missing"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	// one series per (method, route, status): item route, /boom, unmatched
	assert.Equal(t, 3, testutil.CollectAndCount(registry.RequestDuration, "coinsight_http_request_duration_seconds"))

	spans := recorder.Ended()
	require.Len(t, spans, 4)
	var sawUser, sawError bool
	for _, s := range spans {
		for _, attr := range s.Attributes() {
			if attr.Key == attribute.Key("user.id") && attr.Value.AsString() == "user-1" {
				sawUser = true
			}
		}
		if s.Status().Code == codes.Error {
			sawError = true
		}
	}
	assert.True(t, sawUser)
	assert.True(t, sawError)
}

func TestAddSpanAttribute(t *testing.T) {
	router, recorder := newTracedRouter(t, nil)
	router.GET("/attrs", func(c *gin.Context) {
		AddSpanAttribute(c, "a.string", "x")
		AddSpanAttribute(c, "a.int", 3)
		AddSpanAttribute(c, "a.int64", int64(4))
		AddSpanAttribute(c, "a.float", 1.5)
		AddSpanAttribute(c, "a.bool", true)
		AddSpanAttribute(c, "a.other", []int{1})
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/attrs", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	got := map[attribute.Key]attribute.Value{}
	for _, attr := range spans[0].Attributes() {
		got[attr.Key] = attr.Value
	}
	assert.Equal(t, "x", got["a.string"].AsString())
	assert.Equal(t, int64(3), got["a.int"].AsInt64())
	assert.Equal(t, int64(4), got["a.int64"].AsInt64())
	assert.Equal(t, 1.5, got["a.float"].AsFloat64())
	assert.True(t, got["a.bool"].AsBool())
	assert.Equal(t, "[1]", got["a.other"].AsString())
}
