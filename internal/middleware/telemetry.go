package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/coinsight-go/internal/logging"
	"github.com/irfndi/coinsight-go/internal/metrics"
)

// quietPaths are measured but not logged.
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// RequestTelemetry records each request in Prometheus, annotates the span
// opened by otelgin and writes an access log line. Either dependency may be
// nil.
func RequestTelemetry(logger *logging.StandardLogger, registry *metrics.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		userID := UserID(c)

		if registry != nil {
			registry.ObserveRequest(c.Request.Method, route, strconv.Itoa(status), elapsed)
		}

		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			if userID != "" {
				span.SetAttributes(attribute.String("user.id", userID))
			}
			if status >= 500 {
				span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
			}
		}

		if logger != nil && !quietPaths[c.Request.URL.Path] {
			logger.LogAPIRequest(c.Request.Method, route, status, elapsed.Milliseconds(), userID)
		}
	}
}

// RecordError records an error on the current span.
func RecordError(c *gin.Context, err error, description string) {
	span := trace.SpanFromContext(c.Request.Context())
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, description)
	}
}

// AddSpanAttribute adds an attribute to the current span.
func AddSpanAttribute(c *gin.Context, key string, value interface{}) {
	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		return
	}
	switch v := value.(type) {
	case string:
		span.SetAttributes(attribute.String(key, v))
	case int:
		span.SetAttributes(attribute.Int(key, v))
	case int64:
		span.SetAttributes(attribute.Int64(key, v))
	case float64:
		span.SetAttributes(attribute.Float64(key, v))
	case bool:
		span.SetAttributes(attribute.Bool(key, v))
	default:
		span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", value)))
	}
}
