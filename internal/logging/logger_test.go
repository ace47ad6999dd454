package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/embedded"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNewStandardLogger_Basic(t *testing.T) {
	logger := NewStandardLogger("info", "test")
	assert.NotNil(t, logger)
	assert.NotNil(t, logger.Logger())
	assert.NoError(t, logger.Shutdown(context.Background()))
}

func TestNewStandardLogger_LogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newStandardLogger(&buf, "warn", "")

	logger.Logger().Info("hidden")
	assert.Empty(t, buf.String())

	logger.Logger().Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestStandardLogger_ContextHelpers(t *testing.T) {
	tests := []struct {
		name  string
		build func(l *StandardLogger) *slog.Logger
		key   string
		value string
	}{
		{"service", func(l *StandardLogger) *slog.Logger { return l.WithService("api") }, "service", "api"},
		{"component", func(l *StandardLogger) *slog.Logger { return l.WithComponent("sequencer") }, "component", "sequencer"},
		{"operation", func(l *StandardLogger) *slog.Logger { return l.WithOperation("start") }, "operation", "start"},
		{"request", func(l *StandardLogger) *slog.Logger { return l.WithRequestID("req-1") }, "request_id", "req-1"},
		{"user", func(l *StandardLogger) *slog.Logger { return l.WithUserID("user-1") }, "user_id", "user-1"},
		{"symbol", func(l *StandardLogger) *slog.Logger { return l.WithSymbol("BTCUSDT") }, "symbol", "BTCUSDT"},
		{"run", func(l *StandardLogger) *slog.Logger { return l.WithRunID("run-1") }, "run_id", "run-1"},
		{"error", func(l *StandardLogger) *slog.Logger { return l.WithError(errors.New("boom")) }, "error", "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newStandardLogger(&buf, "debug", "test")
			tt.build(logger).Info("message")

			entry := decodeLine(t, &buf)
			assert.Equal(t, tt.value, entry[tt.key])
			assert.Equal(t, "test", entry["environment"])
		})
	}
}

func TestStandardLogger_WithNilError(t *testing.T) {
	logger := NewStandardLogger("info", "")
	assert.Same(t, logger.Logger(), logger.WithError(nil))
}

func TestStandardLogger_LogStartup(t *testing.T) {
	var buf bytes.Buffer
	logger := newStandardLogger(&buf, "info", "")
	logger.LogStartup("coinsight", "1.0.0", 8080)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "startup", entry["event"])
	assert.Equal(t, "coinsight", entry["service"])
	assert.Equal(t, float64(8080), entry["port"])
}

func TestStandardLogger_LogShutdown(t *testing.T) {
	var buf bytes.Buffer
	logger := newStandardLogger(&buf, "info", "")
	logger.LogShutdown("coinsight", "signal")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "shutdown", entry["event"])
	assert.Equal(t, "signal", entry["reason"])
}

func TestStandardLogger_LogAPIRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := newStandardLogger(&buf, "info", "")
	logger.LogAPIRequest("GET", "/api/v1/assets", 200, 12, "user-1")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "api", entry["event"])
	assert.Equal(t, "/api/v1/assets", entry["path"])
	assert.Equal(t, float64(200), entry["status"])
}

func TestStandardLogger_LogDatabaseOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := newStandardLogger(&buf, "info", "")
	logger.LogDatabaseOperation("insert", "analysis_history", 3, 1)
	assert.Empty(t, buf.String(), "database operations log at debug")

	logger = newStandardLogger(&buf, "debug", "")
	logger.LogDatabaseOperation("insert", "analysis_history", 3, 1)
	entry := decodeLine(t, &buf)
	assert.Equal(t, "analysis_history", entry["table"])
}

func TestStandardLogger_LogAnalysisRun(t *testing.T) {
	var buf bytes.Buffer
	logger := newStandardLogger(&buf, "info", "")
	logger.LogAnalysisRun("run-1", "user-1", "BTCUSDT", "4h", "done", 6400)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "analysis", entry["event"])
	assert.Equal(t, "done", entry["outcome"])
	assert.Equal(t, "4h", entry["granularity"])
}

func TestStandardLogger_LogAuthEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := newStandardLogger(&buf, "info", "")
	logger.LogAuthEvent("SIGNED_IN", "user-1")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "SIGNED_IN", entry["auth_event"])
}

func TestStandardLogger_LogBusinessEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := newStandardLogger(&buf, "info", "")
	logger.LogBusinessEvent("checkout_created", map[string]interface{}{"plan": "pro"})

	entry := decodeLine(t, &buf)
	assert.Equal(t, "checkout_created", entry["event_type"])
	assert.Equal(t, "pro", entry["plan"])
}

func TestNewOTLPLogger_Disabled(t *testing.T) {
	logger, err := NewOTLPLogger(OTLPConfig{Enabled: false, LogLevel: "info"})
	require.NoError(t, err)
	assert.NotNil(t, logger.Logger())
	assert.NoError(t, logger.Shutdown(context.Background()))
}

func TestNewStandardOTLPLogger_Disabled(t *testing.T) {
	logger := NewStandardOTLPLogger(OTLPConfig{Enabled: false, ServiceName: "coinsight"})
	require.NotNil(t, logger)
	assert.NoError(t, logger.Shutdown(context.Background()))
}

type recordingLogger struct {
	embedded.Logger
	records []otellog.Record
}

func (r *recordingLogger) Emit(_ context.Context, record otellog.Record) {
	r.records = append(r.records, record)
}

func (r *recordingLogger) Enabled(context.Context, otellog.EnabledParameters) bool {
	return true
}

func TestOTLPHandler_EmitsRecordsWithAttributes(t *testing.T) {
	rec := &recordingLogger{}
	logger := slog.New(NewOTLPHandler(rec, slog.LevelInfo)).With("component", "sequencer")

	logger.Debug("dropped")
	logger.WithGroup("run").Warn("stage completed", "index", 3, "done", false)

	require.Len(t, rec.records, 1)
	record := rec.records[0]
	assert.Equal(t, "stage completed", record.Body().AsString())
	assert.Equal(t, otellog.SeverityWarn, record.Severity())

	attrs := map[string]otellog.Value{}
	record.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value
		return true
	})
	assert.Equal(t, "sequencer", attrs["component"].AsString())
	assert.Equal(t, int64(3), attrs["run.index"].AsInt64())
	assert.False(t, attrs["run.done"].AsBool())
}

func TestConvertSlogLevelToSeverity(t *testing.T) {
	assert.Equal(t, otellog.SeverityDebug, convertSlogLevelToSeverity(slog.LevelDebug))
	assert.Equal(t, otellog.SeverityInfo, convertSlogLevelToSeverity(slog.LevelInfo))
	assert.Equal(t, otellog.SeverityWarn, convertSlogLevelToSeverity(slog.LevelWarn))
	assert.Equal(t, otellog.SeverityError, convertSlogLevelToSeverity(slog.LevelError+4))
}

func TestParseLogrusLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"WARN", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"info", logrus.InfoLevel},
		{"bogus", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLogrusLevel(tt.input))
		})
	}
}

func TestNewLogrus(t *testing.T) {
	logger := NewLogrus("debug")
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}
