package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/coinsight-go/internal/config"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (r *eventRecorder) beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return nil
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newRecordingHub(t *testing.T) (*sentry.Hub, *eventRecorder) {
	t.Helper()
	rec := &eventRecorder{}
	client, err := sentry.NewClient(sentry.ClientOptions{BeforeSend: rec.beforeSend})
	require.NoError(t, err)
	return sentry.NewHub(client, sentry.NewScope()), rec
}

func TestEnabled(t *testing.T) {
	assert.False(t, Enabled(config.SentryConfig{}))
	assert.False(t, Enabled(config.SentryConfig{Enabled: true}))
	assert.False(t, Enabled(config.SentryConfig{DSN: "https://key@sentry.example/1"}))
	assert.True(t, Enabled(config.SentryConfig{Enabled: true, DSN: "https://key@sentry.example/1"}))
}

func TestInitSentry_DisabledIsNoop(t *testing.T) {
	assert.NoError(t, InitSentry(config.SentryConfig{Enabled: true}, "1.0.0", "test"))
}

func TestInitSentry_RejectsBadDSN(t *testing.T) {
	err := InitSentry(config.SentryConfig{Enabled: true, DSN: "not a dsn"}, "1.0.0", "test")
	assert.Error(t, err)
}

func TestCaptureException_UsesContextHub(t *testing.T) {
	hub, rec := newRecordingHub(t)
	ctx := sentry.SetHubOnContext(context.Background(), hub)

	CaptureException(ctx, errors.New("boom"))
	CaptureException(ctx, nil)

	assert.Equal(t, 1, rec.count())
}

func TestCaptureRequestError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub, rec := newRecordingHub(t)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("sentry", hub)
		c.Next()
	})
	r.GET("/fail", func(c *gin.Context) {
		c.Set("user_id", "user-1")
		CaptureRequestError(c, errors.New("storage down"))
		c.Status(http.StatusBadGateway)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	require.Equal(t, 1, rec.count())
	assert.Equal(t, "user-1", rec.events[0].User.ID)
	assert.Equal(t, "/fail", rec.events[0].Tags["route"])
}

func TestCaptureRequestError_WithoutHub(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	assert.Nil(t, sentrygin.GetHubFromContext(c))
	assert.NotPanics(t, func() { CaptureRequestError(c, errors.New("ignored")) })
}

func TestFlush_RespectsDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	Flush(ctx)
	assert.Less(t, time.Since(start), time.Second)
}
