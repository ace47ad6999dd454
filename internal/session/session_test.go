package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/coinsight-go/internal/analysis"
	"github.com/irfndi/coinsight-go/internal/assets"
	"github.com/irfndi/coinsight-go/internal/models"
)

func TestContext_SignInAndOut(t *testing.T) {
	c := NewContext()
	assert.Nil(t, c.Current())
	assert.False(t, c.SignedIn())

	var events []models.AuthEvent
	unsubscribe := c.Subscribe(func(ev models.AuthEvent, _ models.Session) { events = append(events, ev) })

	c.Apply(models.AuthEventSignedIn, models.Session{UserID: "u1", Email: "a@example.com"})
	require.True(t, c.SignedIn())
	assert.Equal(t, "u1", c.Current().UserID)

	current := c.Current()
	current.UserID = "tampered"
	assert.Equal(t, "u1", c.Current().UserID)

	c.Apply(models.AuthEventSignedOut, models.Session{UserID: "someone-else"})
	assert.True(t, c.SignedIn())

	c.Apply(models.AuthEventSignedOut, models.Session{UserID: "u1"})
	assert.False(t, c.SignedIn())

	unsubscribe()
	unsubscribe()
	c.Apply(models.AuthEventSignedIn, models.Session{UserID: "u2"})

	assert.Equal(t, []models.AuthEvent{
		models.AuthEventSignedIn,
		models.AuthEventSignedOut,
		models.AuthEventSignedOut,
	}, events)
}

func TestContext_TracksEachUser(t *testing.T) {
	c := NewContext()
	c.Apply(models.AuthEventSignedIn, models.Session{UserID: "u1"})
	c.Apply(models.AuthEventSignedIn, models.Session{UserID: "u2"})

	assert.Equal(t, 2, c.Count())
	assert.Equal(t, "u2", c.Current().UserID)
	s, ok := c.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, "u1", s.UserID)

	c.Apply(models.AuthEventSignedOut, models.Session{UserID: "u1"})
	_, ok = c.Lookup("u1")
	assert.False(t, ok)
	assert.Equal(t, "u2", c.Current().UserID)

	c.Apply(models.AuthEventSignedOut, models.Session{UserID: "u2"})
	assert.Nil(t, c.Current())
	assert.Zero(t, c.Count())
}

func TestContext_Prune(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewContext()
	c.Apply(models.AuthEventSignedIn, models.Session{UserID: "expired", ExpiresAt: now.Add(-time.Minute)})
	c.Apply(models.AuthEventSignedIn, models.Session{UserID: "at-expiry", ExpiresAt: now})
	c.Apply(models.AuthEventSignedIn, models.Session{UserID: "live", ExpiresAt: now.Add(time.Hour)})
	c.Apply(models.AuthEventSignedIn, models.Session{UserID: "no-expiry"})

	var signedOut []string
	c.Subscribe(func(ev models.AuthEvent, s models.Session) {
		if ev == models.AuthEventSignedOut {
			signedOut = append(signedOut, s.UserID)
		}
	})

	assert.Equal(t, 2, c.Prune(now))
	assert.ElementsMatch(t, []string{"expired", "at-expiry"}, signedOut)
	assert.Equal(t, 2, c.Count())
	assert.Equal(t, "no-expiry", c.Current().UserID)
	assert.Zero(t, c.Prune(now))
}

func blockingPacer(ctx context.Context, _ int) error {
	<-ctx.Done()
	return ctx.Err()
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	catalog := assets.MustDefaultCatalog()
	m := NewManager(analysis.WorkflowDeps{
		Catalog: catalog,
		Builder: analysis.NewSynthesizer(analysis.NewSeededRandomProvider(catalog, 1, 2)),
		Options: []analysis.SequencerOption{analysis.WithPacer(blockingPacer)},
	})
	t.Cleanup(m.Close)
	return m
}

func TestManager_OneWorkflowPerUser(t *testing.T) {
	m := newTestManager(t)

	a := m.Workflow("u1")
	require.NotNil(t, a)
	assert.Same(t, a, m.Workflow("u1"))
	assert.NotSame(t, a, m.Workflow("u2"))
	assert.Equal(t, 2, m.Active())

	_, ok := m.Lookup("u3")
	assert.False(t, ok)
}

func TestManager_SignOutTearsDownWorkflow(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	w := m.Workflow("u1")
	btc, ok := assets.MustDefaultCatalog().Lookup("BTCUSDT")
	require.True(t, ok)
	w.Selector().Select(btc)
	_, err := w.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, analysis.StateRunning, w.Status().State)

	m.HandleAuthEvent(models.AuthEventSignedIn, models.Session{UserID: "u1"})
	assert.Equal(t, 1, m.Active())

	m.HandleAuthEvent(models.AuthEventSignedOut, models.Session{UserID: "u1"})
	assert.Equal(t, 0, m.Active())
	assert.Equal(t, analysis.StateIdle, w.Status().State)

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, err = w.Wait(waitCtx)
	assert.ErrorIs(t, err, analysis.ErrRunCancelled)

	fresh := m.Workflow("u1")
	assert.NotSame(t, w, fresh)
	assert.Nil(t, fresh.Params().Snapshot().Asset)
}

func TestManager_Close(t *testing.T) {
	m := newTestManager(t)
	m.Workflow("u1")
	m.Close()

	assert.Equal(t, 0, m.Active())
	assert.Nil(t, m.Workflow("u2"))
}

func TestManager_WiredToContext(t *testing.T) {
	m := newTestManager(t)
	c := NewContext()
	c.Subscribe(m.HandleAuthEvent)

	c.Apply(models.AuthEventSignedIn, models.Session{UserID: "u1"})
	m.Workflow("u1")
	c.Apply(models.AuthEventSignedOut, models.Session{UserID: "u1"})

	_, ok := m.Lookup("u1")
	assert.False(t, ok)
}
