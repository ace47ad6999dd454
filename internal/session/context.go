// Package session holds who is signed in and the per-user analysis
// workflows that live for the length of a sign-in.
package session

import (
	"sync"
	"time"

	"github.com/irfndi/coinsight-go/internal/models"
)

// Context is the explicit holder of signed-in sessions. Observers learn
// about sign-in changes through Subscribe instead of polling a global.
// Current is the most recent sign-in that is still active.
type Context struct {
	mu        sync.RWMutex
	sessions  map[string]models.Session
	currentID string

	subMu       sync.RWMutex
	subscribers map[uint64]func(models.AuthEvent, models.Session)
	nextSubID   uint64
}

func NewContext() *Context {
	return &Context{
		sessions:    make(map[string]models.Session),
		subscribers: make(map[uint64]func(models.AuthEvent, models.Session)),
	}
}

// Current returns a copy of the latest active session, or nil when that
// user has signed out.
func (c *Context) Current() *models.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[c.currentID]
	if !ok {
		return nil
	}
	return &s
}

// SignedIn reports whether a current session is active.
func (c *Context) SignedIn() bool {
	return c.Current() != nil
}

// Lookup returns userID's session if it is signed in.
func (c *Context) Lookup(userID string) (models.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[userID]
	return s, ok
}

// Count is the number of signed-in users.
func (c *Context) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// Apply records an auth event and forwards it to subscribers. A SIGNED_OUT
// only removes the session of the user it names.
func (c *Context) Apply(event models.AuthEvent, s models.Session) {
	c.mu.Lock()
	switch event {
	case models.AuthEventSignedIn:
		c.sessions[s.UserID] = s
		c.currentID = s.UserID
	case models.AuthEventSignedOut:
		delete(c.sessions, s.UserID)
	}
	c.mu.Unlock()

	c.notify(event, s)
}

func (c *Context) notify(event models.AuthEvent, s models.Session) {
	c.subMu.RLock()
	fns := make([]func(models.AuthEvent, models.Session), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		fns = append(fns, fn)
	}
	c.subMu.RUnlock()

	for _, fn := range fns {
		fn(event, s)
	}
}

// Prune signs out every session that expired before now and returns how
// many were removed. Sessions without an expiry never expire.
func (c *Context) Prune(now time.Time) int {
	c.mu.Lock()
	var expired []models.Session
	for id, s := range c.sessions {
		if !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt) {
			expired = append(expired, s)
			delete(c.sessions, id)
		}
	}
	c.mu.Unlock()

	for _, s := range expired {
		c.notify(models.AuthEventSignedOut, s)
	}
	return len(expired)
}

// Subscribe registers fn for every applied event. The returned function
// removes it and may be called more than once.
func (c *Context) Subscribe(fn func(models.AuthEvent, models.Session)) func() {
	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subscribers, id)
			c.subMu.Unlock()
		})
	}
}
