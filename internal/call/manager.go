package call

import (
	"context"
	"sync"
	"time"

	"medvoice/internal/consultation"
)

// endedRetention is how long an ended controller stays around so its outcome can be re-read.
// Controllers that never left idle are dropped after the same period.
const endedRetention = 5 * time.Minute

// Manager keeps one controller per session id.
type Manager struct {
	deps Deps

	mu          sync.Mutex
	controllers map[string]*Controller
	now         func() time.Time
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, controllers: map[string]*Controller{}, now: time.Now}
}

// Controller loads the owner's session and returns its controller, creating one if needed.
func (m *Manager) Controller(ctx context.Context, ownerEmail, sessionID string) (*Controller, error) {
	sess, err := m.deps.Sessions.Get(ctx, ownerEmail, sessionID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	if c, ok := m.controllers[sessionID]; ok {
		return c, nil
	}
	c := m.newLocked(*sess)
	return c, nil
}

// Existing loads the owner's session and returns its controller if one is already running.
// It never creates one.
func (m *Manager) Existing(ctx context.Context, ownerEmail, sessionID string) (*Controller, bool, error) {
	if _, err := m.deps.Sessions.Get(ctx, ownerEmail, sessionID); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	c, ok := m.controllers[sessionID]
	return c, ok, nil
}

// Fresh replaces an ended controller so the session can be called again.
func (m *Manager) Fresh(ctx context.Context, ownerEmail, sessionID string) (*Controller, error) {
	c, err := m.Controller(ctx, ownerEmail, sessionID)
	if err != nil {
		return nil, err
	}
	if c.State() != StateEnded {
		return c, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cur := m.controllers[sessionID]; cur != c {
		return cur, nil
	}
	return m.newLocked(c.session), nil
}

// Lookup finds an existing controller without an ownership check; used by the webhook.
func (m *Manager) Lookup(sessionID string) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.controllers[sessionID]
	return c, ok
}

// Dispatch routes a webhook event to its controller. It reports whether one was found.
func (m *Manager) Dispatch(sessionID string, ev Event) bool {
	c, ok := m.Lookup(sessionID)
	if !ok {
		return false
	}
	c.HandleEvent(ev)
	return true
}

// CloseAll tears down every open call, used on shutdown.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	open := make([]*Controller, 0, len(m.controllers))
	for _, c := range m.controllers {
		open = append(open, c)
	}
	m.mu.Unlock()

	for _, c := range open {
		c.Close(ctx)
	}
}

func (m *Manager) newLocked(sess consultation.Session) *Controller {
	c := NewController(sess, m.deps)
	c.createdAt = m.now()
	m.controllers[sess.SessionID] = c
	return c
}

func (m *Manager) sweepLocked() {
	cutoff := m.now().Add(-endedRetention)
	for id, c := range m.controllers {
		if at, ended := c.endedSince(); ended && at.Before(cutoff) {
			delete(m.controllers, id)
			continue
		}
		if at, idle := c.idleSince(); idle && at.Before(cutoff) {
			delete(m.controllers, id)
		}
	}
}
