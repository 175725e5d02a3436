package session

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shelf-sh/shelf/internal/logger"
	"github.com/shelf-sh/shelf/internal/supabase"
)

const (
	// refreshLead is how long before expiry a refresh is attempted.
	refreshLead = 60 * time.Second
	// retryInterval is the wait after a failed refresh attempt.
	retryInterval = 30 * time.Second
	// minWait keeps the refresh loop from spinning on short-lived or
	// malformed expiry values.
	minWait = 10 * time.Second
)

// Manager owns the current session credential and refreshes it ahead of
// expiry. Registered callbacks run on every successful refresh so the
// REST binding and the change feed subscription follow the token.
type Manager struct {
	client *supabase.Client
	logger logger.Logger

	mu        sync.Mutex
	current   supabase.Session
	callbacks []func(supabase.Session)

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewManager wraps an already-established session. When the provider
// response carried no lifetime, expiry is read from the access token's
// exp claim.
func NewManager(client *supabase.Client, log logger.Logger, initial supabase.Session) *Manager {
	if initial.ExpiresAt.IsZero() || !initial.ExpiresAt.After(time.Now()) {
		if exp, ok := tokenExpiry(initial.AccessToken); ok {
			initial.ExpiresAt = exp
		}
	}

	return &Manager{
		client:  client,
		logger:  log,
		current: initial,
		stopCh:  make(chan struct{}),
	}
}

// Current returns the session credential in effect right now.
func (m *Manager) Current() supabase.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// OnChange registers a callback invoked after every successful refresh.
func (m *Manager) OnChange(fn func(supabase.Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Start runs the refresh loop until the context is cancelled or Stop is
// called.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			wait := time.Until(m.Current().ExpiresAt.Add(-refreshLead))
			if wait < minWait {
				wait = minWait
			}

			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-m.stopCh:
				timer.Stop()
				return
			case <-ctx.Done():
				timer.Stop()
				return
			}

			if !m.refresh() {
				// Keep the old credential and retry shortly; the feed
				// and store keep working until it actually expires.
				m.mu.Lock()
				m.current.ExpiresAt = time.Now().Add(retryInterval + refreshLead)
				m.mu.Unlock()
			}
		}
	}()
}

// Stop terminates the refresh loop.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Manager) refresh() bool {
	sess, err := m.client.Refresh(m.Current().RefreshToken)
	if err != nil {
		m.logger.Error("session refresh failed", logger.Error(err))
		return false
	}

	m.mu.Lock()
	m.current = sess
	callbacks := make([]func(supabase.Session), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	m.logger.Info("session refreshed",
		logger.String("user", sess.UserID),
		logger.Duration("lifetime", time.Until(sess.ExpiresAt)))

	for _, fn := range callbacks {
		fn(sess)
	}
	return true
}

// tokenExpiry reads the exp claim without verifying the signature; the
// backend is the verifier, this side only schedules refreshes.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
