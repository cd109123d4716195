package solarlog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	loginPath    = "login"
	cookieName   = "SolarLog"
	loginUser    = "user"
	htmlMimeType = "text/html"
)

// Session is an authenticated context on the device. Sessions are never
// modified after login; their expiry is tracked by the Manager.
type Session struct {
	BaseURL    string
	Token      string
	Open       bool // device has no user password, requests go without token
	LoggedInAt time.Time

	generation uint64
}

// Manager owns the login state of one device. Logins are serialized: at
// most one is in flight.
type Manager struct {
	transport *Transport
	password  string
	markers   Markers
	ttl       time.Duration
	now       func() time.Time
	logger    *zap.Logger

	login *semaphore.Weighted

	mu         sync.Mutex
	current    *Session
	expired    bool
	generation uint64
}

func NewManager(transport *Transport, password string, markers Markers, ttl time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.L()
	}
	return &Manager{
		transport: transport,
		password:  password,
		markers:   markers,
		ttl:       ttl,
		now:       time.Now,
		logger:    logger,
		login:     semaphore.NewWeighted(1),
	}
}

// Login authenticates with one round trip and replaces the current session.
func (m *Manager) Login(ctx context.Context) (*Session, error) {
	if err := m.login.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer m.login.Release(1)
	return m.doLogin(ctx)
}

// EnsureValid returns the current session, logging in first when there is
// none or it went stale. Concurrent callers share a single login.
func (m *Manager) EnsureValid(ctx context.Context) (*Session, error) {
	if s := m.valid(); s != nil {
		return s, nil
	}
	if err := m.login.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer m.login.Release(1)

	// another caller may have logged in while we waited
	if s := m.valid(); s != nil {
		return s, nil
	}
	return m.doLogin(ctx)
}

// Expire marks s as expired. Reports about sessions that have since been
// replaced are ignored.
func (m *Manager) Expire(s *Session) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.generation == s.generation {
		m.logger.Debug("session expired", zap.Uint64("generation", s.generation))
		m.expired = true
	}
}

// Logout drops the current session.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	m.expired = false
}

// Current returns the session without checking its validity.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Check inspects a data answer for the session-expired and busy markers.
func (m *Manager) Check(body []byte) error {
	return m.markers.check(body)
}

func (m *Manager) valid() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.expired {
		return nil
	}
	if m.ttl > 0 && m.now().Sub(m.current.LoggedInAt) >= m.ttl {
		return nil
	}
	return m.current
}

// doLogin must be called with the login semaphore held. The new session is
// only stored once the device accepted it.
func (m *Manager) doLogin(ctx context.Context) (*Session, error) {
	res, err := m.transport.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   loginPath,
		Body:   "u=" + loginUser + "&p=" + url.QueryEscape(m.password),
		Header: http.Header{"Content-Type": {htmlMimeType}},
	})
	if err != nil {
		return nil, fmt.Errorf("solarlog: login: %w", err)
	}

	session := &Session{
		BaseURL:    m.transport.baseURL.String(),
		LoggedInAt: m.now(),
	}
	switch {
	case hasMarker(res.Body, m.markers.WrongPassword):
		return nil, fmt.Errorf("%w: password rejected", ErrAuth)
	case hasMarker(res.Body, m.markers.NoPassword):
		session.Open = true
		m.logger.Info("device has no user password, continuing without session token")
	case hasMarker(res.Body, m.markers.LoginSuccess):
		token, err := sessionToken(res.Cookies)
		if err != nil {
			return nil, err
		}
		session.Token = token
	default:
		return nil, fmt.Errorf("%w: login answer %q", ErrUnexpectedResponse, truncate(res.Body, 64))
	}

	m.mu.Lock()
	m.generation++
	session.generation = m.generation
	m.current = session
	m.expired = false
	m.mu.Unlock()

	m.logger.Debug("login successful", zap.Bool("open", session.Open), zap.Uint64("generation", session.generation))
	return session, nil
}

func sessionToken(cookies []*http.Cookie) (string, error) {
	for _, c := range cookies {
		if c.Name == cookieName && c.Value != "" {
			return c.Value, nil
		}
	}
	return "", errors.Join(ErrUnexpectedResponse, fmt.Errorf("solarlog: login succeeded without %s cookie", cookieName))
}

func hasMarker(body []byte, markers []string) bool {
	_, ok := containsAny(body, markers)
	return ok
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
