// Package fleet owns the authenticated Geotab session and the operations the
// hold engine performs with it: resolving which vehicles are inside a site's
// zone and sending text messages to their in-cab devices.
package fleet

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"clearskies/internal/external"
	"clearskies/internal/types"

	"golang.org/x/sync/singleflight"
)

// Authentication results reported to Metrics.
const (
	AuthResultSuccess     = "success"
	AuthResultFailure     = "failure"
	AuthResultConfigError = "config_error"
)

// Metrics receives session manager instrumentation.
type Metrics interface {
	RecordAuthentication(result string)
}

type noopMetrics struct{}

func (noopMetrics) RecordAuthentication(string) {}

// SessionManagerConfig holds the configuration for creating a SessionManager.
type SessionManagerConfig struct {
	Credentials types.FleetCredentials
	Logger      *slog.Logger
	Metrics     Metrics
}

// SessionManager caches the single Geotab session used by the process.
//
// Concurrent callers that find the session missing or rejected share one
// in-flight authentication; at most one login request is outstanding at any
// time and every waiter receives its result. There is no background refresh:
// a failed login is retried on the next call that needs a session.
type SessionManager struct {
	api     external.FleetAPI
	creds   types.FleetCredentials
	logger  *slog.Logger
	metrics Metrics

	mu      sync.Mutex
	current *types.Session

	flight singleflight.Group
}

// NewSessionManager creates a SessionManager. No login happens until the
// first call that needs a session.
func NewSessionManager(api external.FleetAPI, cfg SessionManagerConfig) *SessionManager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &SessionManager{
		api:     api,
		creds:   cfg.Credentials,
		logger:  logger,
		metrics: metrics,
	}
}

// Authenticate performs a fresh login, replacing the cached session. If a
// login is already in flight the caller joins it instead of starting another.
func (m *SessionManager) Authenticate(ctx context.Context) (types.Session, error) {
	stale := ""
	if s, ok := m.cached(); ok {
		stale = s.SessionID
	}
	return m.refresh(ctx, stale)
}

// Session returns the cached session, logging in first when none is cached.
func (m *SessionManager) Session(ctx context.Context) (types.Session, error) {
	if s, ok := m.cached(); ok {
		return s, nil
	}
	return m.refresh(ctx, "")
}

// Invalidate drops the cached session if its id is sessionID. A caller
// reporting a failure with an old session cannot discard a newer one.
func (m *SessionManager) Invalidate(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.SessionID == sessionID {
		m.current = nil
	}
}

// Do runs fn with the current session. If fn fails with a session-invalid or
// service-unavailable error, the session is refreshed once and fn is retried
// once; the second outcome is returned as-is.
func (m *SessionManager) Do(ctx context.Context, fn func(ctx context.Context, sess types.Session) error) error {
	sess, err := m.Session(ctx)
	if err != nil {
		return err
	}

	err = fn(ctx, sess)
	if err == nil || !types.IsSessionRetryable(err) {
		return err
	}

	m.logger.WarnContext(ctx, "geotab session rejected, re-authenticating once",
		"error", err,
		"server", sess.Server,
	)
	m.Invalidate(sess.SessionID)

	fresh, authErr := m.refresh(ctx, sess.SessionID)
	if authErr != nil {
		return authErr
	}
	return fn(ctx, fresh)
}

func (m *SessionManager) cached() (types.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return types.Session{}, false
	}
	return *m.current, true
}

// refresh logs in unless the cached session has already moved on from
// stale, in which case the newer session is returned without a login.
func (m *SessionManager) refresh(ctx context.Context, stale string) (types.Session, error) {
	v, err, _ := m.flight.Do("authenticate", func() (any, error) {
		if s, ok := m.cached(); ok && s.SessionID != stale {
			return s, nil
		}
		// The login is shared by every waiter, so it must not be cut short
		// by whichever caller happened to start it.
		return m.login(context.WithoutCancel(ctx))
	})
	if err != nil {
		return types.Session{}, err
	}
	return v.(types.Session), nil
}

func (m *SessionManager) login(ctx context.Context) (types.Session, error) {
	if missing := m.creds.Missing(); len(missing) > 0 {
		m.metrics.RecordAuthentication(AuthResultConfigError)
		err := types.NewAppErrorWithDetails(types.ErrCodeConfigMissingCredentials,
			"fleet credentials are not configured: "+strings.Join(missing, ", "), nil,
			map[string]any{"missing": missing})
		m.logger.ErrorContext(ctx, "geotab authentication skipped", "error", err)
		return types.Session{}, err
	}

	sess, err := m.api.Authenticate(ctx, m.creds)
	if err != nil {
		m.metrics.RecordAuthentication(AuthResultFailure)
		m.logger.ErrorContext(ctx, "geotab authentication failed",
			"error", err,
			"database", m.creds.Database,
		)
		return types.Session{}, err
	}

	m.mu.Lock()
	m.current = &sess
	m.mu.Unlock()

	m.metrics.RecordAuthentication(AuthResultSuccess)
	m.logger.InfoContext(ctx, "geotab authenticated",
		"user", sess.UserName,
		"server", sess.Server,
		"database", sess.Database,
	)
	return sess, nil
}
