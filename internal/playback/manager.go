package playback

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"discobase/internal/core"
)

// LocalPlayerFactory builds a fresh embedded player for each session. The
// HTTP layer supplies a factory backed by the browser playback bridge.
type LocalPlayerFactory func() core.LocalPlayer

// Manager owns the single active playback session. Activating a different
// profile tears the previous session down first, so no poll timers leak
// across profile switches.
type Manager struct {
	config    *core.PlaybackConfig
	spotify   core.SpotifyClient
	refresher core.TokenRefresher
	profiles  core.ProfileStore
	newLocal  LocalPlayerFactory
	logger    *zap.Logger

	mu     sync.Mutex
	active *Session
}

func NewManager(config *core.PlaybackConfig, spotify core.SpotifyClient,
	refresher core.TokenRefresher, profiles core.ProfileStore,
	newLocal LocalPlayerFactory, logger *zap.Logger) *Manager {
	return &Manager{
		config:    config,
		spotify:   spotify,
		refresher: refresher,
		profiles:  profiles,
		newLocal:  newLocal,
		logger:    logger.Named("playback"),
	}
}

// Activate connects a playback session for the given profile, replacing any
// session belonging to another profile. Activating the already-active profile
// returns the existing session untouched.
func (m *Manager) Activate(ctx context.Context, username string) (*Session, error) {
	m.mu.Lock()
	if m.active != nil && m.active.Username() == username && m.active.State() != StateDisconnected {
		session := m.active
		m.mu.Unlock()
		return session, nil
	}
	previous := m.active
	m.active = nil
	m.mu.Unlock()

	if previous != nil {
		m.logger.Info("Tearing down previous playback session",
			zap.String("username", previous.Username()))
		previous.Disconnect()
	}

	auth, err := m.profiles.GetAuth(username)
	if err != nil {
		return nil, err
	}
	if !auth.Valid() {
		return nil, core.ErrNotAuthenticated
	}

	session := NewSession(m.config, username, auth, m.spotify, m.refresher, m.profiles, m.newLocal(), m.logger)
	if err := session.Connect(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.active = session
	m.mu.Unlock()
	return session, nil
}

// Deactivate disconnects whatever session is active. Called on logout and on
// profile deletion.
func (m *Manager) Deactivate() {
	m.mu.Lock()
	session := m.active
	m.active = nil
	m.mu.Unlock()

	if session != nil {
		session.Disconnect()
	}
}

// Session returns the active session for the given profile, or nil when that
// profile has no connected session.
func (m *Manager) Session(username string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.Username() != username {
		return nil
	}
	return m.active
}
