package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"discobase/internal/core"
)

// SessionState is the lifecycle state of one user's playback session.
type SessionState string

const (
	StateDisconnected SessionState = "disconnected"
	StateConnecting   SessionState = "connecting"
	StateReady        SessionState = "ready"
	StatePlaying      SessionState = "playing"
	StatePaused       SessionState = "paused"
)

// Session drives playback for a single authenticated user. It owns an
// embedded player registered with Spotify as its own device, reconciles that
// player's push events with polled remote state, and routes every control
// command to whichever device actually hosts playback.
type Session struct {
	username  string
	config    *core.PlaybackConfig
	spotify   core.SpotifyClient
	refresher core.TokenRefresher
	auths     core.AuthStore
	local     core.LocalPlayer
	logger    *zap.Logger

	mu       sync.Mutex
	state    SessionState
	auth     *core.SpotifyAuth
	playback *core.PlaybackState
	inflight map[string]bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSession(config *core.PlaybackConfig, username string, auth *core.SpotifyAuth,
	spotify core.SpotifyClient, refresher core.TokenRefresher, auths core.AuthStore,
	local core.LocalPlayer, logger *zap.Logger) *Session {
	return &Session{
		username:  username,
		config:    config,
		spotify:   spotify,
		refresher: refresher,
		auths:     auths,
		local:     local,
		logger:    logger.Named("session").With(zap.String("username", username)),
		state:     StateDisconnected,
		auth:      auth,
		inflight:  make(map[string]bool),
	}
}

// Connect establishes the embedded playback session and starts the
// reconciliation loop. The session moves Disconnected -> Connecting -> Ready;
// a failure at any step leaves it Disconnected.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("session already connected (state %s)", s.state)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	s.logger.Info("Connecting playback session")

	auth, err := s.EnsureFresh(ctx)
	if err != nil {
		s.setState(StateDisconnected)
		return err
	}

	if err := s.local.Connect(ctx, auth); err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("embedded player connect: %w", err)
	}

	// The embedded player knows nothing about playback already happening on
	// another device, so seed from the remote API before going Ready.
	remote, err := s.spotify.PlayerState(ctx, auth)
	if err != nil {
		s.logger.Debug("Could not seed initial playback state", zap.Error(err))
	}

	s.mu.Lock()
	s.playback = remote
	s.state = stateFor(remote)
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx)

	s.logger.Info("Playback session connected",
		zap.String("deviceID", s.local.DeviceID()),
		zap.String("state", string(s.State())))
	return nil
}

// Disconnect tears down the embedded player and stops polling. Safe to call
// on an already-disconnected session.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	s.local.Disconnect()
	s.logger.Info("Playback session disconnected")
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PlaybackState returns the last reconciled playback snapshot, nil when
// nothing is known to be playing.
func (s *Session) PlaybackState() *core.PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playback == nil {
		return nil
	}
	snapshot := *s.playback
	return &snapshot
}

// Username returns the profile this session belongs to.
func (s *Session) Username() string {
	return s.username
}

// Local returns the embedded player backing this session.
func (s *Session) Local() core.LocalPlayer {
	return s.local
}

// EnsureFresh returns credentials guaranteed to outlive the next command.
// A token inside the expiry buffer is refreshed and persisted first; a failed
// refresh surfaces ErrAuthExpired and the caller must treat the session as
// unusable until the user re-authenticates.
func (s *Session) EnsureFresh(ctx context.Context) (*core.SpotifyAuth, error) {
	s.mu.Lock()
	auth := s.auth
	s.mu.Unlock()

	if !auth.Valid() {
		return nil, core.ErrNotAuthenticated
	}
	if !auth.ExpiresWithin(s.config.RefreshBuffer) {
		return auth, nil
	}

	s.logger.Debug("Access token near expiry, refreshing",
		zap.Time("expiresAt", auth.ExpiresAt))

	fresh, err := s.refresher.Refresh(ctx, auth)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrAuthExpired, err)
	}
	if err := s.auths.SaveAuth(s.username, fresh); err != nil {
		s.logger.Warn("Failed to persist refreshed credentials", zap.Error(err))
	}

	s.mu.Lock()
	s.auth = fresh
	s.mu.Unlock()

	// The embedded player holds its own copy of the credentials.
	if updater, ok := s.local.(interface{ UpdateAuth(*core.SpotifyAuth) }); ok {
		updater.UpdateAuth(fresh)
	}
	return fresh, nil
}

// PlayAlbum starts an album context on the given device, or on whatever
// device is currently active when deviceID is empty.
func (s *Session) PlayAlbum(ctx context.Context, contextURI, deviceID string) error {
	return s.command(ctx, "play_album", func(auth *core.SpotifyAuth) error {
		if err := s.spotify.Play(ctx, auth, contextURI, deviceID); err != nil {
			return &core.PlaybackCommandError{Command: "play", Err: err}
		}
		s.refreshRemote(ctx, auth)
		return nil
	})
}

// Resume continues paused playback on the active device.
func (s *Session) Resume(ctx context.Context) error {
	return s.routedCommand(ctx, "resume",
		func(a *core.SpotifyAuth, deviceID string) error { return s.spotify.Play(ctx, a, "", deviceID) },
		func() error { return s.local.Play(ctx) })
}

// Pause halts playback on the active device.
func (s *Session) Pause(ctx context.Context) error {
	return s.routedCommand(ctx, "pause",
		func(a *core.SpotifyAuth, deviceID string) error { return s.spotify.Pause(ctx, a, deviceID) },
		func() error { return s.local.Pause(ctx) })
}

// Next skips to the next track on the active device.
func (s *Session) Next(ctx context.Context) error {
	return s.routedCommand(ctx, "next",
		func(a *core.SpotifyAuth, deviceID string) error { return s.spotify.Next(ctx, a, deviceID) },
		func() error { return s.local.Next(ctx) })
}

// Previous skips to the previous track on the active device.
func (s *Session) Previous(ctx context.Context) error {
	return s.routedCommand(ctx, "previous",
		func(a *core.SpotifyAuth, deviceID string) error { return s.spotify.Previous(ctx, a, deviceID) },
		func() error { return s.local.Previous(ctx) })
}

// Seek jumps to a position within the current track on the active device.
func (s *Session) Seek(ctx context.Context, positionMs int) error {
	return s.routedCommand(ctx, "seek",
		func(a *core.SpotifyAuth, deviceID string) error { return s.spotify.Seek(ctx, a, positionMs, deviceID) },
		func() error { return s.local.Seek(ctx, positionMs) })
}

// routedCommand dispatches a control action against the device hosting
// playback: through the embedded player when playback is local, otherwise
// through the Web API scoped to the active device. Commanding the embedded
// session while playback runs elsewhere would silently do nothing.
func (s *Session) routedCommand(ctx context.Context, name string,
	remote func(auth *core.SpotifyAuth, deviceID string) error, local func() error) error {
	return s.command(ctx, name, func(auth *core.SpotifyAuth) error {
		s.mu.Lock()
		activeDevice := ""
		if s.playback != nil {
			activeDevice = s.playback.DeviceID
		}
		s.mu.Unlock()

		if activeDevice != "" && activeDevice == s.local.DeviceID() {
			s.logger.Debug("Dispatching command to embedded player", zap.String("command", name))
			if err := local(); err != nil {
				return &core.PlaybackCommandError{Command: name, Err: err}
			}
			return nil
		}

		s.logger.Debug("Dispatching command to remote device",
			zap.String("command", name),
			zap.String("deviceID", activeDevice))
		if err := remote(auth, activeDevice); err != nil {
			return &core.PlaybackCommandError{Command: name, Err: err}
		}
		s.refreshRemote(ctx, auth)
		return nil
	})
}

// command wraps every control action with the in-flight guard and the token
// freshness check. A duplicate of an action still in flight is dropped rather
// than issued twice.
func (s *Session) command(ctx context.Context, name string, fn func(auth *core.SpotifyAuth) error) error {
	s.mu.Lock()
	if s.state == StateDisconnected || s.state == StateConnecting {
		s.mu.Unlock()
		return fmt.Errorf("playback session not ready (state %s)", s.state)
	}
	if s.inflight[name] {
		s.mu.Unlock()
		s.logger.Debug("Dropping duplicate in-flight command", zap.String("command", name))
		return nil
	}
	s.inflight[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inflight, name)
		s.mu.Unlock()
	}()

	auth, err := s.EnsureFresh(ctx)
	if err != nil {
		if errors.Is(err, core.ErrAuthExpired) || errors.Is(err, core.ErrNotAuthenticated) {
			s.logger.Warn("Credentials unusable, session must reconnect", zap.Error(err))
		}
		return err
	}
	return fn(auth)
}

// run is the reconciliation loop: embedded-player push events cover activity
// on this device, the poll ticker covers playback happening anywhere else.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	authFailures := 0
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Playback reconciliation loop stopped")
			return
		case state, ok := <-s.local.StateChanges():
			if !ok {
				return
			}
			s.applyState(&state)
		case <-ticker.C:
			if s.localIsActive() {
				// Push events already cover the embedded player.
				continue
			}
			auth, err := s.EnsureFresh(ctx)
			if err != nil {
				if errors.Is(err, core.ErrAuthExpired) || errors.Is(err, core.ErrNotAuthenticated) {
					authFailures++
					if authFailures >= s.config.MaxPollAuthFailures {
						s.logger.Warn("Stopping playback polling after repeated auth failures",
							zap.Int("failures", authFailures))
						go s.Disconnect()
						return
					}
				}
				continue
			}
			authFailures = 0

			remote, err := s.spotify.PlayerState(ctx, auth)
			if err != nil {
				// Transient poll errors never disturb the session.
				s.logger.Debug("Remote state poll failed", zap.Error(err))
				continue
			}
			s.applyState(remote)
		}
	}
}

func (s *Session) localIsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playback != nil && s.playback.DeviceID != "" &&
		s.playback.DeviceID == s.local.DeviceID()
}

// refreshRemote re-fetches remote state right after a command so the UI does
// not wait a full poll interval to catch up.
func (s *Session) refreshRemote(ctx context.Context, auth *core.SpotifyAuth) {
	remote, err := s.spotify.PlayerState(ctx, auth)
	if err != nil {
		s.logger.Debug("Post-command state fetch failed", zap.Error(err))
		return
	}
	s.applyState(remote)
}

func (s *Session) applyState(state *core.PlaybackState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected || s.state == StateConnecting {
		return
	}
	s.playback = state
	s.state = stateFor(state)
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func stateFor(playback *core.PlaybackState) SessionState {
	switch {
	case playback == nil:
		return StateReady
	case playback.Playing:
		return StatePlaying
	default:
		return StatePaused
	}
}
