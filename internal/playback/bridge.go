package playback

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"discobase/internal/core"
)

// BridgePlayer adapts the browser-embedded Web Playback SDK player to the
// LocalPlayer interface. The page registers its device ID once the SDK fires
// its ready event and streams player_state_changed events through the REST
// API; commands go back out through the Web API addressed at that device.
type BridgePlayer struct {
	spotify core.SpotifyClient
	logger  *zap.Logger

	mu        sync.Mutex
	connected bool
	auth      *core.SpotifyAuth
	deviceID  string
	changes   chan core.PlaybackState
}

func NewBridgePlayer(spotify core.SpotifyClient, logger *zap.Logger) *BridgePlayer {
	return &BridgePlayer{
		spotify: spotify,
		logger:  logger.Named("bridge"),
	}
}

func (b *BridgePlayer) Connect(_ context.Context, auth *core.SpotifyAuth) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected {
		return fmt.Errorf("bridge player already connected")
	}
	b.connected = true
	b.auth = auth
	b.changes = make(chan core.PlaybackState, 8)
	return nil
}

func (b *BridgePlayer) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return
	}
	b.connected = false
	b.deviceID = ""
	close(b.changes)
	b.changes = nil
}

// RegisterDevice records the SDK device ID reported by the page. Until it is
// called the bridge has no device and every command fails.
func (b *BridgePlayer) RegisterDevice(deviceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deviceID = deviceID
	b.logger.Info("Embedded player registered", zap.String("deviceID", deviceID))
}

func (b *BridgePlayer) DeviceID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deviceID
}

// UpdateAuth hands the bridge rotated tokens so commands keep working past
// the original token's expiry.
func (b *BridgePlayer) UpdateAuth(auth *core.SpotifyAuth) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.auth = auth
}

// PushState forwards a player_state_changed event from the page. Events are
// dropped rather than blocking the HTTP handler when the session is slow.
func (b *BridgePlayer) PushState(state core.PlaybackState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.changes == nil {
		return
	}

	if state.DeviceID == "" {
		state.DeviceID = b.deviceID
	}
	// The send stays inside the critical section: Disconnect closes the
	// channel under the same mutex, and the buffered non-blocking send
	// cannot stall the handler.
	select {
	case b.changes <- state:
	default:
		b.logger.Debug("Dropped player state event")
	}
}

func (b *BridgePlayer) StateChanges() <-chan core.PlaybackState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.changes
}

func (b *BridgePlayer) Play(ctx context.Context) error {
	auth, deviceID, err := b.target()
	if err != nil {
		return err
	}
	return b.spotify.Play(ctx, auth, "", deviceID)
}

func (b *BridgePlayer) Pause(ctx context.Context) error {
	auth, deviceID, err := b.target()
	if err != nil {
		return err
	}
	return b.spotify.Pause(ctx, auth, deviceID)
}

func (b *BridgePlayer) Next(ctx context.Context) error {
	auth, deviceID, err := b.target()
	if err != nil {
		return err
	}
	return b.spotify.Next(ctx, auth, deviceID)
}

func (b *BridgePlayer) Previous(ctx context.Context) error {
	auth, deviceID, err := b.target()
	if err != nil {
		return err
	}
	return b.spotify.Previous(ctx, auth, deviceID)
}

func (b *BridgePlayer) Seek(ctx context.Context, positionMs int) error {
	auth, deviceID, err := b.target()
	if err != nil {
		return err
	}
	return b.spotify.Seek(ctx, auth, positionMs, deviceID)
}

func (b *BridgePlayer) target() (*core.SpotifyAuth, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil, "", fmt.Errorf("bridge player not connected")
	}
	if b.deviceID == "" {
		return nil, "", fmt.Errorf("embedded player has not registered a device")
	}
	return b.auth, b.deviceID, nil
}
