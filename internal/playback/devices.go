package playback

import (
	"context"
	"time"

	"go.uber.org/zap"

	"discobase/internal/core"
)

// DeviceResolver picks the playback device a command should target and keeps
// the persisted device preference current.
type DeviceResolver struct {
	spotify  core.SpotifyClient
	profiles core.DeviceStore
	logger   *zap.Logger
}

func NewDeviceResolver(spotify core.SpotifyClient, profiles core.DeviceStore, logger *zap.Logger) *DeviceResolver {
	return &DeviceResolver{
		spotify:  spotify,
		profiles: profiles,
		logger:   logger.Named("devices"),
	}
}

// BestDevice resolves the device playback should run on, in strict priority
// order: the persisted preference when it is still available, then the first
// active device, then the first computer, then whatever comes first. Any pick
// other than the existing preference becomes the new preference.
func (r *DeviceResolver) BestDevice(ctx context.Context, auth *core.SpotifyAuth, username string) (*core.PlaybackDevice, error) {
	devices, err := r.spotify.Devices(ctx, auth)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, core.ErrNoDeviceAvailable
	}

	if preferred, err := r.profiles.GetPreferredDevice(username); err != nil {
		r.logger.Warn("Failed to load device preference", zap.String("username", username), zap.Error(err))
	} else if preferred != nil {
		for i := range devices {
			if devices[i].ID == preferred.ID {
				r.logger.Debug("Using preferred playback device",
					zap.String("deviceID", preferred.ID),
					zap.String("deviceName", preferred.Name))
				return &devices[i], nil
			}
		}
		r.logger.Debug("Preferred device not available",
			zap.String("deviceID", preferred.ID),
			zap.Int("availableDevices", len(devices)))
	}

	var firstActive, firstComputer *core.PlaybackDevice
	for i := range devices {
		if devices[i].Active && firstActive == nil {
			firstActive = &devices[i]
		}
		if devices[i].Type == core.DeviceComputer && firstComputer == nil {
			firstComputer = &devices[i]
		}
	}

	chosen := &devices[0]
	switch {
	case firstActive != nil:
		chosen = firstActive
	case firstComputer != nil:
		chosen = firstComputer
	}

	r.persistPreference(username, chosen)
	return chosen, nil
}

// SetPreferredDevice records an explicit device choice made by the user.
func (r *DeviceResolver) SetPreferredDevice(username string, device *core.PlaybackDevice) error {
	return r.profiles.SetPreferredDevice(username, &core.PreferredDevice{
		ID:       device.ID,
		Name:     device.Name,
		Type:     device.Type,
		LastUsed: time.Now(),
	})
}

// PreferredDevice returns the persisted preference, nil when none is stored.
func (r *DeviceResolver) PreferredDevice(username string) (*core.PreferredDevice, error) {
	return r.profiles.GetPreferredDevice(username)
}

// TransferPlayback moves playback to the given device. Idempotent: Spotify
// treats a transfer to the already-active device as a no-op.
func (r *DeviceResolver) TransferPlayback(ctx context.Context, auth *core.SpotifyAuth, username, deviceID string, play bool) error {
	if err := r.spotify.TransferPlayback(ctx, auth, deviceID, play); err != nil {
		return err
	}

	// Resolve the full device so the persisted preference keeps its name and
	// type, not just the ID.
	device := &core.PlaybackDevice{ID: deviceID}
	if devices, err := r.spotify.Devices(ctx, auth); err == nil {
		for i := range devices {
			if devices[i].ID == deviceID {
				device = &devices[i]
				break
			}
		}
	}
	r.persistPreference(username, device)
	return nil
}

func (r *DeviceResolver) persistPreference(username string, device *core.PlaybackDevice) {
	err := r.profiles.SetPreferredDevice(username, &core.PreferredDevice{
		ID:       device.ID,
		Name:     device.Name,
		Type:     device.Type,
		LastUsed: time.Now(),
	})
	if err != nil {
		// Preference is a convenience, losing it never fails the command.
		r.logger.Warn("Failed to persist device preference",
			zap.String("username", username),
			zap.String("deviceID", device.ID),
			zap.Error(err))
	}
}
