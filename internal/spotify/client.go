// Package spotify wraps the Spotify Web API for album search, device listing
// and playback control. All calls are scoped to a single user's credentials;
// nothing about token lifetime is hidden here, refresh is the caller's job.
package spotify

import (
	"context"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"discobase/internal/core"
)

const (
	// DefaultSearchLimit caps album search results.
	DefaultSearchLimit = 20
)

type Client struct {
	config *core.SpotifyConfig
	logger *zap.Logger
}

func NewClient(config *core.SpotifyConfig, logger *zap.Logger) *Client {
	return &Client{
		config: config,
		logger: logger,
	}
}

// api builds a Web API client for one user's access token. A static token
// source is used on purpose: refresh happens explicitly through the
// Authenticator, never behind the transport.
func (c *Client) api(ctx context.Context, auth *core.SpotifyAuth) (*spotify.Client, error) {
	if !auth.Valid() {
		return nil, core.ErrNotAuthenticated
	}

	token := &oauth2.Token{
		AccessToken: auth.AccessToken,
		TokenType:   "Bearer",
		Expiry:      auth.ExpiresAt,
	}

	return spotify.New(oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))), nil
}

// SearchAlbums runs an album search and converts the results. The query is
// built by the caller; limit falls back to DefaultSearchLimit when zero.
func (c *Client) SearchAlbums(ctx context.Context, auth *core.SpotifyAuth, query string, limit int) ([]core.AlbumCandidate, error) {
	client, err := c.api(ctx, auth)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	results, err := client.Search(ctx, query, spotify.SearchTypeAlbum, spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("album search failed: %w", err)
	}

	if results.Albums == nil {
		return nil, nil
	}

	candidates := make([]core.AlbumCandidate, 0, len(results.Albums.Albums))
	for i := range results.Albums.Albums {
		candidates = append(candidates, convertAlbum(&results.Albums.Albums[i]))
	}

	c.logger.Debug("Album search completed",
		zap.String("query", query),
		zap.Int("results", len(candidates)))

	return candidates, nil
}

// Devices lists the user's currently available playback devices.
func (c *Client) Devices(ctx context.Context, auth *core.SpotifyAuth) ([]core.PlaybackDevice, error) {
	client, err := c.api(ctx, auth)
	if err != nil {
		return nil, err
	}

	devices, err := client.PlayerDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get player devices: %w", err)
	}

	converted := make([]core.PlaybackDevice, 0, len(devices))
	for _, d := range devices {
		converted = append(converted, core.PlaybackDevice{
			ID:     string(d.ID),
			Name:   d.Name,
			Type:   deviceType(d.Type),
			Active: d.Active,
		})
	}

	return converted, nil
}

// PlayerState fetches the user's current playback state across all devices.
// Returns nil without error when nothing is playing anywhere.
func (c *Client) PlayerState(ctx context.Context, auth *core.SpotifyAuth) (*core.PlaybackState, error) {
	client, err := c.api(ctx, auth)
	if err != nil {
		return nil, err
	}

	state, err := client.PlayerState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get player state: %w", err)
	}

	if state == nil {
		return nil, nil
	}

	converted := &core.PlaybackState{
		Playing:    state.Playing,
		ProgressMs: int(state.Progress),
		ContextURI: string(state.PlaybackContext.URI),
		DeviceID:   string(state.Device.ID),
	}

	if state.Item != nil {
		converted.TrackID = string(state.Item.ID)
		converted.TrackName = state.Item.Name
		converted.DurationMs = int(state.Item.Duration)
		if len(state.Item.Artists) > 0 {
			names := make([]string, 0, len(state.Item.Artists))
			for _, a := range state.Item.Artists {
				names = append(names, a.Name)
			}
			converted.TrackArtist = strings.Join(names, ", ")
		}
	}

	return converted, nil
}

// Play starts or resumes playback. A non-empty contextURI selects the album
// to play; a non-empty deviceID targets a specific remote device, otherwise
// the command goes to whatever device is active.
func (c *Client) Play(ctx context.Context, auth *core.SpotifyAuth, contextURI, deviceID string) error {
	client, err := c.api(ctx, auth)
	if err != nil {
		return err
	}

	opts := &spotify.PlayOptions{}
	if contextURI != "" {
		uri := spotify.URI(contextURI)
		opts.PlaybackContext = &uri
	}
	if deviceID != "" {
		id := spotify.ID(deviceID)
		opts.DeviceID = &id
	}

	if err := client.PlayOpt(ctx, opts); err != nil {
		return fmt.Errorf("play failed: %w", err)
	}
	return nil
}

// Pause pauses playback, optionally on a specific device.
func (c *Client) Pause(ctx context.Context, auth *core.SpotifyAuth, deviceID string) error {
	client, err := c.api(ctx, auth)
	if err != nil {
		return err
	}

	if err := client.PauseOpt(ctx, playOptions(deviceID)); err != nil {
		return fmt.Errorf("pause failed: %w", err)
	}
	return nil
}

// Next skips to the next track.
func (c *Client) Next(ctx context.Context, auth *core.SpotifyAuth, deviceID string) error {
	client, err := c.api(ctx, auth)
	if err != nil {
		return err
	}

	if err := client.NextOpt(ctx, playOptions(deviceID)); err != nil {
		return fmt.Errorf("next failed: %w", err)
	}
	return nil
}

// Previous skips to the previous track.
func (c *Client) Previous(ctx context.Context, auth *core.SpotifyAuth, deviceID string) error {
	client, err := c.api(ctx, auth)
	if err != nil {
		return err
	}

	if err := client.PreviousOpt(ctx, playOptions(deviceID)); err != nil {
		return fmt.Errorf("previous failed: %w", err)
	}
	return nil
}

// Seek jumps to a position in the current track.
func (c *Client) Seek(ctx context.Context, auth *core.SpotifyAuth, positionMs int, deviceID string) error {
	client, err := c.api(ctx, auth)
	if err != nil {
		return err
	}

	if err := client.SeekOpt(ctx, positionMs, playOptions(deviceID)); err != nil {
		return fmt.Errorf("seek failed: %w", err)
	}
	return nil
}

// TransferPlayback moves playback to the given device. Spotify treats the
// transfer as idempotent, so repeated calls are safe.
func (c *Client) TransferPlayback(ctx context.Context, auth *core.SpotifyAuth, deviceID string, play bool) error {
	client, err := c.api(ctx, auth)
	if err != nil {
		return err
	}

	if err := client.TransferPlayback(ctx, spotify.ID(deviceID), play); err != nil {
		return fmt.Errorf("transfer playback failed: %w", err)
	}

	c.logger.Debug("Transferred playback",
		zap.String("deviceID", deviceID),
		zap.Bool("play", play))

	return nil
}

func playOptions(deviceID string) *spotify.PlayOptions {
	opts := &spotify.PlayOptions{}
	if deviceID != "" {
		id := spotify.ID(deviceID)
		opts.DeviceID = &id
	}
	return opts
}

func convertAlbum(album *spotify.SimpleAlbum) core.AlbumCandidate {
	var artists []string
	for _, artist := range album.Artists {
		artists = append(artists, artist.Name)
	}

	images := make([]core.Image, 0, len(album.Images))
	for _, img := range album.Images {
		images = append(images, core.Image{
			URL:    img.URL,
			Width:  int(img.Width),
			Height: int(img.Height),
		})
	}

	return core.AlbumCandidate{
		ID:          string(album.ID),
		URI:         string(album.URI),
		Name:        album.Name,
		Artist:      strings.Join(artists, ", "),
		ReleaseDate: album.ReleaseDate,
		TotalTracks: int(album.TotalTracks),
		Images:      images,
		ExternalURL: album.ExternalURLs["spotify"],
	}
}

func deviceType(raw string) core.DeviceType {
	switch strings.ToLower(raw) {
	case "computer":
		return core.DeviceComputer
	case "smartphone":
		return core.DeviceSmartphone
	case "tablet":
		return core.DeviceTablet
	case "speaker":
		return core.DeviceSpeaker
	case "tv":
		return core.DeviceTV
	case "game_console", "console":
		return core.DeviceConsole
	default:
		return core.DeviceOther
	}
}
