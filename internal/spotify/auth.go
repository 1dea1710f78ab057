package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"discobase/internal/core"
)

// Authenticator handles the OAuth authorization-code flow and token refresh
// on behalf of the frontend. The browser only ever sees the resulting tokens,
// never the client secret.
type Authenticator struct {
	auth   *spotifyauth.Authenticator
	conf   *oauth2.Config
	logger *zap.Logger
}

func NewAuthenticator(config *core.SpotifyConfig, logger *zap.Logger) *Authenticator {
	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(config.RedirectURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserModifyPlaybackState,
			spotifyauth.ScopeUserReadCurrentlyPlaying,
			spotifyauth.ScopeUserReadPlaybackState,
			spotifyauth.ScopeStreaming,
		),
		spotifyauth.WithClientID(config.ClientID),
		spotifyauth.WithClientSecret(config.ClientSecret),
	)

	conf := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RedirectURL:  config.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyauth.AuthURL,
			TokenURL: spotifyauth.TokenURL,
		},
	}

	return &Authenticator{
		auth:   auth,
		conf:   conf,
		logger: logger,
	}
}

// AuthURL returns the authorization URL the user is sent to.
func (a *Authenticator) AuthURL(state string) string {
	return a.auth.AuthURL(state)
}

// Exchange trades an authorization code for tokens and resolves the Spotify
// user ID behind them.
func (a *Authenticator) Exchange(ctx context.Context, code string) (*core.SpotifyAuth, error) {
	token, err := a.auth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	auth := &core.SpotifyAuth{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}

	client := spotify.New(a.auth.Client(ctx, token))
	user, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	auth.UserID = user.ID

	a.logger.Info("Spotify authorization completed",
		zap.String("userID", auth.UserID))

	return auth, nil
}

// Refresh exchanges the stored refresh token for a new access token. Spotify
// may rotate the refresh token; when it doesn't, the old one is kept.
func (a *Authenticator) Refresh(ctx context.Context, auth *core.SpotifyAuth) (*core.SpotifyAuth, error) {
	if auth == nil || auth.RefreshToken == "" {
		return nil, core.ErrRefreshFailed
	}

	src := a.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: auth.RefreshToken})
	token, err := src.Token()
	if err != nil {
		a.logger.Warn("Token refresh exchange failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", core.ErrRefreshFailed, err)
	}

	refreshed := &core.SpotifyAuth{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		UserID:       auth.UserID,
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = auth.RefreshToken
	}

	return refreshed, nil
}
