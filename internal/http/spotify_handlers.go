package http

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"discobase/internal/core"
)

func (s *Server) handleSpotifyLogin(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		s.writeError(w, http.StatusBadRequest, "username query parameter is required")
		return
	}
	// The username rides along as the OAuth state so the callback knows
	// which profile the tokens belong to.
	http.Redirect(w, r, s.deps.Auth.AuthURL(username), http.StatusFound)
}

func (s *Server) handleSpotifyCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	username := r.URL.Query().Get("state")
	if code == "" || username == "" {
		s.writeError(w, http.StatusBadRequest, "missing code or state")
		return
	}

	auth, err := s.deps.Auth.Exchange(r.Context(), code)
	if err != nil {
		s.logger.Error("OAuth code exchange failed", zap.String("username", username), zap.Error(err))
		s.metrics.RecordError("spotify_auth")
		s.writeError(w, http.StatusBadGateway, "authorization failed")
		return
	}

	if err := s.deps.Profiles.SaveAuth(username, auth); err != nil {
		if errors.Is(err, core.ErrProfileNotFound) {
			s.writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to store credentials")
		return
	}

	s.logger.Info("Spotify account connected",
		zap.String("username", username), zap.String("spotify_user", auth.UserID))
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":      "connected",
		"spotifyUser": auth.UserID,
	})
}

func (s *Server) handleSpotifyRefresh(w http.ResponseWriter, r *http.Request) {
	auth, err := s.freshAuth(r.Context(), r.PathValue("username"))
	if err != nil {
		s.writeAuthError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"accessToken": auth.AccessToken,
		"expiresAt":   auth.ExpiresAt.Format(time.RFC3339),
	})
}

func (s *Server) handleSpotifyLogout(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	if session := s.deps.Playback.Session(username); session != nil {
		s.deps.Playback.Deactivate()
	}

	if err := s.deps.Profiles.ClearAuth(username); err != nil {
		if errors.Is(err, core.ErrProfileNotFound) {
			s.writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to clear credentials")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	barcode := r.PathValue("barcode")

	album := s.deps.Catalog.Get(barcode)
	if album == nil {
		s.writeError(w, http.StatusNotFound, "album not in catalog")
		return
	}

	auth, err := s.freshAuth(r.Context(), username)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	candidates, err := s.deps.Linker.SearchForAlbum(r.Context(), auth, album)
	if err != nil {
		var searchErr *core.SearchError
		if errors.As(err, &searchErr) {
			s.writeError(w, http.StatusUnprocessableEntity, searchErr.Reason)
			return
		}
		s.metrics.RecordError("search")
		s.writeError(w, http.StatusBadGateway, "search failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"barcode":    barcode,
		"candidates": candidates,
		"linked":     s.deps.Linker.GetLinked(username, barcode),
	})
}

func (s *Server) handleAllLinks(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"links": s.deps.Linker.AllLinked(r.PathValue("username")),
	})
}

func (s *Server) handleAutoLink(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	barcode := r.PathValue("barcode")

	album := s.deps.Catalog.Get(barcode)
	if album == nil {
		s.writeError(w, http.StatusNotFound, "album not in catalog")
		return
	}

	auth, err := s.freshAuth(r.Context(), username)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	outcome, err := s.deps.Linker.AutoLink(r.Context(), auth, username, album)
	if err != nil {
		var searchErr *core.SearchError
		if errors.As(err, &searchErr) {
			s.writeError(w, http.StatusUnprocessableEntity, searchErr.Reason)
			return
		}
		s.metrics.RecordError("autolink")
		s.writeError(w, http.StatusBadGateway, "auto-link failed")
		return
	}

	s.metrics.RecordLink(string(outcome.Confidence))
	s.writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	var candidate core.AlbumCandidate
	if !s.decodeJSON(w, r, &candidate) {
		return
	}
	if candidate.ID == "" || candidate.URI == "" {
		s.writeError(w, http.StatusBadRequest, "candidate id and uri are required")
		return
	}

	if err := s.deps.Linker.Link(r.PathValue("username"), r.PathValue("barcode"), &candidate); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to save link")
		return
	}
	s.metrics.RecordLink("manual")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) {
	removed, err := s.deps.Linker.Unlink(r.PathValue("username"), r.PathValue("barcode"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to remove link")
		return
	}
	if !removed {
		s.writeError(w, http.StatusNotFound, "no link for barcode")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	auth, err := s.freshAuth(r.Context(), username)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	devices, err := s.deps.Spotify.Devices(r.Context(), auth)
	if err != nil {
		s.metrics.RecordError("devices")
		s.writeError(w, http.StatusBadGateway, "failed to list devices")
		return
	}

	preferred, err := s.deps.Devices.PreferredDevice(username)
	if err != nil {
		s.logger.Debug("Failed to load preferred device",
			zap.String("username", username), zap.Error(err))
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"devices":   devices,
		"preferred": preferred,
	})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	deviceID := r.PathValue("deviceId")
	play := r.URL.Query().Get("play") == "true"

	auth, err := s.freshAuth(r.Context(), username)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	if err := s.deps.Devices.TransferPlayback(r.Context(), auth, username, deviceID, play); err != nil {
		s.metrics.RecordError("transfer")
		s.writeError(w, http.StatusBadGateway, "transfer failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlaybackConnect(w http.ResponseWriter, r *http.Request) {
	session, err := s.deps.Playback.Activate(r.Context(), r.PathValue("username"))
	if err != nil {
		if errors.Is(err, core.ErrNotAuthenticated) {
			s.writeError(w, http.StatusUnauthorized, "spotify account not connected")
			return
		}
		s.metrics.RecordError("playback_connect")
		s.writeError(w, http.StatusBadGateway, "failed to start playback session")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"state": session.State(),
	})
}

func (s *Server) handlePlaybackState(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	session := s.deps.Playback.Session(username)
	if session == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"state": "disconnected",
		})
		return
	}

	state := session.PlaybackState()
	response := map[string]any{
		"state":    session.State(),
		"playback": state,
	}
	// Resolve which catalog album is playing by reverse lookup over the
	// user's links.
	if state != nil && state.ContextURI != "" {
		if barcode := s.deps.Linker.BarcodeForContext(username, state.ContextURI); barcode != "" {
			response["barcode"] = barcode
		}
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handlePlaybackCommand(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	command := r.PathValue("command")

	session := s.deps.Playback.Session(username)
	if session == nil {
		s.writeError(w, http.StatusConflict, "no active playback session")
		return
	}

	var err error
	switch command {
	case "play":
		var body struct {
			ContextURI string `json:"contextUri"`
			DeviceID   string `json:"deviceId"`
		}
		if !s.decodeJSON(w, r, &body) {
			return
		}
		if body.ContextURI == "" {
			s.writeError(w, http.StatusBadRequest, "contextUri is required")
			return
		}
		deviceID := body.DeviceID
		if deviceID == "" {
			var device *core.PlaybackDevice
			auth, authErr := s.freshAuth(r.Context(), username)
			if authErr != nil {
				s.writeAuthError(w, authErr)
				return
			}
			device, err = s.deps.Devices.BestDevice(r.Context(), auth, username)
			if err != nil {
				break
			}
			deviceID = device.ID
		}
		err = session.PlayAlbum(r.Context(), body.ContextURI, deviceID)
	case "resume":
		err = session.Resume(r.Context())
	case "pause":
		err = session.Pause(r.Context())
	case "next":
		err = session.Next(r.Context())
	case "previous":
		err = session.Previous(r.Context())
	case "seek":
		var body struct {
			PositionMs int `json:"positionMs"`
		}
		if !s.decodeJSON(w, r, &body) {
			return
		}
		err = session.Seek(r.Context(), body.PositionMs)
	default:
		s.writeError(w, http.StatusBadRequest, "unknown playback command")
		return
	}

	if err != nil {
		s.metrics.RecordPlaybackCommand(command, "error")
		switch {
		case errors.Is(err, core.ErrAuthExpired):
			s.writeError(w, http.StatusUnauthorized, "spotify authorization expired")
		case errors.Is(err, core.ErrNoDeviceAvailable):
			s.writeError(w, http.StatusConflict, "no playback device available")
		default:
			s.writeError(w, http.StatusBadGateway, "playback command failed")
		}
		return
	}

	s.metrics.RecordPlaybackCommand(command, "ok")
	w.WriteHeader(http.StatusNoContent)
}

// writeAuthError maps credential failures onto status codes shared by every
// handler that needs a live token.
func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrProfileNotFound):
		s.writeError(w, http.StatusNotFound, "profile not found")
	case errors.Is(err, core.ErrNotAuthenticated):
		s.writeError(w, http.StatusUnauthorized, "spotify account not connected")
	case errors.Is(err, core.ErrAuthExpired):
		s.writeError(w, http.StatusUnauthorized, "spotify authorization expired")
	default:
		s.writeError(w, http.StatusInternalServerError, "failed to load credentials")
	}
}
