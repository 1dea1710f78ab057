package http

import (
	"net/http"

	"discobase/internal/core"
	"discobase/internal/playback"
)

// bridgeFor resolves the embedded-player bridge behind a profile's session.
func (s *Server) bridgeFor(w http.ResponseWriter, username string) *playback.BridgePlayer {
	session := s.deps.Playback.Session(username)
	if session == nil {
		s.writeError(w, http.StatusConflict, "no active playback session")
		return nil
	}
	bridge, ok := session.Local().(*playback.BridgePlayer)
	if !ok {
		s.writeError(w, http.StatusConflict, "session has no embedded player")
		return nil
	}
	return bridge
}

// handlePlayerDevice records the Web Playback SDK device ID once the page's
// player fires its ready event.
func (s *Server) handlePlayerDevice(w http.ResponseWriter, r *http.Request) {
	bridge := s.bridgeFor(w, r.PathValue("username"))
	if bridge == nil {
		return
	}

	var body struct {
		DeviceID string `json:"deviceId"`
	}
	if !s.decodeJSON(w, r, &body) {
		return
	}
	if body.DeviceID == "" {
		s.writeError(w, http.StatusBadRequest, "deviceId is required")
		return
	}

	bridge.RegisterDevice(body.DeviceID)
	w.WriteHeader(http.StatusNoContent)
}

// handlePlayerEvent forwards a player_state_changed event from the page into
// the session's reconciliation loop.
func (s *Server) handlePlayerEvent(w http.ResponseWriter, r *http.Request) {
	bridge := s.bridgeFor(w, r.PathValue("username"))
	if bridge == nil {
		return
	}

	var state core.PlaybackState
	if !s.decodeJSON(w, r, &state) {
		return
	}

	bridge.PushState(state)
	w.WriteHeader(http.StatusNoContent)
}
