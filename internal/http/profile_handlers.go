package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"discobase/internal/core"
)

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
	}
	if !s.decodeJSON(w, r, &body) {
		return
	}
	if body.Username == "" {
		s.writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	profile, err := s.deps.Profiles.CreateProfile(body.Username)
	if err != nil {
		s.logger.Error("Failed to create profile", zap.String("username", body.Username), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to create profile")
		return
	}
	s.writeJSON(w, http.StatusCreated, profile)
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.deps.Profiles.ListProfiles()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list profiles")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.deps.Profiles.GetProfile(r.PathValue("username"))
	if errors.Is(err, core.ErrProfileNotFound) {
		s.writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	s.writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	requestedBy := r.Header.Get("X-Requested-By")
	if requestedBy == "" {
		s.writeError(w, http.StatusBadRequest, "X-Requested-By header is required")
		return
	}

	err := s.deps.Profiles.DeleteProfile(requestedBy, username)
	switch {
	case errors.Is(err, core.ErrNotAdmin):
		s.writeError(w, http.StatusForbidden, "only the admin can delete profiles")
	case errors.Is(err, core.ErrProfileNotFound):
		s.writeError(w, http.StatusNotFound, "profile not found")
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, "failed to delete profile")
	default:
		// An active playback session for the deleted profile must not linger.
		if session := s.deps.Playback.Session(username); session != nil {
			s.deps.Playback.Deactivate()
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleStarAlbum(w http.ResponseWriter, r *http.Request) {
	s.starOp(w, s.deps.Profiles.StarAlbum(r.PathValue("username"), r.PathValue("barcode")))
}

func (s *Server) handleUnstarAlbum(w http.ResponseWriter, r *http.Request) {
	s.starOp(w, s.deps.Profiles.UnstarAlbum(r.PathValue("username"), r.PathValue("barcode")))
}

func (s *Server) handleStarTrack(w http.ResponseWriter, r *http.Request) {
	track, err := strconv.Atoi(r.PathValue("track"))
	if err != nil || track < 1 {
		s.writeError(w, http.StatusBadRequest, "invalid track number")
		return
	}
	s.starOp(w, s.deps.Profiles.StarTrack(r.PathValue("username"), r.PathValue("barcode"), track))
}

func (s *Server) handleUnstarTrack(w http.ResponseWriter, r *http.Request) {
	track, err := strconv.Atoi(r.PathValue("track"))
	if err != nil || track < 1 {
		s.writeError(w, http.StatusBadRequest, "invalid track number")
		return
	}
	s.starOp(w, s.deps.Profiles.UnstarTrack(r.PathValue("username"), r.PathValue("barcode"), track))
}

func (s *Server) starOp(w http.ResponseWriter, err error) {
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to update stars")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetSyncID(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SyncID string `json:"syncId"`
	}
	if !s.decodeJSON(w, r, &body) {
		return
	}
	if body.SyncID == "" {
		s.writeError(w, http.StatusBadRequest, "syncId is required")
		return
	}

	err := s.deps.Profiles.SetSyncID(r.PathValue("username"), body.SyncID)
	if errors.Is(err, core.ErrProfileNotFound) {
		s.writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to set sync id")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSaveBackup(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "backup payload too large")
		return
	}

	if err := s.deps.Profiles.SaveSyncBackup(r.PathValue("syncId"), r.PathValue("kind"), payload); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to save backup")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetBackup(w http.ResponseWriter, r *http.Request) {
	payload, err := s.deps.Profiles.GetSyncBackup(r.PathValue("syncId"), r.PathValue("kind"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load backup")
		return
	}
	if payload == nil {
		s.writeError(w, http.StatusNotFound, "no backup found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}
