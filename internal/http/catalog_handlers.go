package http

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"discobase/internal/core"
	"discobase/internal/mbz"
)

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	albums := s.deps.Catalog.Albums()
	s.metrics.CatalogSize.Set(float64(len(albums)))

	s.writeJSON(w, http.StatusOK, map[string]any{
		"albums":     albums,
		"total":      len(albums),
		"noCoverArt": s.deps.NoCoverArt.All(),
	})
}

func (s *Server) handleCatalogRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Catalog.Reload(); err != nil {
		s.metrics.RecordError("catalog")
		s.logger.Error("Catalog reload failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to reload catalog")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"total": s.deps.Catalog.Len()})
}

func (s *Server) handleAlbum(w http.ResponseWriter, r *http.Request) {
	barcode := r.PathValue("barcode")
	album := s.deps.Catalog.Get(barcode)
	if album == nil {
		s.writeError(w, http.StatusNotFound, "album not found")
		return
	}
	s.writeJSON(w, http.StatusOK, album)
}

func (s *Server) handleAlbumTracks(w http.ResponseWriter, r *http.Request) {
	barcode := r.PathValue("barcode")
	if s.deps.Catalog.Get(barcode) == nil {
		s.writeError(w, http.StatusNotFound, "album not found")
		return
	}

	tracks := s.deps.Tracks.Get(barcode)
	if tracks == nil {
		tracks = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"barcode": barcode, "tracks": tracks})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Barcode string `json:"barcode"`
	}
	if !s.decodeJSON(w, r, &body) {
		return
	}
	if body.Barcode == "" {
		s.writeError(w, http.StatusBadRequest, "barcode is required")
		return
	}

	if s.deps.Catalog.Has(body.Barcode) {
		s.metrics.RecordScan("duplicate")
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status": "cataloged",
			"album":  s.deps.Catalog.Get(body.Barcode),
		})
		return
	}

	result, err := s.deps.Queue.Enqueue(body.Barcode)
	if err != nil {
		s.metrics.RecordError("queue")
		s.logger.Error("Failed to enqueue barcode", zap.String("barcode", body.Barcode), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to queue barcode")
		return
	}

	if result.AlreadyQueued {
		s.metrics.RecordScan("duplicate")
		s.writeJSON(w, http.StatusOK, result)
		return
	}
	s.metrics.RecordScan("queued")
	s.writeJSON(w, http.StatusAccepted, result)
}

func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	barcode := r.PathValue("barcode")
	item, err := s.deps.Queue.Status(barcode)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read queue")
		return
	}
	if item == nil {
		s.writeError(w, http.StatusNotFound, "barcode not queued")
		return
	}

	response := map[string]any{"item": item}
	if item.Status == core.QueueStatusPending {
		if position, err := s.deps.Queue.Position(barcode); err == nil {
			response["position"] = position
		}
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Queue.Stats()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read queue")
		return
	}
	failed, err := s.deps.Queue.FailedItems()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read queue")
		return
	}
	s.metrics.QueuePending.Set(float64(stats.Pending))
	if delay, err := s.deps.Queue.LoadBackoff(); err == nil {
		s.metrics.MusicBrainzBackoff.Set(delay.Seconds())
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"stats": stats, "failed": failed})
}

func (s *Server) handleQueueRetry(w http.ResponseWriter, r *http.Request) {
	barcode := r.PathValue("barcode")
	if err := s.deps.Queue.ResetFailed(barcode); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to reset barcode")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "pending"})
}

// handleRetryCoverArt re-fetches cover art for an album on the missing list,
// removing the entry once an image finally turns up.
func (s *Server) handleRetryCoverArt(w http.ResponseWriter, r *http.Request) {
	barcode := r.PathValue("barcode")
	if !s.deps.NoCoverArt.Has(barcode) {
		s.writeError(w, http.StatusNotFound, "barcode not on the missing-cover-art list")
		return
	}
	album := s.deps.Catalog.Get(barcode)
	if album == nil || album.MusicBrainzID == "" {
		s.writeError(w, http.StatusNotFound, "album not in catalog")
		return
	}

	image, err := s.deps.CoverArt.FrontCover(r.Context(), album.MusicBrainzID)
	switch {
	case errors.Is(err, mbz.ErrNoCoverArt):
		s.writeError(w, http.StatusNotFound, "cover art still unavailable")
		return
	case errors.Is(err, mbz.ErrServerBusy):
		s.writeError(w, http.StatusServiceUnavailable, "cover art archive is busy, try again later")
		return
	case err != nil:
		s.metrics.RecordError("coverart")
		s.logger.Error("Cover art retry failed", zap.String("barcode", barcode), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "cover art fetch failed")
		return
	}

	if err := os.MkdirAll(s.deps.CoverArtDir, 0o755); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to store cover art")
		return
	}
	if err := os.WriteFile(filepath.Join(s.deps.CoverArtDir, barcode+".jpg"), image, 0o644); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to store cover art")
		return
	}
	if err := s.deps.NoCoverArt.Remove(barcode); err != nil {
		s.logger.Warn("Could not update missing-cover-art list",
			zap.String("barcode", barcode), zap.Error(err))
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "recovered"})
}
