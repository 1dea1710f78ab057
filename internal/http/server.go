// Package http exposes the REST API, health endpoints, and Prometheus
// metrics.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"discobase/internal/catalog"
	"discobase/internal/core"
	"discobase/internal/linker"
	"discobase/internal/playback"
	"discobase/internal/store"
)

// SpotifyAuthenticator runs the OAuth authorization-code flow.
type SpotifyAuthenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*core.SpotifyAuth, error)
}

// CoverArtSource fetches front-cover images for releases.
type CoverArtSource interface {
	FrontCover(ctx context.Context, mbid string) ([]byte, error)
}

// Deps collects everything the API serves.
type Deps struct {
	Catalog     *catalog.Catalog
	Tracks      *catalog.TrackCache
	NoCoverArt  *catalog.NoCoverArtList
	Queue       *store.Queue
	Profiles    core.ProfileStore
	Linker      *linker.Resolver
	Spotify     core.SpotifyClient
	Auth        SpotifyAuthenticator
	Refresher   core.TokenRefresher
	Playback    *playback.Manager
	Devices     *playback.DeviceResolver
	CoverArt    CoverArtSource
	CoverArtDir string
}

type Server struct {
	config  *core.Config
	logger  *zap.Logger
	deps    Deps
	server  *http.Server
	metrics *Metrics
}

func NewServer(config *core.Config, deps Deps, logger *zap.Logger) *Server {
	s := &Server{
		config:  config,
		logger:  logger.Named("http"),
		deps:    deps,
		metrics: NewMetrics(),
	}
	s.server = createHTTPServer(&config.Server, s.routes())
	return s
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"discobase"}`))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready","service":"discobase"}`))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	mux.Handle("GET /coverart/", http.StripPrefix("/coverart/",
		http.FileServer(http.Dir(s.deps.CoverArtDir))))

	// Catalog and scanning.
	mux.HandleFunc("GET /api/catalog", s.handleCatalog)
	mux.HandleFunc("POST /api/catalog/refresh", s.handleCatalogRefresh)
	mux.HandleFunc("GET /api/album/{barcode}", s.handleAlbum)
	mux.HandleFunc("GET /api/album/{barcode}/tracks", s.handleAlbumTracks)
	mux.HandleFunc("POST /api/scan", s.handleScan)
	mux.HandleFunc("GET /api/scan/{barcode}", s.handleScanStatus)
	mux.HandleFunc("GET /api/queue", s.handleQueue)
	mux.HandleFunc("POST /api/queue/{barcode}/retry", s.handleQueueRetry)
	mux.HandleFunc("POST /api/coverart/{barcode}/retry", s.handleRetryCoverArt)

	// Profiles, stars, backups.
	mux.HandleFunc("POST /api/profiles", s.handleCreateProfile)
	mux.HandleFunc("GET /api/profiles", s.handleListProfiles)
	mux.HandleFunc("GET /api/profiles/{username}", s.handleGetProfile)
	mux.HandleFunc("DELETE /api/profiles/{username}", s.handleDeleteProfile)
	mux.HandleFunc("PUT /api/profiles/{username}/starred/albums/{barcode}", s.handleStarAlbum)
	mux.HandleFunc("DELETE /api/profiles/{username}/starred/albums/{barcode}", s.handleUnstarAlbum)
	mux.HandleFunc("PUT /api/profiles/{username}/starred/tracks/{barcode}/{track}", s.handleStarTrack)
	mux.HandleFunc("DELETE /api/profiles/{username}/starred/tracks/{barcode}/{track}", s.handleUnstarTrack)
	mux.HandleFunc("PUT /api/profiles/{username}/sync", s.handleSetSyncID)
	mux.HandleFunc("PUT /api/sync/{syncId}/{kind}", s.handleSaveBackup)
	mux.HandleFunc("GET /api/sync/{syncId}/{kind}", s.handleGetBackup)

	// Spotify auth, linking, devices, playback.
	mux.HandleFunc("GET /spotify/login", s.handleSpotifyLogin)
	mux.HandleFunc("GET /spotify/callback", s.handleSpotifyCallback)
	mux.HandleFunc("POST /api/profiles/{username}/spotify/refresh", s.handleSpotifyRefresh)
	mux.HandleFunc("DELETE /api/profiles/{username}/spotify", s.handleSpotifyLogout)
	mux.HandleFunc("GET /api/profiles/{username}/search/{barcode}", s.handleSearch)
	mux.HandleFunc("GET /api/profiles/{username}/links", s.handleAllLinks)
	mux.HandleFunc("POST /api/profiles/{username}/links/{barcode}/auto", s.handleAutoLink)
	mux.HandleFunc("PUT /api/profiles/{username}/links/{barcode}", s.handleLink)
	mux.HandleFunc("DELETE /api/profiles/{username}/links/{barcode}", s.handleUnlink)
	mux.HandleFunc("GET /api/profiles/{username}/devices", s.handleDevices)
	mux.HandleFunc("POST /api/profiles/{username}/devices/{deviceId}/transfer", s.handleTransfer)
	mux.HandleFunc("POST /api/profiles/{username}/playback/connect", s.handlePlaybackConnect)
	mux.HandleFunc("GET /api/profiles/{username}/playback", s.handlePlaybackState)
	mux.HandleFunc("POST /api/profiles/{username}/playback/{command}", s.handlePlaybackCommand)
	mux.HandleFunc("POST /api/profiles/{username}/player/device", s.handlePlayerDevice)
	mux.HandleFunc("POST /api/profiles/{username}/player/events", s.handlePlayerEvent)

	return mux
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}

// freshAuth loads a user's credentials and refreshes them when they are
// inside the expiry buffer, persisting the rotated tokens.
func (s *Server) freshAuth(ctx context.Context, username string) (*core.SpotifyAuth, error) {
	auth, err := s.deps.Profiles.GetAuth(username)
	if err != nil {
		return nil, err
	}
	if !auth.Valid() {
		return nil, core.ErrNotAuthenticated
	}
	if !auth.ExpiresWithin(s.config.Playback.RefreshBuffer) {
		return auth, nil
	}

	fresh, err := s.deps.Refresher.Refresh(ctx, auth)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrAuthExpired, err)
	}
	if err := s.deps.Profiles.SaveAuth(username, fresh); err != nil {
		s.logger.Warn("Failed to persist refreshed credentials",
			zap.String("username", username), zap.Error(err))
	}
	return fresh, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
