// Package main provides the discobase CLI application entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"discobase/internal/catalog"
	"discobase/internal/core"
	httpserver "discobase/internal/http"
	"discobase/internal/linker"
	"discobase/internal/mbz"
	"discobase/internal/playback"
	"discobase/internal/spotify"
	"discobase/internal/store"
	"discobase/internal/worker"
)

const defaultServerHost = "0.0.0.0"

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "discobase",
	Short: "discobase - Barcode-driven personal music catalog",
	Long: `discobase catalogs physical releases by barcode using MusicBrainz metadata
and links them to Spotify albums for playback on any of the user's devices.`,
	RunE: runDiscobase,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("server-host", defaultServerHost, "HTTP server host")
	rootCmd.PersistentFlags().Int("server-port", 8080, "HTTP server port")
	rootCmd.PersistentFlags().String("spotify-client-id", "", "Spotify client ID")
	rootCmd.PersistentFlags().String("spotify-client-secret", "", "Spotify client secret")
	rootCmd.PersistentFlags().String("spotify-redirect-url", "", "Spotify OAuth redirect URL")
	rootCmd.PersistentFlags().String("catalog-file", "./catalog.csv", "Catalog CSV file")
	rootCmd.PersistentFlags().String("no-coverart-file", "./no_coverart.csv", "Missing cover art CSV file")
	rootCmd.PersistentFlags().String("tracks-cache-file", "./tracks_cache.json", "Track listing cache file")
	rootCmd.PersistentFlags().String("coverart-dir", "./coverart", "Cover art image directory")
	rootCmd.PersistentFlags().String("db-path", "./discobase.db", "SQLite database path")
	rootCmd.PersistentFlags().String("musicbrainz-url", "", "MusicBrainz API base URL")
	rootCmd.PersistentFlags().Int("autolink-threshold", 180, "Minimum match score for automatic album linking")
	rootCmd.PersistentFlags().Int("search-limit", 20, "Number of Spotify search results to score")
	rootCmd.PersistentFlags().Int("poll-interval-secs", 2, "Remote playback poll interval in seconds")
	rootCmd.PersistentFlags().Int("refresh-buffer-mins", 5, "Token refresh buffer before expiry in minutes")
	rootCmd.PersistentFlags().Int("worker-max-retries", 3, "Scan retries before a barcode is marked failed")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		// Don't exit if .env file doesn't exist, just warn
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix("DISCOBASE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log.Level)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	configureServer(cfg)
	configureSpotify(cfg)
	configureCatalog(cfg)
	configureMusicBrainz(cfg)
	configurePlayback(cfg)

	return cfg
}

func configureServer(cfg *core.Config) {
	cfg.Server.Host = viper.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultServerHost
	}
	cfg.Server.Port = viper.GetInt("server-port")
	cfg.Log.Level = viper.GetString("log-level")
}

func configureSpotify(cfg *core.Config) {
	cfg.Spotify.ClientID = viper.GetString("spotify-client-id")
	cfg.Spotify.ClientSecret = viper.GetString("spotify-client-secret")
	cfg.Spotify.RedirectURL = viper.GetString("spotify-redirect-url")

	// Build default redirect URL based on server configuration if not explicitly set
	if cfg.Spotify.RedirectURL == "" {
		serverHost := cfg.Server.Host
		if serverHost == defaultServerHost {
			serverHost = "127.0.0.1" // Use localhost for OAuth callback
		}
		cfg.Spotify.RedirectURL = fmt.Sprintf("http://%s:%d/spotify/callback", serverHost, cfg.Server.Port)
	}
}

func configureCatalog(cfg *core.Config) {
	cfg.Catalog.CatalogFile = viper.GetString("catalog-file")
	cfg.Catalog.NoCoverArtFile = viper.GetString("no-coverart-file")
	cfg.Catalog.TracksCacheFile = viper.GetString("tracks-cache-file")
	cfg.Catalog.CoverArtDir = viper.GetString("coverart-dir")
	cfg.Worker.DBPath = viper.GetString("db-path")

	maxRetries := viper.GetInt("worker-max-retries")
	if maxRetries > 0 {
		cfg.Worker.MaxRetries = maxRetries
	}
}

func configureMusicBrainz(cfg *core.Config) {
	if url := viper.GetString("musicbrainz-url"); url != "" {
		cfg.MusicBrainz.BaseURL = url
	}
}

func configurePlayback(cfg *core.Config) {
	if threshold := viper.GetInt("autolink-threshold"); threshold > 0 {
		cfg.Linker.AutoLinkThreshold = threshold
	}
	if limit := viper.GetInt("search-limit"); limit > 0 {
		cfg.Linker.SearchLimit = limit
	}
	if secs := viper.GetInt("poll-interval-secs"); secs > 0 {
		cfg.Playback.PollInterval = time.Duration(secs) * time.Second
	}
	if mins := viper.GetInt("refresh-buffer-mins"); mins > 0 {
		cfg.Playback.RefreshBuffer = time.Duration(mins) * time.Minute
	}
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func runDiscobase(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting discobase",
		zap.String("catalog", config.Catalog.CatalogFile),
		zap.String("db", config.Worker.DBPath),
		zap.String("musicbrainz", config.MusicBrainz.BaseURL))

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	services, err := initializeServices()
	if err != nil {
		return err
	}
	defer services.db.Close()

	return runServices(ctx, services)
}

func validateConfig() error {
	if config.Spotify.ClientID == "" || config.Spotify.ClientSecret == "" {
		return fmt.Errorf("DISCOBASE_SPOTIFY_CLIENT_ID and DISCOBASE_SPOTIFY_CLIENT_SECRET must be set")
	}
	return nil
}

type services struct {
	db         *store.Store
	httpServer *httpserver.Server
	worker     *worker.Worker
}

func initializeServices() (*services, error) {
	db, err := store.Open(config.Worker.DBPath, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	queue, err := store.NewQueue(db, config.Worker.DedupCapacity, logger.Named("queue"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize scan queue: %w", err)
	}

	cat, err := catalog.Load(config.Catalog.CatalogFile, logger.Named("catalog"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	tracks, err := catalog.LoadTrackCache(config.Catalog.TracksCacheFile,
		config.Catalog.TrackCacheSize, logger.Named("tracks"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load track cache: %w", err)
	}
	noCoverArt, err := catalog.LoadNoCoverArt(config.Catalog.NoCoverArtFile, logger.Named("catalog"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load missing-cover-art list: %w", err)
	}

	limiter := mbz.NewAdaptiveLimiter(config.MusicBrainz.MinDelay, config.MusicBrainz.MaxDelay,
		queue, logger.Named("mbz"))
	mbzClient := mbz.NewClient(&config.MusicBrainz, limiter, logger.Named("mbz"))
	scanWorker := worker.New(&config.Worker, queue, cat, tracks, noCoverArt,
		mbzClient, config.Catalog.CoverArtDir, logger)

	spotifyClient := spotify.NewClient(&config.Spotify, logger.Named("spotify"))
	authenticator := spotify.NewAuthenticator(&config.Spotify, logger.Named("spotify"))
	manager := playback.NewManager(&config.Playback, spotifyClient, authenticator, db,
		func() core.LocalPlayer {
			return playback.NewBridgePlayer(spotifyClient, logger)
		}, logger)

	httpServer := httpserver.NewServer(config, httpserver.Deps{
		Catalog:     cat,
		Tracks:      tracks,
		NoCoverArt:  noCoverArt,
		Queue:       queue,
		Profiles:    db,
		Linker:      linker.NewResolver(&config.Linker, spotifyClient, db, logger.Named("linker")),
		Spotify:     spotifyClient,
		Auth:        authenticator,
		Refresher:   authenticator,
		Playback:    manager,
		Devices:     playback.NewDeviceResolver(spotifyClient, db, logger),
		CoverArt:    mbzClient,
		CoverArtDir: config.Catalog.CoverArtDir,
	}, logger)

	return &services{
		db:         db,
		httpServer: httpServer,
		worker:     scanWorker,
	}, nil
}

func runServices(ctx context.Context, svcs *services) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svcs.httpServer.Start(gCtx)
	})

	g.Go(func() error {
		return svcs.worker.Run(gCtx)
	})

	logger.Info("discobase started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("discobase stopped with error", zap.Error(err))
		return err
	}

	logger.Info("discobase stopped gracefully")
	return nil
}
