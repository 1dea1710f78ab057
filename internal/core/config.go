package core

import (
	"time"
)

type Config struct {
	Server      ServerConfig
	Spotify     SpotifyConfig
	Catalog     CatalogConfig
	MusicBrainz MusicBrainzConfig
	Linker      LinkerConfig
	Playback    PlaybackConfig
	Log         LogConfig
	Worker      WorkerConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type CatalogConfig struct {
	CatalogFile     string
	NoCoverArtFile  string
	TracksCacheFile string
	CoverArtDir     string
	TrackCacheSize  int
}

type MusicBrainzConfig struct {
	BaseURL     string
	CoverArtURL string
	UserAgent   string
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

type LinkerConfig struct {
	// AutoLinkThreshold is the minimum fuzzy-match score for linking an
	// album without asking the user. Empirical, tuned against real catalogs.
	AutoLinkThreshold int
	SearchLimit       int
}

type PlaybackConfig struct {
	// PollInterval drives remote-state polling while playback happens on a
	// device other than the embedded player.
	PollInterval time.Duration
	// RefreshBuffer is how close to token expiry a refresh is forced before
	// issuing a command.
	RefreshBuffer time.Duration
	// MaxPollAuthFailures stops the polling loop after this many consecutive
	// auth failures, to avoid hammering the refresh exchange.
	MaxPollAuthFailures int
}

type LogConfig struct {
	Level  string
	Format string
}

type WorkerConfig struct {
	DBPath        string
	PollInterval  time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	DedupCapacity int
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Spotify: SpotifyConfig{
			RedirectURL: "http://127.0.0.1:8080/spotify/callback",
		},
		Catalog: CatalogConfig{
			CatalogFile:     "./catalog.csv",
			NoCoverArtFile:  "./no_coverart.csv",
			TracksCacheFile: "./tracks_cache.json",
			CoverArtDir:     "./coverart",
			TrackCacheSize:  512,
		},
		MusicBrainz: MusicBrainzConfig{
			BaseURL:     "https://musicbrainz.org/ws/2",
			CoverArtURL: "https://coverartarchive.org",
			UserAgent:   "discobase/1.0 ( https://github.com/discobase )",
			MinDelay:    1100 * time.Millisecond,
			MaxDelay:    60 * time.Second,
		},
		Linker: LinkerConfig{
			AutoLinkThreshold: 180,
			SearchLimit:       20,
		},
		Playback: PlaybackConfig{
			PollInterval:        2 * time.Second,
			RefreshBuffer:       5 * time.Minute,
			MaxPollAuthFailures: 3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Worker: WorkerConfig{
			DBPath:        "./discobase.db",
			PollInterval:  2 * time.Second,
			MaxRetries:    3,
			RetryDelay:    5 * time.Second,
			DedupCapacity: 10000,
		},
	}
}
