package core

import (
	"context"
	"time"
)

// CatalogAlbum is a physical release in the CSV catalog, keyed by barcode.
// Records are immutable once fetched from MusicBrainz.
type CatalogAlbum struct {
	Barcode          string `json:"barcode"`
	Artist           string `json:"artist"`
	Title            string `json:"title"`
	FirstReleaseDate string `json:"firstReleaseDate,omitempty"`
	Country          string `json:"country,omitempty"`
	MusicBrainzID    string `json:"musicBrainzId,omitempty"`
}

// ReleaseYear returns the four-digit year from FirstReleaseDate, or 0 when
// the date is absent or malformed.
func (a CatalogAlbum) ReleaseYear() int {
	return yearOf(a.FirstReleaseDate)
}

// AlbumCandidate is a Spotify album returned by search, before linking.
type AlbumCandidate struct {
	ID          string  `json:"id"`
	URI         string  `json:"uri"`
	Name        string  `json:"name"`
	Artist      string  `json:"artist"`
	ReleaseDate string  `json:"releaseDate"`
	TotalTracks int     `json:"totalTracks"`
	Images      []Image `json:"images"`
	ExternalURL string  `json:"externalUrl,omitempty"`
}

// ReleaseYear returns the four-digit year from ReleaseDate, or 0.
func (c AlbumCandidate) ReleaseYear() int {
	return yearOf(c.ReleaseDate)
}

// HasImage reports whether the candidate carries any cover image.
func (c AlbumCandidate) HasImage() bool {
	return len(c.Images) > 0
}

// Image is a cover image reference.
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ScoredCandidate pairs a search candidate with its fuzzy-match score.
type ScoredCandidate struct {
	Candidate AlbumCandidate `json:"candidate"`
	Score     int            `json:"score"`
}

// LinkedAlbum associates a catalog barcode with a Spotify album for one user.
// At most one LinkedAlbum exists per (user, barcode).
type LinkedAlbum struct {
	Barcode     string    `json:"barcode"`
	SpotifyID   string    `json:"spotifyId"`
	SpotifyURI  string    `json:"spotifyUri"`
	Name        string    `json:"name"`
	Artist      string    `json:"artist"`
	ReleaseDate string    `json:"releaseDate"`
	TotalTracks int       `json:"totalTracks"`
	Images      []Image   `json:"images"`
	LinkedAt    time.Time `json:"linkedAt"`
}

// LinkConfidence classifies an auto-link outcome.
type LinkConfidence string

const (
	// ConfidenceNone means the search returned no candidates at all.
	ConfidenceNone LinkConfidence = "none"
	// ConfidenceLow means candidates exist but none cleared the auto-link threshold.
	ConfidenceLow LinkConfidence = "low"
	// ConfidenceHigh means the top candidate cleared the threshold and was linked.
	ConfidenceHigh LinkConfidence = "high"
)

// LinkOutcome is the result of an auto-link attempt. Candidates is populated
// only for low-confidence outcomes, where the caller must present a manual choice.
type LinkOutcome struct {
	Linked     bool              `json:"linked"`
	Confidence LinkConfidence    `json:"confidence"`
	Chosen     *ScoredCandidate  `json:"chosen,omitempty"`
	Candidates []ScoredCandidate `json:"candidates,omitempty"`
}

// SpotifyAuth holds a user's Spotify tokens.
type SpotifyAuth struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
}

// Valid reports whether an access token is present.
func (a *SpotifyAuth) Valid() bool {
	return a != nil && a.AccessToken != ""
}

// ExpiresWithin reports whether the token expires inside the given buffer.
func (a *SpotifyAuth) ExpiresWithin(buffer time.Duration) bool {
	if a == nil {
		return true
	}
	return time.Until(a.ExpiresAt) < buffer
}

// DeviceType enumerates Spotify playback device types.
type DeviceType string

const (
	DeviceComputer   DeviceType = "computer"
	DeviceSmartphone DeviceType = "smartphone"
	DeviceTablet     DeviceType = "tablet"
	DeviceSpeaker    DeviceType = "speaker"
	DeviceTV         DeviceType = "tv"
	DeviceConsole    DeviceType = "console"
	DeviceOther      DeviceType = "other"
)

// PlaybackDevice is a transient playback endpoint reported by Spotify.
// Only the chosen preference is ever persisted.
type PlaybackDevice struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Type   DeviceType `json:"type"`
	Active bool       `json:"is_active"`
}

// PreferredDevice is the persisted playback-device preference of a user.
type PreferredDevice struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Type     DeviceType `json:"type"`
	LastUsed time.Time  `json:"lastUsed"`
}

// PlaybackState is the reconciled view of current playback, sourced from
// embedded-player push events or remote polling.
type PlaybackState struct {
	Playing     bool   `json:"isPlaying"`
	ProgressMs  int    `json:"progressMs"`
	TrackID     string `json:"trackId,omitempty"`
	TrackName   string `json:"trackName,omitempty"`
	TrackArtist string `json:"trackArtist,omitempty"`
	ContextURI  string `json:"contextUri,omitempty"`
	DeviceID    string `json:"activeDeviceId,omitempty"`
	DurationMs  int    `json:"durationMs,omitempty"`
}

// UserProfile is a catalog user. The first profile created is the admin.
type UserProfile struct {
	Username        string           `json:"username"`
	IsAdmin         bool             `json:"isAdmin"`
	SyncID          string           `json:"syncId,omitempty"`
	StarredAlbums   map[string]bool  `json:"starredAlbums"`
	StarredTracks   map[string][]int `json:"starredTracks"`
	Auth            *SpotifyAuth     `json:"spotifyAuth,omitempty"`
	PreferredDevice *PreferredDevice `json:"spotifyPreferredDevice,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// QueueItem is a barcode queued for scanning.
type QueueItem struct {
	ID               int64     `json:"id"`
	Barcode          string    `json:"barcode"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
	LastAttempt      time.Time `json:"lastAttempt,omitempty"`
	RetryCount       int       `json:"retryCount"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
	MetadataComplete bool      `json:"metadataComplete"`
	CoverArtComplete bool      `json:"coverartComplete"`
	TracksComplete   bool      `json:"tracksComplete"`
	Artist           string    `json:"artist,omitempty"`
	Album            string    `json:"album,omitempty"`
	ReleaseDate      string    `json:"releaseDate,omitempty"`
	MBID             string    `json:"mbid,omitempty"`
}

// Queue item statuses.
const (
	QueueStatusPending    = "pending"
	QueueStatusProcessing = "processing"
	QueueStatusComplete   = "complete"
	QueueStatusFailed     = "failed"
)

// AlbumSearcher is the search-only slice of the Spotify client, all the
// link resolver needs.
type AlbumSearcher interface {
	SearchAlbums(ctx context.Context, auth *SpotifyAuth, query string, limit int) ([]AlbumCandidate, error)
}

// SpotifyClient is the Spotify Web API surface the resolvers and the playback
// controller depend on. Calls are scoped to one user's token.
type SpotifyClient interface {
	AlbumSearcher
	Devices(ctx context.Context, auth *SpotifyAuth) ([]PlaybackDevice, error)
	PlayerState(ctx context.Context, auth *SpotifyAuth) (*PlaybackState, error)
	Play(ctx context.Context, auth *SpotifyAuth, contextURI, deviceID string) error
	Pause(ctx context.Context, auth *SpotifyAuth, deviceID string) error
	Next(ctx context.Context, auth *SpotifyAuth, deviceID string) error
	Previous(ctx context.Context, auth *SpotifyAuth, deviceID string) error
	Seek(ctx context.Context, auth *SpotifyAuth, positionMs int, deviceID string) error
	TransferPlayback(ctx context.Context, auth *SpotifyAuth, deviceID string, play bool) error
}

// TokenRefresher exchanges a refresh token for fresh credentials.
type TokenRefresher interface {
	Refresh(ctx context.Context, auth *SpotifyAuth) (*SpotifyAuth, error)
}

// LinkStore persists per-user album links. Reads return nil/empty, never
// errors, for absent records.
type LinkStore interface {
	SaveLink(username string, link *LinkedAlbum) error
	DeleteLink(username, barcode string) (bool, error)
	GetLink(username, barcode string) (*LinkedAlbum, error)
	AllLinks(username string) (map[string]*LinkedAlbum, error)
}

// AuthStore persists per-user Spotify credentials.
type AuthStore interface {
	SaveAuth(username string, auth *SpotifyAuth) error
	GetAuth(username string) (*SpotifyAuth, error)
	ClearAuth(username string) error
}

// DeviceStore persists the playback-device preference.
type DeviceStore interface {
	SetPreferredDevice(username string, device *PreferredDevice) error
	GetPreferredDevice(username string) (*PreferredDevice, error)
}

// ProfileStore is the full persistence surface for user profiles and
// everything hanging off them.
type ProfileStore interface {
	LinkStore
	AuthStore
	DeviceStore

	CreateProfile(username string) (*UserProfile, error)
	GetProfile(username string) (*UserProfile, error)
	DeleteProfile(requestedBy, username string) error
	ListProfiles() ([]*UserProfile, error)
	SetSyncID(username, syncID string) error

	StarAlbum(username, barcode string) error
	UnstarAlbum(username, barcode string) error
	StarTrack(username, barcode string, trackNumber int) error
	UnstarTrack(username, barcode string, trackNumber int) error

	SaveSyncBackup(syncID, kind string, payload []byte) error
	GetSyncBackup(syncID, kind string) ([]byte, error)
}

// LocalPlayer is an embedded playback session hosted by this client, as
// opposed to a remote Spotify Connect device. The HTTP layer bridges it to
// the browser's playback SDK.
type LocalPlayer interface {
	Connect(ctx context.Context, auth *SpotifyAuth) error
	Disconnect()
	DeviceID() string
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Seek(ctx context.Context, positionMs int) error
	// StateChanges delivers push events when playback changes on this device.
	StateChanges() <-chan PlaybackState
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	year := 0
	for _, r := range date[:4] {
		if r < '0' || r > '9' {
			return 0
		}
		year = year*10 + int(r-'0')
	}
	return year
}
