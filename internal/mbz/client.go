// Package mbz is a small MusicBrainz + Cover Art Archive client covering
// barcode lookups, track listings, and front-cover downloads.
package mbz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"discobase/internal/core"
)

var (
	// ErrNotFound means no release carries the barcode.
	ErrNotFound = errors.New("no release found for barcode")

	// ErrServerBusy means MusicBrainz answered 503. The caller should retry
	// the whole item later; the limiter has already backed off.
	ErrServerBusy = errors.New("musicbrainz server busy")

	// ErrNoCoverArt means the Cover Art Archive has no front image.
	ErrNoCoverArt = errors.New("no cover art available")
)

// Client queries the MusicBrainz web service. Every request passes through
// the adaptive limiter; MusicBrainz bans clients without a proper User-Agent,
// so one is mandatory.
type Client struct {
	baseURL     string
	coverArtURL string
	userAgent   string
	http        *http.Client
	limiter     *AdaptiveLimiter
	logger      *zap.Logger
}

func NewClient(config *core.MusicBrainzConfig, limiter *AdaptiveLimiter, logger *zap.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimSuffix(config.BaseURL, "/"),
		coverArtURL: strings.TrimSuffix(config.CoverArtURL, "/"),
		userAgent:   config.UserAgent,
		http:        &http.Client{Timeout: 30 * time.Second},
		limiter:     limiter,
		logger:      logger.Named("mbz"),
	}
}

type searchResponse struct {
	Releases []releaseJSON `json:"releases"`
}

type releaseJSON struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Country      string       `json:"country"`
	Date         string       `json:"date"`
	ArtistCredit []struct {
		Name string `json:"name"`
	} `json:"artist-credit"`
	ReleaseGroup *struct {
		FirstReleaseDate string `json:"first-release-date"`
	} `json:"release-group"`
	Media []struct {
		Tracks []struct {
			Title     string `json:"title"`
			Recording struct {
				Title string `json:"title"`
			} `json:"recording"`
		} `json:"tracks"`
	} `json:"media"`
}

// LookupBarcode finds the release for a barcode and resolves its release
// group for the original release date. Two requests: a search, then a detail
// fetch for the first hit.
func (c *Client) LookupBarcode(ctx context.Context, barcode string) (*core.CatalogAlbum, error) {
	query := url.Values{
		"query": []string{"barcode:" + barcode},
		"fmt":   []string{"json"},
	}

	var search searchResponse
	if err := c.getJSON(ctx, c.baseURL+"/release?"+query.Encode(), &search); err != nil {
		return nil, err
	}
	if len(search.Releases) == 0 {
		return nil, ErrNotFound
	}
	first := search.Releases[0]

	detail, err := c.releaseDetail(ctx, first.ID, "release-groups")
	if err != nil {
		return nil, err
	}

	album := &core.CatalogAlbum{
		Barcode:       barcode,
		Artist:        artistName(first),
		Title:         first.Title,
		Country:       first.Country,
		MusicBrainzID: first.ID,
	}
	if detail.ReleaseGroup != nil && detail.ReleaseGroup.FirstReleaseDate != "" {
		album.FirstReleaseDate = detail.ReleaseGroup.FirstReleaseDate
	} else {
		album.FirstReleaseDate = first.Date
	}
	if album.Artist == "" {
		album.Artist = artistName(*detail)
	}

	c.logger.Info("Barcode resolved",
		zap.String("barcode", barcode),
		zap.String("artist", album.Artist),
		zap.String("title", album.Title))
	return album, nil
}

// TrackNames returns the track titles of a release in medium order.
func (c *Client) TrackNames(ctx context.Context, mbid string) ([]string, error) {
	detail, err := c.releaseDetail(ctx, mbid, "recordings")
	if err != nil {
		return nil, err
	}

	var tracks []string
	for _, medium := range detail.Media {
		for _, track := range medium.Tracks {
			title := track.Recording.Title
			if title == "" {
				title = track.Title
			}
			if title != "" {
				tracks = append(tracks, title)
			}
		}
	}
	return tracks, nil
}

// FrontCover downloads the front cover image for a release.
func (c *Client) FrontCover(ctx context.Context, mbid string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.coverArtURL+"/release/"+mbid+"/front", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch cover art: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		c.limiter.OnSuccess()
		return io.ReadAll(resp.Body)
	case http.StatusNotFound:
		c.limiter.OnSuccess()
		return nil, ErrNoCoverArt
	case http.StatusServiceUnavailable:
		c.limiter.OnServerBusy()
		return nil, ErrServerBusy
	default:
		return nil, fmt.Errorf("cover art archive returned %d", resp.StatusCode)
	}
}

func (c *Client) releaseDetail(ctx context.Context, mbid, includes string) (*releaseJSON, error) {
	query := url.Values{
		"inc": []string{includes},
		"fmt": []string{"json"},
	}
	detail := &releaseJSON{}
	if err := c.getJSON(ctx, c.baseURL+"/release/"+mbid+"?"+query.Encode(), detail); err != nil {
		return nil, err
	}
	return detail, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("musicbrainz request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		c.limiter.OnServerBusy()
		return ErrServerBusy
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("musicbrainz returned %d", resp.StatusCode)
	}
	c.limiter.OnSuccess()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode musicbrainz response: %w", err)
	}
	return nil
}

func artistName(release releaseJSON) string {
	names := make([]string, 0, len(release.ArtistCredit))
	for _, credit := range release.ArtistCredit {
		if credit.Name != "" {
			names = append(names, credit.Name)
		}
	}
	return strings.Join(names, ", ")
}
