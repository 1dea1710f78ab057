// Package linker matches catalog albums against Spotify search results and
// maintains per-user album links.
package linker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"discobase/internal/core"
	"discobase/pkg/fuzzy"
)

// Resolver searches Spotify for catalog albums, ranks the candidates and
// persists the chosen link. The auto-link threshold is policy, not law: it is
// injected via config so deployments can tune it.
type Resolver struct {
	spotify    core.AlbumSearcher
	profiles   core.LinkStore
	normalizer *fuzzy.Normalizer
	logger     *zap.Logger

	threshold   int
	searchLimit int
}

func NewResolver(config *core.LinkerConfig, spotify core.AlbumSearcher, profiles core.LinkStore, logger *zap.Logger) *Resolver {
	return &Resolver{
		spotify:     spotify,
		profiles:    profiles,
		normalizer:  fuzzy.NewNormalizer(),
		logger:      logger,
		threshold:   config.AutoLinkThreshold,
		searchLimit: config.SearchLimit,
	}
}

// SearchForAlbum queries Spotify for the catalog album and returns candidates
// sorted by descending score. Ties keep Spotify's original order: the sort is
// stable and only keys on score.
func (r *Resolver) SearchForAlbum(ctx context.Context, auth *core.SpotifyAuth, album *core.CatalogAlbum) ([]core.ScoredCandidate, error) {
	if album.Artist == "" {
		return nil, &core.SearchError{Reason: "catalog record has no artist"}
	}
	if album.Title == "" {
		return nil, &core.SearchError{Reason: "catalog record has no title"}
	}

	query := buildQuery(album)

	candidates, err := r.spotify.SearchAlbums(ctx, auth, query, r.searchLimit)
	if err != nil {
		return nil, &core.SearchError{Reason: "spotify search request failed", Err: err}
	}

	target := fuzzy.Album{
		Artist: album.Artist,
		Title:  album.Title,
		Year:   album.ReleaseYear(),
	}

	scored := make([]core.ScoredCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		score := r.normalizer.ScoreAlbum(target, fuzzy.Candidate{
			Artist:   candidate.Artist,
			Title:    candidate.Name,
			Year:     candidate.ReleaseYear(),
			HasImage: candidate.HasImage(),
		})
		scored = append(scored, core.ScoredCandidate{Candidate: candidate, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	r.logger.Debug("Scored album candidates",
		zap.String("barcode", album.Barcode),
		zap.String("query", query),
		zap.Int("candidates", len(scored)))

	return scored, nil
}

// AutoLink searches and, when the top candidate clears the threshold, links
// it immediately. Below the threshold nothing is persisted and the ranked
// candidates come back for a manual choice.
func (r *Resolver) AutoLink(ctx context.Context, auth *core.SpotifyAuth, username string, album *core.CatalogAlbum) (*core.LinkOutcome, error) {
	scored, err := r.SearchForAlbum(ctx, auth, album)
	if err != nil {
		return nil, err
	}

	if len(scored) == 0 {
		return &core.LinkOutcome{Linked: false, Confidence: core.ConfidenceNone}, nil
	}

	top := scored[0]
	if top.Score < r.threshold {
		r.logger.Info("Auto-link below threshold, manual choice required",
			zap.String("barcode", album.Barcode),
			zap.Int("topScore", top.Score),
			zap.Int("threshold", r.threshold))
		return &core.LinkOutcome{
			Linked:     false,
			Confidence: core.ConfidenceLow,
			Candidates: scored,
		}, nil
	}

	if err := r.Link(username, album.Barcode, &top.Candidate); err != nil {
		return nil, err
	}

	r.logger.Info("Auto-linked album",
		zap.String("barcode", album.Barcode),
		zap.String("spotifyID", top.Candidate.ID),
		zap.Int("score", top.Score))

	return &core.LinkOutcome{
		Linked:     true,
		Confidence: core.ConfidenceHigh,
		Chosen:     &top,
	}, nil
}

// Link persists a LinkedAlbum for (user, barcode), replacing any prior link.
// Idempotent by construction.
func (r *Resolver) Link(username, barcode string, candidate *core.AlbumCandidate) error {
	link := &core.LinkedAlbum{
		Barcode:     barcode,
		SpotifyID:   candidate.ID,
		SpotifyURI:  candidate.URI,
		Name:        candidate.Name,
		Artist:      candidate.Artist,
		ReleaseDate: candidate.ReleaseDate,
		TotalTracks: candidate.TotalTracks,
		Images:      candidate.Images,
		LinkedAt:    time.Now(),
	}

	if err := r.profiles.SaveLink(username, link); err != nil {
		return fmt.Errorf("failed to persist album link: %w", err)
	}
	return nil
}

// Unlink removes the link for a barcode and reports whether anything was
// removed. Calling it again is a no-op returning false.
func (r *Resolver) Unlink(username, barcode string) (bool, error) {
	removed, err := r.profiles.DeleteLink(username, barcode)
	if err != nil {
		return false, fmt.Errorf("failed to remove album link: %w", err)
	}
	return removed, nil
}

// GetLinked returns the link for a barcode, or nil when absent.
func (r *Resolver) GetLinked(username, barcode string) *core.LinkedAlbum {
	link, err := r.profiles.GetLink(username, barcode)
	if err != nil {
		r.logger.Warn("Failed to read album link",
			zap.String("barcode", barcode),
			zap.Error(err))
		return nil
	}
	return link
}

// AllLinked returns every link of the user, empty map when none exist.
func (r *Resolver) AllLinked(username string) map[string]*core.LinkedAlbum {
	links, err := r.profiles.AllLinks(username)
	if err != nil {
		r.logger.Warn("Failed to read album links", zap.Error(err))
		return map[string]*core.LinkedAlbum{}
	}
	return links
}

// BarcodeForContext reverse-looks-up which catalog barcode a playback context
// URI belongs to. The mapping is computed on demand, never stored.
func (r *Resolver) BarcodeForContext(username, contextURI string) string {
	if contextURI == "" {
		return ""
	}
	for barcode, link := range r.AllLinked(username) {
		if link.SpotifyURI == contextURI {
			return barcode
		}
	}
	return ""
}

// buildQuery quotes artist and title and adds the release year as a filter
// term when the catalog knows it.
func buildQuery(album *core.CatalogAlbum) string {
	var b strings.Builder
	fmt.Fprintf(&b, "album:%q artist:%q", album.Title, album.Artist)
	if year := album.ReleaseYear(); year > 0 {
		fmt.Fprintf(&b, " year:%d", year)
	}
	return b.String()
}
