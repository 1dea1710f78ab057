// Package catalog manages the CSV album catalog and its sidecar caches. The
// CSV file stays the source of truth so it can be edited or version-controlled
// outside the application.
package catalog

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"

	"discobase/internal/core"
)

var catalogHeader = []string{"Barcode", "Artist", "Album/Release", "First Release", "Country", "MusicBrainz ID"}

// Catalog is the in-memory view of the CSV catalog, reloaded once at startup
// and kept consistent with the file on every append.
type Catalog struct {
	path   string
	logger *zap.Logger

	mu     sync.RWMutex
	albums []core.CatalogAlbum
	byCode map[string]int
}

// Load reads the catalog CSV. A missing file is an empty catalog, not an
// error, so a fresh install starts clean.
func Load(path string, logger *zap.Logger) (*Catalog, error) {
	c := &Catalog{
		path:   path,
		logger: logger.Named("catalog"),
		byCode: make(map[string]int),
	}

	albums, byCode, err := readAlbums(path)
	if err != nil {
		return nil, err
	}
	if albums == nil {
		c.logger.Info("No catalog file yet, starting empty", zap.String("path", path))
		return c, nil
	}

	c.albums = albums
	c.byCode = byCode
	c.logger.Info("Catalog loaded", zap.String("path", path), zap.Int("albums", len(c.albums)))
	return c, nil
}

// Reload re-reads the CSV, picking up edits made outside the application.
func (c *Catalog) Reload() error {
	albums, byCode, err := readAlbums(c.path)
	if err != nil {
		return err
	}
	if albums == nil {
		albums, byCode = nil, make(map[string]int)
	}

	c.mu.Lock()
	c.albums = albums
	c.byCode = byCode
	c.mu.Unlock()

	c.logger.Info("Catalog reloaded", zap.Int("albums", len(albums)))
	return nil
}

// readAlbums parses the CSV at path. A missing file returns nil albums with
// no error.
func readAlbums(path string) ([]core.CatalogAlbum, map[string]int, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open catalog: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse catalog: %w", err)
	}

	albums := []core.CatalogAlbum{}
	byCode := make(map[string]int)
	for i, record := range records {
		if i == 0 && len(record) > 0 && record[0] == "Barcode" {
			continue
		}
		album := albumFromRecord(record)
		if album.Barcode == "" {
			continue
		}
		if _, seen := byCode[album.Barcode]; seen {
			continue
		}
		byCode[album.Barcode] = len(albums)
		albums = append(albums, album)
	}
	return albums, byCode, nil
}

// Albums returns the catalog sorted by artist, then first release date.
func (c *Catalog) Albums() []core.CatalogAlbum {
	c.mu.RLock()
	albums := make([]core.CatalogAlbum, len(c.albums))
	copy(albums, c.albums)
	c.mu.RUnlock()

	sort.SliceStable(albums, func(i, j int) bool {
		if albums[i].Artist != albums[j].Artist {
			return albums[i].Artist < albums[j].Artist
		}
		return albums[i].FirstReleaseDate < albums[j].FirstReleaseDate
	})
	return albums
}

// Get returns the album for a barcode, nil when unknown.
func (c *Catalog) Get(barcode string) *core.CatalogAlbum {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.byCode[barcode]
	if !ok {
		return nil
	}
	album := c.albums[idx]
	return &album
}

// Has reports whether a barcode is already cataloged.
func (c *Catalog) Has(barcode string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.byCode[barcode]
	return ok
}

// Len returns the number of cataloged albums.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.albums)
}

// Append adds an album to the catalog, writing it to the CSV file first. An
// already-cataloged barcode is a no-op.
func (c *Catalog) Append(album core.CatalogAlbum) error {
	if album.Barcode == "" {
		return fmt.Errorf("album has no barcode")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, seen := c.byCode[album.Barcode]; seen {
		return nil
	}

	writeHeader := false
	if _, err := os.Stat(c.path); os.IsNotExist(err) {
		writeHeader = true
	}

	file, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open catalog for append: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if writeHeader {
		if err := writer.Write(catalogHeader); err != nil {
			return fmt.Errorf("write catalog header: %w", err)
		}
	}
	if err := writer.Write(recordFromAlbum(album)); err != nil {
		return fmt.Errorf("write catalog row: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush catalog: %w", err)
	}

	c.byCode[album.Barcode] = len(c.albums)
	c.albums = append(c.albums, album)

	c.logger.Info("Album cataloged",
		zap.String("barcode", album.Barcode),
		zap.String("artist", album.Artist),
		zap.String("title", album.Title))
	return nil
}

func albumFromRecord(record []string) core.CatalogAlbum {
	field := func(i int) string {
		if i < len(record) {
			return record[i]
		}
		return ""
	}
	return core.CatalogAlbum{
		Barcode:          field(0),
		Artist:           field(1),
		Title:            field(2),
		FirstReleaseDate: field(3),
		Country:          field(4),
		MusicBrainzID:    field(5),
	}
}

func recordFromAlbum(album core.CatalogAlbum) []string {
	return []string{
		album.Barcode,
		album.Artist,
		album.Title,
		album.FirstReleaseDate,
		album.Country,
		album.MusicBrainzID,
	}
}
