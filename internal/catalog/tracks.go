package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// TrackCache caches track listings per barcode. The LRU bounds memory while
// the JSON sidecar file survives restarts; evicted entries simply get fetched
// from MusicBrainz again.
type TrackCache struct {
	path   string
	logger *zap.Logger

	mu  sync.Mutex
	lru *lru.Cache[string, []string]
}

// LoadTrackCache reads the JSON sidecar into a fresh cache. A missing or
// corrupt file starts empty.
func LoadTrackCache(path string, capacity int, logger *zap.Logger) (*TrackCache, error) {
	cache, err := lru.New[string, []string](capacity)
	if err != nil {
		return nil, fmt.Errorf("track cache capacity %d: %w", capacity, err)
	}

	tc := &TrackCache{
		path:   path,
		logger: logger.Named("tracks"),
		lru:    cache,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return tc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read track cache: %w", err)
	}

	stored := make(map[string][]string)
	if err := json.Unmarshal(data, &stored); err != nil {
		tc.logger.Warn("Track cache file unreadable, starting empty", zap.Error(err))
		return tc, nil
	}
	for barcode, tracks := range stored {
		cache.Add(barcode, tracks)
	}

	tc.logger.Info("Track cache loaded", zap.Int("entries", cache.Len()))
	return tc, nil
}

// Get returns the cached track listing, nil when not cached.
func (tc *TrackCache) Get(barcode string) []string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tracks, ok := tc.lru.Get(barcode)
	if !ok {
		return nil
	}
	return tracks
}

// Put caches a track listing and persists the cache to disk.
func (tc *TrackCache) Put(barcode string, tracks []string) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.lru.Add(barcode, tracks)
	return tc.persist()
}

// Len returns the number of cached listings.
func (tc *TrackCache) Len() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.lru.Len()
}

func (tc *TrackCache) persist() error {
	stored := make(map[string][]string, tc.lru.Len())
	for _, barcode := range tc.lru.Keys() {
		if tracks, ok := tc.lru.Peek(barcode); ok {
			stored[barcode] = tracks
		}
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("encode track cache: %w", err)
	}
	if err := os.WriteFile(tc.path, data, 0o644); err != nil {
		return fmt.Errorf("write track cache: %w", err)
	}
	return nil
}
