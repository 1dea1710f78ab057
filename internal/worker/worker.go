// Package worker drains the barcode scan queue in the background. Items are
// processed strictly one at a time so the MusicBrainz rate limiter stays in
// control of the request pace.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"discobase/internal/catalog"
	"discobase/internal/core"
	"discobase/internal/mbz"
	"discobase/internal/store"
)

// MetadataSource is the slice of the MusicBrainz client the worker needs.
type MetadataSource interface {
	LookupBarcode(ctx context.Context, barcode string) (*core.CatalogAlbum, error)
	TrackNames(ctx context.Context, mbid string) ([]string, error)
	FrontCover(ctx context.Context, mbid string) ([]byte, error)
}

// Worker processes queued barcodes through three steps: metadata lookup,
// cover art download, and track listing. Steps are checkpointed in the queue
// so a retried item resumes where it stopped.
type Worker struct {
	config      *core.WorkerConfig
	queue       *store.Queue
	catalog     *catalog.Catalog
	tracks      *catalog.TrackCache
	noCoverArt  *catalog.NoCoverArtList
	source      MetadataSource
	coverArtDir string
	logger      *zap.Logger
}

func New(config *core.WorkerConfig, queue *store.Queue, cat *catalog.Catalog,
	tracks *catalog.TrackCache, noCoverArt *catalog.NoCoverArtList,
	source MetadataSource, coverArtDir string, logger *zap.Logger) *Worker {
	return &Worker{
		config:      config,
		queue:       queue,
		catalog:     cat,
		tracks:      tracks,
		noCoverArt:  noCoverArt,
		source:      source,
		coverArtDir: coverArtDir,
		logger:      logger.Named("worker"),
	}
}

// Run polls the queue until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Starting scan worker", zap.Duration("pollInterval", w.config.PollInterval))

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Scan worker stopped")
			return ctx.Err()
		case <-ticker.C:
			item, err := w.queue.NextPending()
			if err != nil {
				w.logger.Error("Failed to read queue", zap.Error(err))
				continue
			}
			if item == nil {
				continue
			}
			w.ProcessItem(ctx, item)
		}
	}
}

// ProcessItem runs all outstanding steps for one queue item.
func (w *Worker) ProcessItem(ctx context.Context, item *core.QueueItem) {
	barcode := item.Barcode
	w.logger.Info("Processing barcode",
		zap.String("barcode", barcode),
		zap.Int("attempt", item.RetryCount+1))

	if err := w.queue.UpdateStatus(barcode, core.QueueStatusProcessing, ""); err != nil {
		w.logger.Error("Failed to mark item processing", zap.Error(err))
		return
	}

	if err := w.runSteps(ctx, item); err != nil {
		w.handleFailure(ctx, item, err)
		return
	}

	if err := w.queue.UpdateStatus(barcode, core.QueueStatusComplete, ""); err != nil {
		w.logger.Error("Failed to mark item complete", zap.Error(err))
		return
	}
	w.logger.Info("Barcode processed", zap.String("barcode", barcode))
}

func (w *Worker) runSteps(ctx context.Context, item *core.QueueItem) error {
	barcode := item.Barcode

	if !item.MetadataComplete {
		if err := w.stepMetadata(ctx, barcode); err != nil {
			return err
		}
		// Reload so later steps see the cached MBID.
		fresh, err := w.queue.Status(barcode)
		if err != nil || fresh == nil {
			return fmt.Errorf("reload queue item: %w", err)
		}
		item = fresh
	}

	if !item.CoverArtComplete {
		if err := w.stepCoverArt(ctx, item); err != nil {
			return err
		}
	}

	if !item.TracksComplete {
		if err := w.stepTracks(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) stepMetadata(ctx context.Context, barcode string) error {
	album, err := w.source.LookupBarcode(ctx, barcode)
	if err != nil {
		return err
	}

	if err := w.catalog.Append(*album); err != nil {
		return fmt.Errorf("catalog append: %w", err)
	}

	meta := &core.QueueItem{
		Artist:      album.Artist,
		Album:       album.Title,
		ReleaseDate: album.FirstReleaseDate,
		MBID:        album.MusicBrainzID,
	}
	if err := w.queue.MarkStepComplete(barcode, store.StepMetadata, meta); err != nil {
		return fmt.Errorf("checkpoint metadata: %w", err)
	}

	w.logger.Info("Metadata lookup complete",
		zap.String("barcode", barcode),
		zap.String("artist", album.Artist),
		zap.String("album", album.Title))
	return nil
}

// stepCoverArt downloads the front cover. Anything short of a 503 marks the
// step complete so an item cannot wedge the queue; covers that never arrive
// land on the no-coverart list instead.
func (w *Worker) stepCoverArt(ctx context.Context, item *core.QueueItem) error {
	barcode := item.Barcode
	failed := false

	if item.MBID == "" {
		failed = true
	} else {
		data, err := w.source.FrontCover(ctx, item.MBID)
		switch {
		case errors.Is(err, mbz.ErrServerBusy):
			return err
		case err != nil:
			w.logger.Warn("Cover art unavailable", zap.String("barcode", barcode), zap.Error(err))
			failed = true
		default:
			if err := w.writeCoverArt(barcode, data); err != nil {
				w.logger.Error("Failed to store cover art", zap.String("barcode", barcode), zap.Error(err))
				failed = true
			}
		}
	}

	if failed {
		if err := w.noCoverArt.Add(catalog.NoCoverArtEntry{
			Barcode: barcode,
			Artist:  item.Artist,
			Album:   item.Album,
		}); err != nil {
			w.logger.Warn("Failed to record missing cover art", zap.Error(err))
		}
	}
	return w.queue.MarkStepComplete(barcode, store.StepCoverArt, nil)
}

func (w *Worker) stepTracks(ctx context.Context, item *core.QueueItem) error {
	barcode := item.Barcode

	if item.MBID != "" && w.tracks.Get(barcode) == nil {
		tracks, err := w.source.TrackNames(ctx, item.MBID)
		if errors.Is(err, mbz.ErrServerBusy) {
			return err
		}
		if err != nil {
			w.logger.Warn("Track listing unavailable", zap.String("barcode", barcode), zap.Error(err))
		} else if len(tracks) > 0 {
			if err := w.tracks.Put(barcode, tracks); err != nil {
				w.logger.Warn("Failed to cache tracks", zap.Error(err))
			}
			w.logger.Info("Track listing complete",
				zap.String("barcode", barcode),
				zap.Int("tracks", len(tracks)))
		}
	}
	return w.queue.MarkStepComplete(barcode, store.StepTracks, nil)
}

// handleFailure decides between retry and permanent failure. A barcode with
// no release fails immediately; transient errors go back to pending until the
// retry budget runs out.
func (w *Worker) handleFailure(ctx context.Context, item *core.QueueItem, cause error) {
	barcode := item.Barcode

	if errors.Is(cause, mbz.ErrNotFound) {
		w.failItem(barcode, "no album found for barcode")
		return
	}

	if err := w.queue.IncrementRetry(barcode); err != nil {
		w.logger.Error("Failed to bump retry count", zap.Error(err))
	}

	if item.RetryCount+1 >= w.config.MaxRetries {
		w.failItem(barcode, fmt.Sprintf("max retries exceeded: %v", cause))
		return
	}

	if err := w.queue.UpdateStatus(barcode, core.QueueStatusPending, cause.Error()); err != nil {
		w.logger.Error("Failed to requeue item", zap.Error(err))
		return
	}
	w.logger.Info("Requeued after transient error",
		zap.String("barcode", barcode),
		zap.Int("attempt", item.RetryCount+1),
		zap.Error(cause))

	if errors.Is(cause, mbz.ErrServerBusy) {
		// Give the server extra room beyond the limiter's backoff.
		delay := w.config.RetryDelay * time.Duration(item.RetryCount+1)
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
	}
}

func (w *Worker) failItem(barcode, message string) {
	if err := w.queue.UpdateStatus(barcode, core.QueueStatusFailed, message); err != nil {
		w.logger.Error("Failed to mark item failed", zap.Error(err))
		return
	}
	w.logger.Warn("Barcode failed", zap.String("barcode", barcode), zap.String("reason", message))
}

func (w *Worker) writeCoverArt(barcode string, data []byte) error {
	if err := os.MkdirAll(w.coverArtDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(w.coverArtDir, barcode+".jpg"), data, 0o644)
}
