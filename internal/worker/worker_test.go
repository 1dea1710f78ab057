package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"discobase/internal/catalog"
	"discobase/internal/core"
	"discobase/internal/mbz"
	"discobase/internal/store"
)

type mockSource struct {
	album     *core.CatalogAlbum
	albumErr  error
	tracks    []string
	tracksErr error
	cover     []byte
	coverErr  error
}

func (m *mockSource) LookupBarcode(context.Context, string) (*core.CatalogAlbum, error) {
	return m.album, m.albumErr
}

func (m *mockSource) TrackNames(context.Context, string) ([]string, error) {
	return m.tracks, m.tracksErr
}

func (m *mockSource) FrontCover(context.Context, string) ([]byte, error) {
	return m.cover, m.coverErr
}

type fixture struct {
	worker  *Worker
	queue   *store.Queue
	catalog *catalog.Catalog
	tracks  *catalog.TrackCache
	noCover *catalog.NoCoverArtList
	dir     string
}

func newFixture(t *testing.T, source *mockSource) *fixture {
	t.Helper()
	dir := t.TempDir()

	s, err := store.Open(filepath.Join(dir, "test.db"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	queue, err := store.NewQueue(s, 100, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.Load(filepath.Join(dir, "catalog.csv"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	tracks, err := catalog.LoadTrackCache(filepath.Join(dir, "tracks.json"), 16, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	noCover, err := catalog.LoadNoCoverArt(filepath.Join(dir, "no_coverart.csv"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	config := &core.WorkerConfig{
		PollInterval: 5 * time.Millisecond,
		MaxRetries:   3,
		RetryDelay:   time.Millisecond,
	}
	coverDir := filepath.Join(dir, "coverart")
	return &fixture{
		worker:  New(config, queue, cat, tracks, noCover, source, coverDir, zap.NewNop()),
		queue:   queue,
		catalog: cat,
		tracks:  tracks,
		noCover: noCover,
		dir:     coverDir,
	}
}

func enqueue(t *testing.T, f *fixture, barcode string) *core.QueueItem {
	t.Helper()
	if _, err := f.queue.Enqueue(barcode); err != nil {
		t.Fatal(err)
	}
	item, err := f.queue.Status(barcode)
	if err != nil {
		t.Fatal(err)
	}
	return item
}

func dsotmAlbum() *core.CatalogAlbum {
	return &core.CatalogAlbum{
		Barcode:          "5099902987613",
		Artist:           "Pink Floyd",
		Title:            "The Dark Side of the Moon",
		FirstReleaseDate: "1973-03-01",
		Country:          "GB",
		MusicBrainzID:    "mbid-1",
	}
}

func TestProcessItem_AllStepsComplete(t *testing.T) {
	source := &mockSource{
		album:  dsotmAlbum(),
		tracks: []string{"Speak to Me", "Breathe (In the Air)"},
		cover:  []byte("jpeg-bytes"),
	}
	f := newFixture(t, source)
	item := enqueue(t, f, "5099902987613")

	f.worker.ProcessItem(context.Background(), item)

	got, err := f.queue.Status("5099902987613")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != core.QueueStatusComplete {
		t.Fatalf("expected complete, got %q (%s)", got.Status, got.ErrorMessage)
	}
	if !got.MetadataComplete || !got.CoverArtComplete || !got.TracksComplete {
		t.Errorf("steps not checkpointed: %+v", got)
	}
	if got.Artist != "Pink Floyd" || got.MBID != "mbid-1" {
		t.Errorf("metadata not cached on item: %+v", got)
	}

	if !f.catalog.Has("5099902987613") {
		t.Error("album not appended to catalog")
	}
	if tracks := f.tracks.Get("5099902987613"); len(tracks) != 2 {
		t.Errorf("tracks not cached: %v", tracks)
	}
	cover, err := os.ReadFile(filepath.Join(f.dir, "5099902987613.jpg"))
	if err != nil || string(cover) != "jpeg-bytes" {
		t.Errorf("cover art not written: %v", err)
	}
	if f.noCover.Has("5099902987613") {
		t.Error("barcode wrongly listed as missing cover art")
	}
}

func TestProcessItem_UnknownBarcodeFailsImmediately(t *testing.T) {
	source := &mockSource{albumErr: mbz.ErrNotFound}
	f := newFixture(t, source)
	item := enqueue(t, f, "000000000000")

	f.worker.ProcessItem(context.Background(), item)

	got, err := f.queue.Status("000000000000")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != core.QueueStatusFailed {
		t.Fatalf("expected failed, got %q", got.Status)
	}
	if got.RetryCount != 0 {
		t.Errorf("a missing barcode must not burn retries, count %d", got.RetryCount)
	}
}

func TestProcessItem_ServerBusyRequeues(t *testing.T) {
	source := &mockSource{albumErr: mbz.ErrServerBusy}
	f := newFixture(t, source)
	item := enqueue(t, f, "5099902987613")

	f.worker.ProcessItem(context.Background(), item)

	got, err := f.queue.Status("5099902987613")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != core.QueueStatusPending {
		t.Fatalf("expected pending for retry, got %q", got.Status)
	}
	if got.RetryCount != 1 {
		t.Errorf("expected retry count 1, got %d", got.RetryCount)
	}
}

func TestProcessItem_MaxRetriesExhausted(t *testing.T) {
	source := &mockSource{albumErr: mbz.ErrServerBusy}
	f := newFixture(t, source)
	enqueue(t, f, "5099902987613")

	for i := 0; i < 3; i++ {
		fresh, err := f.queue.Status("5099902987613")
		if err != nil {
			t.Fatal(err)
		}
		f.worker.ProcessItem(context.Background(), fresh)
	}

	got, err := f.queue.Status("5099902987613")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != core.QueueStatusFailed {
		t.Fatalf("expected failed after max retries, got %q", got.Status)
	}
}

func TestProcessItem_MissingCoverArtRecorded(t *testing.T) {
	source := &mockSource{
		album:    dsotmAlbum(),
		tracks:   []string{"Speak to Me"},
		coverErr: mbz.ErrNoCoverArt,
	}
	f := newFixture(t, source)
	item := enqueue(t, f, "5099902987613")

	f.worker.ProcessItem(context.Background(), item)

	got, err := f.queue.Status("5099902987613")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != core.QueueStatusComplete {
		t.Fatalf("missing cover art must not fail the item, got %q", got.Status)
	}
	if !f.noCover.Has("5099902987613") {
		t.Error("barcode not recorded on the no-coverart list")
	}
}

func TestProcessItem_ResumesFromCheckpoint(t *testing.T) {
	// First pass: metadata succeeds, cover art hits a 503.
	source := &mockSource{
		album:    dsotmAlbum(),
		tracks:   []string{"Speak to Me"},
		coverErr: mbz.ErrServerBusy,
	}
	f := newFixture(t, source)
	item := enqueue(t, f, "5099902987613")

	f.worker.ProcessItem(context.Background(), item)

	mid, err := f.queue.Status("5099902987613")
	if err != nil {
		t.Fatal(err)
	}
	if !mid.MetadataComplete || mid.CoverArtComplete {
		t.Fatalf("expected metadata checkpointed only, got %+v", mid)
	}

	// Second pass resumes at cover art without another metadata lookup.
	source.albumErr = errors.New("metadata must not be fetched again")
	source.album = nil
	source.coverErr = nil
	source.cover = []byte("jpeg-bytes")

	f.worker.ProcessItem(context.Background(), mid)

	got, err := f.queue.Status("5099902987613")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != core.QueueStatusComplete {
		t.Fatalf("expected complete after resume, got %q (%s)", got.Status, got.ErrorMessage)
	}
}
