package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"discobase/internal/core"
)

// Queue is the persistent barcode scan queue worked off by the background
// worker. A barcode appears at most once; re-scanning a queued barcode only
// reports its current position.
type Queue struct {
	store  *Store
	dedup  *DedupStore
	logger *zap.Logger
}

// EnqueueResult reports what happened to an enqueued barcode.
type EnqueueResult struct {
	Item          *core.QueueItem `json:"item"`
	Position      int             `json:"position,omitempty"`
	AlreadyQueued bool            `json:"alreadyQueued"`
}

// Processing step names accepted by MarkStepComplete.
const (
	StepMetadata = "metadata"
	StepCoverArt = "coverart"
	StepTracks   = "tracks"
)

// NewQueue wraps the store's queue tables and seeds the dedup filter from
// whatever the queue already holds.
func NewQueue(store *Store, dedupCapacity int, logger *zap.Logger) (*Queue, error) {
	q := &Queue{
		store:  store,
		dedup:  NewDedupStore(dedupCapacity, 0.01),
		logger: logger.Named("queue"),
	}

	rows, err := store.db.Query(`SELECT barcode FROM barcode_queue`)
	if err != nil {
		return nil, fmt.Errorf("seed dedup filter: %w", err)
	}
	defer rows.Close()

	var barcodes []string
	for rows.Next() {
		var barcode string
		if err := rows.Scan(&barcode); err != nil {
			return nil, err
		}
		barcodes = append(barcodes, barcode)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	q.dedup.Load(barcodes)

	q.logger.Info("Scan queue ready", zap.Int("knownBarcodes", len(barcodes)))
	return q, nil
}

// Enqueue adds a barcode for scanning. A barcode already in the queue is not
// re-added; the result carries its current state instead.
func (q *Queue) Enqueue(barcode string) (*EnqueueResult, error) {
	if q.dedup.Has(barcode) {
		item, err := q.Status(barcode)
		if err != nil {
			return nil, err
		}
		if item != nil {
			position, _ := q.Position(barcode)
			return &EnqueueResult{Item: item, Position: position, AlreadyQueued: true}, nil
		}
		// Bloom false positive or stale entry, fall through to insert.
	}

	_, err := q.store.db.Exec(`INSERT INTO barcode_queue (barcode) VALUES (?)`, barcode)
	if err != nil {
		// Races with a concurrent insert land here via the UNIQUE constraint.
		if item, statusErr := q.Status(barcode); statusErr == nil && item != nil {
			q.dedup.Add(barcode)
			position, _ := q.Position(barcode)
			return &EnqueueResult{Item: item, Position: position, AlreadyQueued: true}, nil
		}
		return nil, fmt.Errorf("enqueue barcode %q: %w", barcode, err)
	}
	q.dedup.Add(barcode)

	item, err := q.Status(barcode)
	if err != nil {
		return nil, err
	}
	position, _ := q.Position(barcode)

	q.logger.Info("Barcode queued", zap.String("barcode", barcode), zap.Int("position", position))
	return &EnqueueResult{Item: item, Position: position}, nil
}

// NextPending returns the oldest pending item, or nil when the queue is idle.
func (q *Queue) NextPending() (*core.QueueItem, error) {
	row := q.store.db.QueryRow(
		`SELECT ` + queueColumns + ` FROM barcode_queue WHERE status = 'pending' ORDER BY created_at ASC, id ASC LIMIT 1`,
	)
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

// UpdateStatus moves an item to a new status, recording the attempt time and
// any error message.
func (q *Queue) UpdateStatus(barcode, status, errorMessage string) error {
	_, err := q.store.db.Exec(
		`UPDATE barcode_queue SET status = ?, last_attempt = ?, error_message = ? WHERE barcode = ?`,
		status, time.Now().UTC(), nullable(errorMessage), barcode,
	)
	return err
}

// MarkStepComplete records completion of one processing step, caching any
// metadata the step produced.
func (q *Queue) MarkStepComplete(barcode, step string, item *core.QueueItem) error {
	var column string
	switch step {
	case StepMetadata:
		column = "metadata_complete"
	case StepCoverArt:
		column = "coverart_complete"
	case StepTracks:
		column = "tracks_complete"
	default:
		return fmt.Errorf("invalid processing step %q", step)
	}

	query := `UPDATE barcode_queue SET ` + column + ` = TRUE, last_attempt = ?`
	args := []any{time.Now().UTC()}
	if item != nil && step == StepMetadata {
		query += `, artist = ?, album = ?, release_date = ?, mbid = ?`
		args = append(args, item.Artist, item.Album, item.ReleaseDate, item.MBID)
	}
	query += ` WHERE barcode = ?`
	args = append(args, barcode)

	_, err := q.store.db.Exec(query, args...)
	return err
}

// IncrementRetry bumps the retry counter after a transient failure.
func (q *Queue) IncrementRetry(barcode string) error {
	_, err := q.store.db.Exec(
		`UPDATE barcode_queue SET retry_count = retry_count + 1, last_attempt = ? WHERE barcode = ?`,
		time.Now().UTC(), barcode,
	)
	return err
}

// Position returns the 1-based position among pending items, 0 when the
// barcode is not pending.
func (q *Queue) Position(barcode string) (int, error) {
	var position int
	err := q.store.db.QueryRow(
		`SELECT COUNT(*) FROM barcode_queue
		 WHERE status = 'pending' AND created_at <= (
			SELECT created_at FROM barcode_queue WHERE barcode = ? AND status = 'pending'
		 )`,
		barcode,
	).Scan(&position)
	if err != nil {
		return 0, err
	}
	return position, nil
}

// Status returns the queue item for a barcode, nil when unknown.
func (q *Queue) Status(barcode string) (*core.QueueItem, error) {
	row := q.store.db.QueryRow(
		`SELECT `+queueColumns+` FROM barcode_queue WHERE barcode = ?`, barcode,
	)
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

// QueueStats summarizes the queue by status.
type QueueStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Complete   int `json:"complete"`
	Failed     int `json:"failed"`
}

// Stats returns queue counts by status.
func (q *Queue) Stats() (*QueueStats, error) {
	stats := &QueueStats{}
	err := q.store.db.QueryRow(
		`SELECT COUNT(*),
			SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'complete' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END)
		 FROM barcode_queue`,
	).Scan(&stats.Total,
		&nullInt{&stats.Pending}, &nullInt{&stats.Processing},
		&nullInt{&stats.Complete}, &nullInt{&stats.Failed})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// FailedItems returns all failed items, most recently attempted first.
func (q *Queue) FailedItems() ([]*core.QueueItem, error) {
	rows, err := q.store.db.Query(
		`SELECT ` + queueColumns + ` FROM barcode_queue WHERE status = 'failed' ORDER BY last_attempt DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*core.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ResetFailed moves a failed barcode back to pending for another attempt.
func (q *Queue) ResetFailed(barcode string) error {
	_, err := q.store.db.Exec(
		`UPDATE barcode_queue
		 SET status = 'pending', error_message = NULL, retry_count = 0
		 WHERE barcode = ? AND status = 'failed'`,
		barcode,
	)
	return err
}

// SaveBackoff persists the rate limiter's adaptive delay so restarts resume
// at the pace MusicBrainz last tolerated.
func (q *Queue) SaveBackoff(delay time.Duration, sawServerError bool) error {
	query := `UPDATE processing_stats SET current_backoff_seconds = ?, total_requests = total_requests + 1, last_request_time = ?`
	args := []any{delay.Seconds(), time.Now().UTC()}
	if sawServerError {
		query += `, failed_requests = failed_requests + 1, last_503_time = ?`
		args = append(args, time.Now().UTC())
	}
	query += ` WHERE id = 1`

	_, err := q.store.db.Exec(query, args...)
	return err
}

// LoadBackoff returns the persisted adaptive delay.
func (q *Queue) LoadBackoff() (time.Duration, error) {
	var seconds float64
	err := q.store.db.QueryRow(`SELECT current_backoff_seconds FROM processing_stats WHERE id = 1`).Scan(&seconds)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

const queueColumns = `id, barcode, status, created_at, last_attempt, retry_count,
	error_message, metadata_complete, coverart_complete, tracks_complete,
	artist, album, release_date, mbid`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueItem(row rowScanner) (*core.QueueItem, error) {
	item := &core.QueueItem{}
	var lastAttempt sql.NullTime
	var errorMessage, artist, album, releaseDate, mbid sql.NullString

	err := row.Scan(
		&item.ID, &item.Barcode, &item.Status, &item.CreatedAt, &lastAttempt,
		&item.RetryCount, &errorMessage,
		&item.MetadataComplete, &item.CoverArtComplete, &item.TracksComplete,
		&artist, &album, &releaseDate, &mbid,
	)
	if err != nil {
		return nil, err
	}

	item.LastAttempt = lastAttempt.Time
	item.ErrorMessage = errorMessage.String
	item.Artist = artist.String
	item.Album = album.String
	item.ReleaseDate = releaseDate.String
	item.MBID = mbid.String
	return item, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullInt scans a SUM() that is NULL on an empty table as zero.
type nullInt struct {
	dest *int
}

func (n *nullInt) Scan(value any) error {
	if value == nil {
		*n.dest = 0
		return nil
	}
	switch v := value.(type) {
	case int64:
		*n.dest = int(v)
	case float64:
		*n.dest = int(v)
	default:
		return fmt.Errorf("unexpected count type %T", value)
	}
	return nil
}
