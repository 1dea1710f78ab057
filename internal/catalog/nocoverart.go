package catalog

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

var noCoverArtHeader = []string{"Barcode", "Artist", "Album"}

// NoCoverArtEntry records an album whose cover art lookup came up empty, so
// the worker does not retry it on every pass and the UI can show a placeholder.
type NoCoverArtEntry struct {
	Barcode string `json:"barcode"`
	Artist  string `json:"artist"`
	Album   string `json:"album"`
}

// NoCoverArtList is the CSV-backed list of barcodes without cover art.
type NoCoverArtList struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	entries []NoCoverArtEntry
	byCode  map[string]int
}

// LoadNoCoverArt reads the list, starting empty when the file is missing.
func LoadNoCoverArt(path string, logger *zap.Logger) (*NoCoverArtList, error) {
	l := &NoCoverArtList{
		path:   path,
		logger: logger.Named("nocoverart"),
		byCode: make(map[string]int),
	}

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open no-coverart list: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse no-coverart list: %w", err)
	}

	for i, record := range records {
		if i == 0 && len(record) > 0 && record[0] == "Barcode" {
			continue
		}
		if len(record) == 0 || record[0] == "" {
			continue
		}
		entry := NoCoverArtEntry{Barcode: record[0]}
		if len(record) > 1 {
			entry.Artist = record[1]
		}
		if len(record) > 2 {
			entry.Album = record[2]
		}
		if _, seen := l.byCode[entry.Barcode]; seen {
			continue
		}
		l.byCode[entry.Barcode] = len(l.entries)
		l.entries = append(l.entries, entry)
	}
	return l, nil
}

// Has reports whether a barcode is known to have no cover art.
func (l *NoCoverArtList) Has(barcode string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.byCode[barcode]
	return ok
}

// All returns every entry.
func (l *NoCoverArtList) All() []NoCoverArtEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := make([]NoCoverArtEntry, len(l.entries))
	copy(entries, l.entries)
	return entries
}

// Add appends an entry and rewrites the file. Duplicates are ignored.
func (l *NoCoverArtList) Add(entry NoCoverArtEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, seen := l.byCode[entry.Barcode]; seen {
		return nil
	}
	l.byCode[entry.Barcode] = len(l.entries)
	l.entries = append(l.entries, entry)
	return l.persist()
}

// Remove drops a barcode from the list, rewriting the file. Called when cover
// art shows up after all, e.g. a manual upload.
func (l *NoCoverArtList) Remove(barcode string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.byCode[barcode]
	if !ok {
		return nil
	}
	l.entries = append(l.entries[:idx], l.entries[idx+1:]...)
	delete(l.byCode, barcode)
	for i := idx; i < len(l.entries); i++ {
		l.byCode[l.entries[i].Barcode] = i
	}
	return l.persist()
}

func (l *NoCoverArtList) persist() error {
	file, err := os.Create(l.path)
	if err != nil {
		return fmt.Errorf("write no-coverart list: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(noCoverArtHeader); err != nil {
		return err
	}
	for _, entry := range l.entries {
		if err := writer.Write([]string{entry.Barcode, entry.Artist, entry.Album}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
