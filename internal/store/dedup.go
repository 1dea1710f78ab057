package store

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DedupStore answers "was this barcode seen already" without touching the
// database. The Bloom filter rejects most unseen barcodes in one probe, the
// map gives an exact answer behind it, and the LRU bounds memory by evicting
// the oldest entries.
type DedupStore struct {
	barcodes          map[string]struct{}
	bloom             *bloom.BloomFilter
	lru               *lru.Cache[string, struct{}]
	mutex             sync.RWMutex
	capacity          int
	falsePositiveRate float64
}

// NewDedupStore creates a dedup store bounded to capacity entries.
func NewDedupStore(capacity int, falsePositiveRate float64) *DedupStore {
	lruCache, _ := lru.New[string, struct{}](capacity)

	return &DedupStore{
		barcodes:          make(map[string]struct{}),
		bloom:             bloom.NewWithEstimates(uint(capacity), falsePositiveRate),
		lru:               lruCache,
		capacity:          capacity,
		falsePositiveRate: falsePositiveRate,
	}
}

// Has reports whether the barcode was seen before.
func (ds *DedupStore) Has(barcode string) bool {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()

	if !ds.bloom.TestString(barcode) {
		return false
	}
	_, exists := ds.barcodes[barcode]
	return exists
}

// Add records a barcode as seen.
func (ds *DedupStore) Add(barcode string) {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	if _, exists := ds.barcodes[barcode]; exists {
		return
	}

	ds.barcodes[barcode] = struct{}{}
	ds.bloom.AddString(barcode)
	ds.lru.Add(barcode, struct{}{})

	if len(ds.barcodes) > ds.capacity {
		ds.evictOldest()
	}
}

// Remove forgets a barcode. The Bloom filter cannot unlearn it, so Has may
// need the exact map to answer correctly afterwards.
func (ds *DedupStore) Remove(barcode string) {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	if _, exists := ds.barcodes[barcode]; !exists {
		return
	}
	delete(ds.barcodes, barcode)
	ds.lru.Remove(barcode)
}

// Load clears the store and seeds it with the given barcodes, typically the
// queue contents at startup.
func (ds *DedupStore) Load(barcodes []string) {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	ds.barcodes = make(map[string]struct{})
	ds.bloom = bloom.NewWithEstimates(uint(ds.capacity), ds.falsePositiveRate)
	ds.lru.Purge()

	for _, barcode := range barcodes {
		if barcode == "" {
			continue
		}
		ds.barcodes[barcode] = struct{}{}
		ds.bloom.AddString(barcode)
		ds.lru.Add(barcode, struct{}{})
	}

	for len(ds.barcodes) > ds.capacity {
		ds.evictOldest()
	}
}

// Size returns the number of barcodes currently tracked.
func (ds *DedupStore) Size() int {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()
	return len(ds.barcodes)
}

func (ds *DedupStore) evictOldest() {
	oldest, _, ok := ds.lru.GetOldest()
	if !ok {
		return
	}
	delete(ds.barcodes, oldest)
	ds.lru.Remove(oldest)
}
