package tle

import (
	"sync"
	"sync/atomic"
	"time"
)

// holder bundles a dataset with its catalog-ID index so both swap atomically.
type holder struct {
	ds   *Dataset
	byID map[int]int // catalog ID -> index into ds.Satellites
}

// Store provides lock-free read access to the current TLE dataset. Readers
// see a consistent dataset+index pair; writers publish a complete
// replacement with Set.
type Store struct {
	current atomic.Pointer[holder]
	fetchMu sync.Mutex // serializes dataset refreshes
}

func NewStore() *Store {
	return &Store{}
}

// Get returns the current dataset, or nil if none has been loaded.
func (s *Store) Get() *Dataset {
	if h := s.current.Load(); h != nil {
		return h.ds
	}
	return nil
}

// Set publishes ds as the current dataset, indexing it by catalog number.
// The first entry wins when a catalog number repeats.
func (s *Store) Set(ds *Dataset) {
	byID := make(map[int]int, len(ds.Satellites))
	for i, e := range ds.Satellites {
		if _, dup := byID[e.CatalogID]; !dup {
			byID[e.CatalogID] = i
		}
	}
	s.current.Store(&holder{ds: ds, byID: byID})
}

// Lookup returns the entry for a catalog number, or nil when the dataset
// does not contain it or no dataset is loaded.
func (s *Store) Lookup(catalogID int) *Entry {
	h := s.current.Load()
	if h == nil {
		return nil
	}
	i, ok := h.byID[catalogID]
	if !ok {
		return nil
	}
	return &h.ds.Satellites[i]
}

// AgeSeconds returns the age of the current dataset in seconds, or -1 if no
// dataset is loaded.
func (s *Store) AgeSeconds() float64 {
	ds := s.Get()
	if ds == nil {
		return -1
	}
	return time.Since(ds.FetchedAt).Seconds()
}

// Lock serializes dataset refreshes so concurrent fetch requests do not
// interleave their fetch-parse-set sequences.
func (s *Store) Lock() {
	s.fetchMu.Lock()
}

func (s *Store) Unlock() {
	s.fetchMu.Unlock()
}
