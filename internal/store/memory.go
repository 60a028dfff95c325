package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bchazalet/weatherapp/internal/weather"
)

var (
	// ErrNotFound is returned when no data is available for a given location.
	ErrNotFound = errors.New("no weather data for location")
)

type slot struct {
	loc      weather.Location
	record   weather.Record
	storedAt time.Time
}

// MemoryStore keeps the currently displayed record for each location.
// A save replaces the previous record; nothing is merged or kept as history.
type MemoryStore struct {
	mu sync.RWMutex

	// key: location key
	data map[string]slot

	// slots older than maxAge are treated as empty (0 = never expire)
	maxAge time.Duration
	now    func() time.Time
}

var _ weather.Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new MemoryStore.
// If maxAge is <= 0, records never expire.
func NewMemoryStore(maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:   make(map[string]slot),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// SaveRecord overwrites the slot for loc.
func (s *MemoryStore) SaveRecord(loc weather.Location, rec weather.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[loc.Key()] = slot{
		loc:      loc,
		record:   rec,
		storedAt: s.now(),
	}
}

// GetLatest returns the record held for loc.
func (s *MemoryStore) GetLatest(loc weather.Location) (weather.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sl, ok := s.data[loc.Key()]
	if !ok || s.expired(sl) {
		return weather.Record{}, ErrNotFound
	}
	return sl.record, nil
}

// List returns every live slot ordered by location key.
func (s *MemoryStore) List() []weather.StoredRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k, sl := range s.data {
		if !s.expired(sl) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]weather.StoredRecord, 0, len(keys))
	for _, k := range keys {
		sl := s.data[k]
		out = append(out, weather.StoredRecord{Location: sl.loc, Record: sl.record})
	}
	return out
}

func (s *MemoryStore) expired(sl slot) bool {
	return s.maxAge > 0 && s.now().Sub(sl.storedAt) > s.maxAge
}
