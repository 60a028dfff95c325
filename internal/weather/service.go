package weather

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Service puts a Client in front of the displayed-record store and an
// optional icon cache.
type Service struct {
	store  Store
	client Client
	icons  *Cache[Icon]
}

// NewService creates a new Service. A zero iconCacheTTL disables icon caching,
// so every FetchIcon goes to the network.
func NewService(store Store, client Client, iconCacheTTL time.Duration) *Service {
	s := &Service{
		store:  store,
		client: client,
	}
	if iconCacheTTL > 0 {
		s.icons = NewCache[Icon](iconCacheTTL)
	}
	return s
}

// FetchByCity fetches the current weather and overwrites the location's slot
// on success. A failed fetch leaves the previous record in place.
func (s *Service) FetchByCity(ctx context.Context, city, country string) (Record, error) {
	rec, err := s.client.FetchByCity(ctx, city, country)
	if err != nil {
		return Record{}, err
	}
	s.store.SaveRecord(Location{City: city, Country: country}, rec)
	return rec, nil
}

// FetchIcon fetches the icon for code, going through the cache when enabled.
func (s *Service) FetchIcon(ctx context.Context, code string) (Icon, error) {
	if s.icons != nil {
		if icon, ok := s.icons.Get(code); ok {
			return icon, nil
		}
	}

	icon, err := s.client.FetchIcon(ctx, code)
	if err != nil {
		return Icon{}, err
	}

	if s.icons != nil {
		s.icons.Set(code, icon)
	}
	return icon, nil
}

// FetchAndStore fetches and stores the record for a single location.
func (s *Service) FetchAndStore(ctx context.Context, loc Location) error {
	if _, err := s.FetchByCity(ctx, loc.City, loc.Country); err != nil {
		return fmt.Errorf("fetch %s: %w", loc, err)
	}
	return nil
}

// Refresh fetches all locations concurrently and returns how many succeeded.
// Failures are logged and leave the previous record of that location in place.
func (s *Service) Refresh(ctx context.Context, locs []Location) int {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)

	log.Printf("DEBUG: Refresh called for %d locations", len(locs))

	for _, loc := range locs {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := s.FetchAndStore(ctx, loc); err != nil {
				log.Printf("ERROR: refresh failed for %s (%s): %v", loc.Key(), Kind(err), err)
				return
			}

			mu.Lock()
			ok++
			mu.Unlock()
		}()
	}

	wg.Wait()
	return ok
}

// GetLatest delegates to the underlying store.
func (s *Service) GetLatest(loc Location) (Record, error) {
	return s.store.GetLatest(loc)
}

// Latest returns every displayed record currently held.
func (s *Service) Latest() []StoredRecord {
	return s.store.List()
}
