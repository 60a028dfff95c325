package weather

import (
	"context"
)

// Client abstracts a weather data source. Both operations are a single
// request/response round trip and must not be called from a rendering goroutine.
type Client interface {
	FetchByCity(ctx context.Context, city, country string) (Record, error)
	FetchIcon(ctx context.Context, code string) (Icon, error)
}

// Store holds the currently displayed record per location.
type Store interface {
	SaveRecord(loc Location, rec Record)
	GetLatest(loc Location) (Record, error)
	List() []StoredRecord
}

// StoredRecord pairs a record with the location it was fetched for.
type StoredRecord struct {
	Location Location `json:"location"`
	Record   Record   `json:"record"`
}
