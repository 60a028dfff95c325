package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/bchazalet/weatherapp/internal/weather"
)

// RunTimeout bounds a single refresh of every location.
const RunTimeout = 30 * time.Second

// Refresher is the part of weather.Service the scheduler drives.
type Refresher interface {
	Refresh(ctx context.Context, locs []weather.Location) int
}

// Scheduler periodically refreshes the displayed record of every configured city.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   Refresher
	locations []weather.Location
	interval  time.Duration
}

// New creates a new Scheduler. A zero interval disables it.
func New(locations []weather.Location, interval time.Duration, service Refresher) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		service:   service,
		locations: locations,
		interval:  interval,
	}
}

// Start schedules the periodic job and starts the underlying scheduler. The
// first run happens immediately.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 {
		log.Println("INFO: scheduler: no locations configured; nothing to schedule")
		return nil
	}
	if s.interval <= 0 {
		log.Println("INFO: scheduler: FETCH_INTERVAL is 0; periodic refresh disabled")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(s.run)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) run() {
	log.Println("DEBUG: scheduler: running weather refresh job")

	ctx, cancel := context.WithTimeout(context.Background(), RunTimeout)
	defer cancel()

	ok := s.service.Refresh(ctx, s.locations)
	log.Printf("INFO: scheduler: refreshed %d/%d locations", ok, len(s.locations))
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil && s.scheduler.IsRunning() {
		s.scheduler.Stop()
	}
}
