package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/bchazalet/weatherapp/internal/api/http"
	"github.com/bchazalet/weatherapp/internal/config"
	"github.com/bchazalet/weatherapp/internal/scheduler"
	"github.com/bchazalet/weatherapp/internal/session"
	"github.com/bchazalet/weatherapp/internal/store"
	"github.com/bchazalet/weatherapp/internal/weather"
	"github.com/bchazalet/weatherapp/internal/weather/openweather"
)

func main() {
	// Load configuration (also reads .env).
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.OpenWeatherAPIKey == "" {
		log.Printf("INFO: OPENWEATHER_API_KEY is empty; every fetch will fail with invalid input")
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	client := openweather.NewClient(httpClient, openweather.Config{
		BaseURL: cfg.OpenWeatherBaseURL,
		IconURL: cfg.OpenWeatherIconURL,
		APIKey:  cfg.OpenWeatherAPIKey,
		Units:   cfg.Units,
		Lang:    cfg.Lang,
		Backoff: openweather.BackoffConfig{MaxRetries: cfg.FetchRetries},
		Breaker: cfg.BreakerEnabled,
	})
	log.Printf("INFO: provider %s (retries=%d, breaker=%t)", client.Name(), cfg.FetchRetries, cfg.BreakerEnabled)

	// One displayed record per city.
	memStore := store.NewMemoryStore(cfg.StoreMaxAge)

	service := weather.NewService(memStore, client, cfg.IconCacheTTL)

	// Scheduler that periodically refreshes every city.
	sched := scheduler.New(cfg.Cities, cfg.FetchInterval, service)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// The session goes through the service so its fetches fill the store too.
	ctrl := session.NewController(service, cfg.Cities, session.Options{
		Timeout: cfg.HTTPTimeout,
	})

	var states session.StateStore
	if cfg.SessionDBPath != "" {
		sqliteStore, err := session.NewSQLiteStateStore(cfg.SessionDBPath)
		if err != nil {
			log.Fatalf("failed to open session store: %v", err)
		}
		defer sqliteStore.Close()
		states = sqliteStore
		restoreSession(ctrl, states)
	}

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		consumeEvents(ctrl, states)
	}()

	app := fiber.New(fiber.Config{
		AppName:               "weatherapp",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.HTTPTimeout + 5*time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weatherapp",
		})
	})

	httpapi.RegisterRoutes(app, service, ctrl)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()
	log.Printf("INFO: listening on :%s with %d cities", cfg.Port, len(cfg.Cities))

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}

	ctrl.Close()
	<-consumerDone
	saveSession(ctrl, states)
}

func restoreSession(ctrl *session.Controller, states session.StateStore) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, ok, err := states.Load(ctx)
	if err != nil {
		log.Printf("ERROR: load session state: %v", err)
		return
	}
	if !ok {
		return
	}
	if err := ctrl.Restore(st); err != nil {
		log.Printf("ERROR: restore session state: %v", err)
		return
	}
	log.Printf("INFO: restored session at position %d", st.Position)
}

// consumeEvents is the single consumer of the controller's completions.
func consumeEvents(ctrl *session.Controller, states session.StateStore) {
	for ev := range ctrl.Events() {
		switch ev.Kind {
		case session.EventError:
			log.Printf("ERROR: session event %s fetch %s at position %d: %s (%s): %v",
				ev.ID, ev.Fetch, ev.Position, ev.Message, weather.Kind(ev.Err), ev.Err)
		case session.EventWeather:
			log.Printf("DEBUG: session event %s fetch %s: weather for %s", ev.ID, ev.Fetch, ev.Record.Name)
		case session.EventIcon:
			log.Printf("DEBUG: session event %s fetch %s: icon %s", ev.ID, ev.Fetch, ev.Icon.Code)
		}
		saveSession(ctrl, states)
	}
}

func saveSession(ctrl *session.Controller, states session.StateStore) {
	if states == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := states.Save(ctx, ctrl.Snapshot()); err != nil {
		log.Printf("ERROR: save session state: %v", err)
	}
}
