package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/bchazalet/weatherapp/internal/weather"
)

// DefaultCities is used when WEATHER_CITIES is unset.
const DefaultCities = "London,Manchester,Birmingham,Edinburgh,Cardiff,Belfast"

type AppConfig struct {
	OpenWeatherAPIKey  string
	OpenWeatherBaseURL string
	OpenWeatherIconURL string
	Units              string
	Lang               string

	// HTTPTimeout bounds every outbound provider call.
	HTTPTimeout time.Duration
	// FetchRetries is the number of retries on transient failures (0 = none).
	FetchRetries int
	// BreakerEnabled puts a circuit breaker in front of each provider endpoint.
	BreakerEnabled bool

	// FetchInterval controls how often the scheduler refreshes every city (0 = disabled).
	FetchInterval time.Duration

	// Cities offered by the selector, in display order.
	Cities []weather.Location

	IconCacheTTL time.Duration // 0 = no icon caching
	StoreMaxAge  time.Duration // 0 = records never expire

	// SessionDBPath is the SQLite file for the session state; empty disables persistence.
	SessionDBPath string

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.OpenWeatherBaseURL = os.Getenv("OPENWEATHER_BASE_URL")
	cfg.OpenWeatherIconURL = os.Getenv("OPENWEATHER_ICON_URL")
	cfg.Units = os.Getenv("OPENWEATHER_UNITS")
	cfg.Lang = os.Getenv("OPENWEATHER_LANG")

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.IconCacheTTL, err = getenvDuration("ICON_CACHE_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", 24*time.Hour); err != nil {
		return nil, err
	}

	cfg.FetchRetries = getenvInt("FETCH_RETRIES", 0)
	if cfg.FetchRetries < 0 {
		cfg.FetchRetries = 0
	}

	if cfg.BreakerEnabled, err = getenvBool("BREAKER_ENABLED", false); err != nil {
		return nil, err
	}

	cfg.SessionDBPath = os.Getenv("SESSION_DB_PATH")
	cfg.Port = getenvDefault("PORT", "8080")

	cities, err := parseCities(getenvDefault("WEATHER_CITIES", DefaultCities), getenvDefault("WEATHER_COUNTRY", "uk"))
	if err != nil {
		return nil, err
	}
	cfg.Cities = cities

	return cfg, nil
}

// parseCities reads a comma separated list of "City" or "City:country"
// entries. Entries without a country get defaultCountry.
func parseCities(raw, defaultCountry string) ([]weather.Location, error) {
	var locs []weather.Location
	seen := make(map[string]bool)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		city, country, found := strings.Cut(entry, ":")
		city = strings.TrimSpace(city)
		country = strings.TrimSpace(country)
		if city == "" {
			return nil, fmt.Errorf("invalid WEATHER_CITIES entry %q: empty city", entry)
		}
		if !found || country == "" {
			country = defaultCountry
		}
		loc := weather.Location{City: city, Country: country}
		if seen[loc.Key()] {
			continue
		}
		seen[loc.Key()] = true
		locs = append(locs, loc)
	}
	if len(locs) == 0 {
		return nil, fmt.Errorf("WEATHER_CITIES lists no cities")
	}
	return locs, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: negative duration %s", key, v)
	}
	return d, nil
}
