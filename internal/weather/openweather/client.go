// Package openweather implements weather.Client against the OpenWeatherMap
// current-weather API and its static icon assets.
package openweather

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/bchazalet/weatherapp/internal/weather"
)

const (
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"
	DefaultIconURL = "https://openweathermap.org/img/w"
)

// Config is the injected provider configuration.
type Config struct {
	BaseURL string
	IconURL string
	APIKey  string
	// Units is passed through as the "units" parameter; empty means Kelvin.
	Units   string
	Lang    string
	Backoff BackoffConfig
	// Breaker puts a circuit breaker in front of each endpoint. Off by default.
	Breaker bool
}

// Client implements weather.Client for OpenWeatherMap. It holds no per-request
// state and never logs; every failure is returned to the caller.
type Client struct {
	name    string
	cfg     Config
	httpCfg HTTPClientConfig
	// One breaker per endpoint so a failing weather API never blocks icons.
	weatherCircuit *gobreaker.CircuitBreaker
	iconCircuit    *gobreaker.CircuitBreaker
}

var _ weather.Client = (*Client)(nil)

func NewClient(client *http.Client, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.IconURL == "" {
		cfg.IconURL = DefaultIconURL
	}
	cfg.IconURL = strings.TrimRight(cfg.IconURL, "/")
	if cfg.Backoff.MaxRetries > 0 && cfg.Backoff.InitialInterval <= 0 {
		cfg.Backoff.InitialInterval = 500 * time.Millisecond
	}
	if cfg.Backoff.MaxRetries > 0 && cfg.Backoff.MaxInterval <= 0 {
		cfg.Backoff.MaxInterval = 5 * time.Second
	}

	c := &Client{
		name: "openweathermap",
		cfg:  cfg,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: cfg.Backoff,
		},
	}
	if cfg.Breaker {
		c.weatherCircuit = newCircuitBreaker("openweather-weather")
		c.iconCircuit = newCircuitBreaker("openweather-icon")
	}
	return c
}

func (c *Client) Name() string {
	return c.name
}

// FetchByCity requests the current weather for "city,country".
func (c *Client) FetchByCity(ctx context.Context, city, country string) (weather.Record, error) {
	if strings.TrimSpace(city) == "" {
		return weather.Record{}, fmt.Errorf("%w: city is required", weather.ErrInvalidInput)
	}
	if c.cfg.APIKey == "" {
		return weather.Record{}, fmt.Errorf("%w: openweather api key is not configured", weather.ErrInvalidInput)
	}

	loc := weather.Location{City: city, Country: country}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("q", loc.Query())
		values.Set("appid", c.cfg.APIKey)
		if c.cfg.Units != "" {
			values.Set("units", c.cfg.Units)
		}
		if c.cfg.Lang != "" {
			values.Set("lang", c.cfg.Lang)
		}

		u := fmt.Sprintf("%s?%s", c.cfg.BaseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequest(ctx, c.httpCfg, c.weatherCircuit, buildRequest)
	if err != nil {
		return weather.Record{}, err
	}
	defer resp.Body.Close()

	return parseCurrent(resp.Body)
}

// FetchIcon downloads and decodes the icon asset for code. Nothing is cached.
func (c *Client) FetchIcon(ctx context.Context, code string) (weather.Icon, error) {
	if strings.TrimSpace(code) == "" {
		return weather.Icon{}, fmt.Errorf("%w: icon code is required", weather.ErrInvalidInput)
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		u := fmt.Sprintf("%s/%s.png", c.cfg.IconURL, url.PathEscape(code))
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequest(ctx, c.httpCfg, c.iconCircuit, buildRequest)
	if err != nil {
		return weather.Icon{}, err
	}
	defer resp.Body.Close()

	return decodeIcon(code, resp.Body)
}
