package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/bchazalet/weatherapp/internal/weather"
)

// BackoffConfig controls exponential backoff between retries.
// MaxRetries is zero by default: a failed fetch fails once.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
}

const maxErrorBody = 4 << 10

var (
	errRateLimited   = errors.New("rate limited")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		// Unknown cities and bad payloads say nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransient(err)
		},
	})
}

// isTransient reports whether err is worth retrying and counts against the breaker.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, weather.ErrNetwork) || errors.Is(err, errRateLimited) {
		return true
	}
	var perr *weather.ProviderError
	if errors.As(err, &perr) {
		return perr.StatusCode >= 500
	}
	return false
}

// doRequest executes the request, through cb when it is not nil. It returns the
// response only for 200 OK; any other status becomes a *weather.ProviderError
// and transport failures wrap weather.ErrNetwork. Retries happen only for
// transient failures and only when cfg.Backoff.MaxRetries > 0.
func doRequest(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func(ctx context.Context) (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || (cfg.Backoff.MaxRetries > 0 && cfg.Backoff.InitialInterval <= 0) {
		return nil, errInvalidConfig
	}

	var attempt int

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", weather.ErrNetwork, err)
		}

		req, err := buildRequest(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: build request: %w", weather.ErrInvalidInput, err)
		}

		send := func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, fmt.Errorf("%w: %w", weather.ErrNetwork, execErr)
			}
			if resp.StatusCode != http.StatusOK {
				defer resp.Body.Close()
				perr := providerError(resp)
				if resp.StatusCode == http.StatusTooManyRequests {
					return nil, fmt.Errorf("%w: %w", errRateLimited, perr)
				}
				return nil, perr
			}
			return resp, nil
		}

		var result interface{}
		if cb != nil {
			result, err = cb.Execute(send)
		} else {
			result, err = send()
		}

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, nil
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w: %v", weather.ErrNetwork, errCircuitOpen, err)
		}

		if attempt >= cfg.Backoff.MaxRetries || !isTransient(err) {
			return nil, err
		}

		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %w", weather.ErrNetwork, ctx.Err())
		case <-timer.C:
		}

		attempt++
	}
}

// providerError reads the provider's error body, {"cod":"404","message":"city not found"}.
func providerError(resp *http.Response) *weather.ProviderError {
	perr := &weather.ProviderError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return perr
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		perr.Message = payload.Message
	}
	return perr
}
