package weather

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNetwork covers transport failures: no connectivity, timeouts, an open circuit.
	ErrNetwork = errors.New("network error")
	// ErrProvider is matched by every *ProviderError.
	ErrProvider = errors.New("provider error")
	// ErrParse means the response body did not have the expected shape.
	ErrParse = errors.New("parse error")
	// ErrInvalidInput is returned before any request is made.
	ErrInvalidInput = errors.New("invalid input")
)

// ProviderError is a non-success HTTP status returned by the provider.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("provider error: status %d: %s", e.StatusCode, e.Message)
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// NotFound reports whether the provider did not know the requested location.
func (e *ProviderError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// ErrorKind names a branch of the error taxonomy.
type ErrorKind string

const (
	KindNone     ErrorKind = ""
	KindNetwork  ErrorKind = "network"
	KindProvider ErrorKind = "provider"
	KindParse    ErrorKind = "parse"
	KindInput    ErrorKind = "input"
	KindUnknown  ErrorKind = "unknown"
)

// Kind classifies err. Hosts treat every kind the same way (the fetch failed)
// but may word their message differently.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidInput):
		return KindInput
	case errors.Is(err, ErrProvider):
		return KindProvider
	case errors.Is(err, ErrParse):
		return KindParse
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	default:
		return KindUnknown
	}
}
