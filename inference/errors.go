package inference

import (
	"errors"
	"fmt"
)

var (
	ErrMissingAPIKey       = errors.New("cloud API key not configured")
	ErrNoHealthyEndpoints  = errors.New("no inference endpoints responded")
	errNoEndpointsInConfig = errors.New("no worker endpoints configured")
)

// PoolExhaustedError is returned after every configured attempt against the
// worker pool failed.
type PoolExhaustedError struct {
	Attempts int
	Last     error
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("all %d inference attempts failed: %v", e.Attempts, e.Last)
}

func (e *PoolExhaustedError) Unwrap() error {
	return e.Last
}

// TransportError describes a single failed call to one endpoint.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type ProviderNotImplementedError struct {
	Provider string
}

func (e *ProviderNotImplementedError) Error() string {
	return fmt.Sprintf("cloud provider %q not implemented", e.Provider)
}
