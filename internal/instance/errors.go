package instance

import "errors"

var (
	ErrNoEndpoints = errors.New("no instance endpoints configured")
	ErrInvalidName = errors.New("instance name must not be empty")
	ErrCircuitOpen = errors.New("circuit breaker open")
	ErrInvalidURL  = errors.New("endpoint must be an absolute http(s) URL")
)
