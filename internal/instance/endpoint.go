package instance

import (
	"fmt"
	"net/url"
	"sync"
)

// Endpoint is one upstream address an instance listens on, with its health
// status and in-flight connection count.
type Endpoint struct {
	url               *url.URL
	mutex             sync.Mutex
	isHealthy         bool
	activeConnections int
}

// NewEndpoint parses rawURL into an endpoint. Endpoints start healthy.
func NewEndpoint(rawURL string) (*Endpoint, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidURL, rawURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}

	return &Endpoint{url: u, isHealthy: true}, nil
}

// ParseEndpoints builds an endpoint for every URL, failing on the first bad one.
func ParseEndpoints(rawURLs []string) ([]*Endpoint, error) {
	endpoints := make([]*Endpoint, 0, len(rawURLs))
	for _, raw := range rawURLs {
		e, err := NewEndpoint(raw)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, nil
}

func (e *Endpoint) URL() *url.URL {
	return e.url
}

// Key identifies the endpoint on the placement ring and in the breaker registry.
func (e *Endpoint) Key() string {
	return e.url.String()
}

func (e *Endpoint) IncrementConn() {
	e.mutex.Lock()
	e.activeConnections++
	e.mutex.Unlock()
}

func (e *Endpoint) DecrementConn() {
	e.mutex.Lock()
	if e.activeConnections > 0 {
		e.activeConnections--
	}
	e.mutex.Unlock()
}

// ActiveConnections counts responses still being relayed and open sockets.
func (e *Endpoint) ActiveConnections() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.activeConnections
}

func (e *Endpoint) IsHealthy() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.isHealthy
}

// SetHealthy updates the health status and reports whether it changed.
func (e *Endpoint) SetHealthy(healthy bool) (changed bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.isHealthy == healthy {
		return false
	}

	e.isHealthy = healthy
	return true
}
