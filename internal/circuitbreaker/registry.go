package circuitbreaker

import (
	"sync"
	"time"
)

// Registry hands out one breaker per endpoint URL.
type Registry struct {
	mutex     sync.RWMutex
	breakers  map[string]*CircuitBreaker
	threshold int
	timeout   time.Duration
}

func NewRegistry(threshold int, timeout time.Duration) *Registry {
	return &Registry{
		breakers:  make(map[string]*CircuitBreaker),
		threshold: threshold,
		timeout:   timeout,
	}
}

func (r *Registry) GetBreaker(endpointURL string) *CircuitBreaker {
	r.mutex.RLock()
	cb, exists := r.breakers[endpointURL]
	r.mutex.RUnlock()

	if exists {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// another goroutine may have created it
	if cb, exists = r.breakers[endpointURL]; exists {
		return cb
	}

	cb = NewCircuitBreaker(r.threshold, r.timeout)
	r.breakers[endpointURL] = cb
	return cb
}

// Status is a point-in-time view of one endpoint's breaker.
type Status struct {
	State    State
	Failures int
}

// Stats reports every breaker handed out so far, keyed by endpoint URL.
func (r *Registry) Stats() map[string]Status {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := make(map[string]Status, len(r.breakers))
	for url, cb := range r.breakers {
		stats[url] = Status{State: cb.State(), Failures: cb.Failures()}
	}
	return stats
}
