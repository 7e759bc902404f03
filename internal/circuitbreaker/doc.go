// Package circuitbreaker lets the instance router fail fast on an endpoint
// that keeps refusing connections.
//
// A breaker has three states:
//
//   - CLOSED: forwards pass through
//   - OPEN: forwards fail immediately without touching the endpoint
//   - HALF-OPEN: one probe is let through after the reset timeout
//
// Failures are transport errors only; any HTTP response, whatever its status,
// counts as a success. Nothing here retries.
//
//	registry := circuitbreaker.NewRegistry(5, 30*time.Second)
//	cb := registry.GetBreaker("http://localhost:3000")
//	if !cb.Allow() {
//	    return ErrCircuitOpen
//	}
package circuitbreaker
