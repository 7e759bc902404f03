// Package instance resolves logical instance names to upstream endpoints and
// forwards requests to them.
//
// Names are placed on endpoints with a consistent hash ring, so a name keeps
// landing on the same endpoint for as long as the endpoint set is unchanged.
// Each endpoint may be guarded by a circuit breaker that fails fast after
// repeated transport errors. Plain requests are sent with a single round trip
// and redirects are never followed; WebSocket upgrades are dialed and the
// upgraded connection is returned to the caller.
package instance
