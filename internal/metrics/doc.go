// Package metrics collects gateway metrics off the request path.
//
// Request handling emits events through Collector.Emit, which never blocks: a
// full buffer drops the event. A single goroutine folds events into per-target
// counters:
//   - requests and relayed WebSocket upgrades per instance
//   - forwarding failures (answered with a 500 by the dispatcher)
//   - latency percentiles (P50, P95, P99) over the last 1000 samples
//   - status code distribution
//   - endpoint health as reported by the health checker
//
// Snapshots are served as JSON on the admin listener:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//	mux.HandleFunc("/metrics", collector.Handler("default"))
//
// Cancelling the context drains queued events before the collector stops.
package metrics
