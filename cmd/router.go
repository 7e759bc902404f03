package main

import (
	"encoding/json"
	"net/http"

	"github.com/angeloszaimis/instance-gateway/internal/circuitbreaker"
	"github.com/angeloszaimis/instance-gateway/internal/instance"
	"github.com/angeloszaimis/instance-gateway/internal/metrics"
)

type endpointStatus struct {
	URL               string `json:"url"`
	Healthy           bool   `json:"healthy"`
	ActiveConnections int    `json:"active_connections"`
	Breaker           string `json:"breaker"`
	BreakerFailures   int    `json:"breaker_failures"`
}

type healthStatus struct {
	Status    string           `json:"status"`
	Instance  string           `json:"instance"`
	Endpoints []endpointStatus `json:"endpoints"`
}

// setupAdminRouter serves operational endpoints. They live on their own
// listener so every path on the proxy listener reaches the instance.
func setupAdminRouter(collector *metrics.Collector, endpoints []*instance.Endpoint, breakers *circuitbreaker.Registry, instanceName string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /metrics", collector.Handler(instanceName))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		status := healthStatus{Status: "ok", Instance: instanceName}
		stats := breakers.Stats()

		for _, e := range endpoints {
			// endpoints nobody has resolved yet have no breaker
			breaker, ok := stats[e.Key()]
			if !ok {
				breaker.State = circuitbreaker.StateClosed
			}
			if !e.IsHealthy() {
				status.Status = "degraded"
			}
			status.Endpoints = append(status.Endpoints, endpointStatus{
				URL:               e.Key(),
				Healthy:           e.IsHealthy(),
				ActiveConnections: e.ActiveConnections(),
				Breaker:           breaker.State.String(),
				BreakerFailures:   breaker.Failures,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	return mux
}
