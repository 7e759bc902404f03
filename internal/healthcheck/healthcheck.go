package healthcheck

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/angeloszaimis/instance-gateway/internal/instance"
	"github.com/angeloszaimis/instance-gateway/internal/metrics"
)

const probeTimeout = 5 * time.Second

// Checker probes instance endpoints and records their health. Results are
// informational: routing never skips an unhealthy endpoint.
type Checker struct {
	client    *http.Client
	interval  time.Duration
	path      string
	logger    *slog.Logger
	collector *metrics.Collector
}

// New returns a checker probing path every interval. collector may be nil.
func New(interval time.Duration, path string, logger *slog.Logger, collector *metrics.Collector) *Checker {
	return &Checker{
		client: &http.Client{
			Timeout: probeTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		interval:  interval,
		path:      path,
		logger:    logger,
		collector: collector,
	}
}

// Enabled reports whether the checker has both a path and an interval.
func (c *Checker) Enabled() bool {
	return c.path != "" && c.interval > 0
}

// Run probes every endpoint until ctx is done. It returns once all probe loops
// have stopped.
func (c *Checker) Run(ctx context.Context, endpoints []*instance.Endpoint) {
	if !c.Enabled() {
		c.logger.Info("Health checks disabled")
		return
	}

	var wg sync.WaitGroup
	for _, e := range endpoints {
		wg.Add(1)
		go func(e *instance.Endpoint) {
			defer wg.Done()
			c.watch(ctx, e)
		}(e)
	}
	wg.Wait()
}

func (c *Checker) watch(ctx context.Context, e *instance.Endpoint) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Check(ctx, e)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Health check stopped", slog.String("endpoint", e.Key()))
			return
		case <-ticker.C:
			c.Check(ctx, e)
		}
	}
}

// Check probes e once, updates its health and returns the result. A 2xx
// answer is healthy; anything else, including no answer, is not.
func (c *Checker) Check(ctx context.Context, e *instance.Endpoint) bool {
	healthy := c.probe(ctx, e)
	if ctx.Err() != nil {
		return e.IsHealthy()
	}

	if e.SetHealthy(healthy) {
		if healthy {
			c.logger.Info("Endpoint is back up", slog.String("endpoint", e.Key()))
		} else {
			c.logger.Warn("Endpoint is down", slog.String("endpoint", e.Key()))
		}
		c.collector.Emit(metrics.MetricEvent{
			Type:    metrics.EventHealthChanged,
			Target:  e.Key(),
			Healthy: healthy,
		})
	}

	return healthy
}

func (c *Checker) probe(ctx context.Context, e *instance.Endpoint) bool {
	healthURL := e.URL().ResolveReference(&url.URL{Path: c.path})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL.String(), nil)
	if err != nil {
		return false
	}

	res, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Health probe failed",
			slog.String("endpoint", e.Key()),
			slog.Any("err", err))
		return false
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	return res.StatusCode >= 200 && res.StatusCode < 300
}
