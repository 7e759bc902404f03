package metrics

import (
	"sort"
	"sync"
	"time"
)

// maxSamples bounds the latency window kept per target.
const maxSamples = 1000

type Metrics struct {
	mutex         sync.RWMutex
	requests      map[string]int64
	upgrades      map[string]int64
	failures      map[string]int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	healthStatus  map[string]bool
	startTime     time.Time
}

type Snapshot struct {
	Instance      string                   `json:"instance"`
	TotalRequests int64                    `json:"total_requests"`
	TotalFailures int64                    `json:"total_failures"`
	Uptime        time.Duration            `json:"uptime"`
	Targets       map[string]TargetMetrics `json:"targets"`
}

type TargetMetrics struct {
	Requests    int64         `json:"requests"`
	Upgrades    int64         `json:"upgrades"`
	Failures    int64         `json:"failures"`
	Healthy     *bool         `json:"healthy,omitempty"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
	P99Response time.Duration `json:"p99_response"`
	StatusCodes map[int]int64 `json:"status_codes,omitempty"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests:      make(map[string]int64),
		upgrades:      make(map[string]int64),
		failures:      make(map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		healthStatus:  make(map[string]bool),
		startTime:     time.Now(),
	}
}

func (m *Metrics) IncrementRequests(target string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests[target]++
}

func (m *Metrics) RecordUpgrade(target string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.upgrades[target]++
}

func (m *Metrics) RecordResponse(target string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.appendSample(target, duration)

	if m.statusCodes[target] == nil {
		m.statusCodes[target] = make(map[int]int64)
	}
	m.statusCodes[target][statusCode]++
}

// RecordFailure counts a forward that never produced a backend response.
func (m *Metrics) RecordFailure(target string, duration time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.failures[target]++
	m.appendSample(target, duration)
}

func (m *Metrics) UpdateHealthStatus(target string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthStatus[target] = healthy
}

func (m *Metrics) appendSample(target string, duration time.Duration) {
	samples := append(m.responseTimes[target], duration)
	if len(samples) > maxSamples {
		samples = samples[len(samples)-maxSamples:]
	}
	m.responseTimes[target] = samples
}

func (m *Metrics) Snapshot(instance string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Instance: instance,
		Uptime:   time.Since(m.startTime),
		Targets:  make(map[string]TargetMetrics),
	}

	targets := make(map[string]struct{})
	for _, set := range []map[string]int64{m.requests, m.upgrades, m.failures} {
		for t := range set {
			targets[t] = struct{}{}
		}
	}
	for t := range m.responseTimes {
		targets[t] = struct{}{}
	}
	for t := range m.healthStatus {
		targets[t] = struct{}{}
	}

	for target := range targets {
		snap.TotalRequests += m.requests[target]
		snap.TotalFailures += m.failures[target]

		tm := TargetMetrics{
			Requests: m.requests[target],
			Upgrades: m.upgrades[target],
			Failures: m.failures[target],
		}

		if healthy, ok := m.healthStatus[target]; ok {
			tm.Healthy = &healthy
		}

		if codes := m.statusCodes[target]; len(codes) > 0 {
			tm.StatusCodes = make(map[int]int64, len(codes))
			for code, n := range codes {
				tm.StatusCodes[code] = n
			}
		}

		if durations := m.responseTimes[target]; len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

			tm.AvgResponse = average(sorted)
			tm.P50Response = percentile(sorted, 0.50)
			tm.P95Response = percentile(sorted, 0.95)
			tm.P99Response = percentile(sorted, 0.99)
		}

		snap.Targets[target] = tm
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
