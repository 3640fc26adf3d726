package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxSamples = 1000

type Metrics struct {
	mutex           sync.RWMutex
	requests        map[string]int64
	responseTimes   map[string][]time.Duration
	statusCodes     map[string]map[int]int64
	backendFailures map[string]int64
	backendHealthy  map[string]bool
	startTime       time.Time
}

type Snapshot struct {
	TotalRequests int64                     `json:"total_requests"`
	Uptime        time.Duration             `json:"uptime"`
	Classes       map[string]ClassMetrics   `json:"classes"`
	Backends      map[string]BackendMetrics `json:"backends"`
}

// ClassMetrics aggregates requests of one dispatch class.
type ClassMetrics struct {
	Requests    int64         `json:"requests"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
	P99Response time.Duration `json:"p99_response"`
	StatusCodes map[int]int64 `json:"status_codes"`
}

type BackendMetrics struct {
	Healthy  bool  `json:"healthy"`
	Failures int64 `json:"failures"`
}

func (m *Metrics) IncrementRequests(class string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests[class]++
}

func (m *Metrics) RecordResponse(class string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responseTimes[class] = append(m.responseTimes[class], duration)

	if len(m.responseTimes[class]) > maxSamples {
		m.responseTimes[class] = m.responseTimes[class][1:]
	}

	if m.statusCodes[class] == nil {
		m.statusCodes[class] = make(map[int]int64)
	}
	m.statusCodes[class][statusCode]++
}

func (m *Metrics) RecordBackendFailure(backend string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.backendFailures[backend]++
}

func (m *Metrics) UpdateHealthStatus(backend string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.backendHealthy[backend] = healthy
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:   time.Since(m.startTime),
		Classes:  make(map[string]ClassMetrics),
		Backends: make(map[string]BackendMetrics),
	}

	allClasses := make(map[string]bool)
	for class := range m.requests {
		allClasses[class] = true
	}
	for class := range m.responseTimes {
		allClasses[class] = true
	}

	for class := range allClasses {
		snap.TotalRequests += m.requests[class]

		cm := ClassMetrics{
			Requests:    m.requests[class],
			StatusCodes: copyCodes(m.statusCodes[class]),
		}

		durations := m.responseTimes[class]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			cm.AvgResponse = average(sorted)
			cm.P50Response = percentile(sorted, 0.50)
			cm.P95Response = percentile(sorted, 0.95)
			cm.P99Response = percentile(sorted, 0.99)
		}

		snap.Classes[class] = cm
	}

	for backend, healthy := range m.backendHealthy {
		bm := snap.Backends[backend]
		bm.Healthy = healthy
		snap.Backends[backend] = bm
	}
	for backend, failures := range m.backendFailures {
		bm := snap.Backends[backend]
		bm.Failures = failures
		snap.Backends[backend] = bm
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests:        make(map[string]int64),
		responseTimes:   make(map[string][]time.Duration),
		statusCodes:     make(map[string]map[int]int64),
		backendFailures: make(map[string]int64),
		backendHealthy:  make(map[string]bool),
		startTime:       time.Now(),
	}
}

func copyCodes(codes map[int]int64) map[int]int64 {
	if codes == nil {
		return nil
	}
	out := make(map[int]int64, len(codes))
	for code, n := range codes {
		out[code] = n
	}
	return out
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
