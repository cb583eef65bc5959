package observability

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// Delivery outcomes recorded per channel.
const (
	OutcomeDelivered = "delivered"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
	OutcomeDuplicate = "duplicate"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	requestMillis map[string]int64
	errorCount    map[string]int64
	deliveryCount map[string]int64
	eventCount    map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		requestMillis: make(map[string]int64),
		errorCount:    make(map[string]int64),
		deliveryCount: make(map[string]int64),
		eventCount:    make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.requestMillis[key] += duration.Milliseconds()
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordDelivery counts a channel push attempt by outcome.
func (m *Metrics) RecordDelivery(channel, outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveryCount[channel+"|"+outcome]++
}

// RecordEvent counts lifecycle events handled per source (outbox, watcher, sla).
func (m *Metrics) RecordEvent(source, eventType string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventCount[source+"|"+eventType]++
}

// Delivery returns the counter for channel/outcome.
func (m *Metrics) Delivery(channel, outcome string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deliveryCount[channel+"|"+outcome]
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Requests      map[string]int64 `json:"requests"`
	RequestMillis map[string]int64 `json:"request_millis"`
	Errors        map[string]int64 `json:"errors"`
	Deliveries    map[string]int64 `json:"deliveries"`
	Events        map[string]int64 `json:"events"`
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Requests:      copyCounters(m.requestCount),
		RequestMillis: copyCounters(m.requestMillis),
		Errors:        copyCounters(m.errorCount),
		Deliveries:    copyCounters(m.deliveryCount),
		Events:        copyCounters(m.eventCount),
	}
}

// Keys returns the sorted counter keys of a snapshot map.
func Keys(counters map[string]int64) []string {
	keys := make([]string, 0, len(counters))
	for k := range counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyCounters(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
